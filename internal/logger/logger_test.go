package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithOptions_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithOptions(Options{Level: "debug", Output: &buf})
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	buf.Reset()
	log := WithChannel("monitor", "cpu_usage")
	log.Debug().Msg("evaluated")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "monitor", line["component"])
	assert.Equal(t, "cpu_usage", line["channel"])
	assert.Equal(t, "evaluated", line["message"])
	assert.Equal(t, "debug", line["level"])
}

func TestInitWithOptions_BadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	InitWithOptions(Options{Level: "loud", Output: &buf})
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	buf.Reset()
	Logger.Debug().Msg("hidden")
	assert.Empty(t, buf.String())
}
