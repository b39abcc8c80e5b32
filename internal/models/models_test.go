package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostwatch/internal/alerts"
)

func TestNormalizeMount(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/", "/"},
		{" /mnt/data/ ", "/mnt/data"},
		{"mnt//data", "/mnt/data"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeMount(tt.in), "NormalizeMount(%q)", tt.in)
	}
}

func TestNormalizeMounts(t *testing.T) {
	got := NormalizeMounts([]string{"/mnt/data/", "/", "", "/mnt/data", "/boot"})
	assert.Equal(t, []string{"/", "/boot", "/mnt/data"}, got)
}

func TestNewEnvelope(t *testing.T) {
	in := alerts.Intent{
		ID:        "abc",
		Channel:   alerts.DiskChannel("/mnt/data"),
		Kind:      alerts.KindStart,
		Value:     91,
		Threshold: 85,
		Timestamp: time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC),
	}
	env := NewEnvelope(in, "web-1")

	assert.Equal(t, "web-1/disk_usage:/mnt/data", env.PartitionKey)
	assert.Equal(t, in.Message(), env.Message)

	b, err := json.Marshal(env)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	intent, ok := decoded["intent"].(map[string]any)
	require.True(t, ok, "intent not encoded: %s", b)
	assert.Equal(t, "ALERT_START", intent["kind"])
}

func TestNewEnvelope_TestIntentIsMarked(t *testing.T) {
	in := alerts.Intent{ID: "t", Channel: alerts.ChannelCPU, Kind: alerts.KindStart, Value: 50, Threshold: 80, Test: true}
	assert.Contains(t, NewEnvelope(in, "web-1").Message, "[TEST]")
}
