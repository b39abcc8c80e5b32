package state

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisKV(t *testing.T) {
	if os.Getenv("REDIS_TEST") == "" {
		t.Skip("Skipping redis test, set REDIS_TEST=1 to run")
	}
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	ctx := context.Background()
	kv, err := NewRedisKV(ctx, addr, "", 0)
	require.NoError(t, err)
	defer kv.Close()

	_, err = kv.Get(ctx, "hostwatch:test:missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, kv.Set(ctx, "hostwatch:test:key", []byte(`{"a":1}`)))
	got, err := kv.Get(ctx, "hostwatch:test:key")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))
}
