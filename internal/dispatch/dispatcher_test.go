package dispatch

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostwatch/internal/alerts"
	"hostwatch/internal/models"
	"hostwatch/internal/worker"
)

type recorder struct {
	mu   sync.Mutex
	envs []*models.Envelope
	gate chan struct{}
}

func (r *recorder) Publish(ctx context.Context, env *models.Envelope) error {
	return r.PublishBatch(ctx, []*models.Envelope{env})
}

func (r *recorder) PublishBatch(_ context.Context, envs []*models.Envelope) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	r.envs = append(r.envs, envs...)
	r.mu.Unlock()
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.envs)
}

func intent(kind alerts.Kind) alerts.Intent {
	return alerts.Intent{ID: "i", Channel: alerts.ChannelCPU, Kind: kind, Value: 90, Threshold: 80, Timestamp: time.Now()}
}

func TestDispatcher_DeliversOnClose(t *testing.T) {
	rec := &recorder{}
	d := New(rec, Options{Host: "h1", Queue: 10, Pool: worker.Config{Workers: 1, BatchSize: 50, BatchTimeout: time.Hour}})
	d.Start()

	require.NoError(t, d.Emit(intent(alerts.KindStart)))
	require.NoError(t, d.Emit(intent(alerts.KindReminder)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))

	assert.Equal(t, 2, rec.count())
	assert.Equal(t, "h1", rec.envs[0].Host)
	assert.True(t, errors.Is(d.Emit(intent(alerts.KindRecover)), ErrClosed))
}

func TestDispatcher_EmitNeverBlocks(t *testing.T) {
	rec := &recorder{gate: make(chan struct{})}
	d := New(rec, Options{Queue: 2, Pool: worker.Config{Workers: 1, BatchSize: 1}})
	d.Start()

	// the worker holds one envelope at the gate, the queue holds two more
	var full bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			if errors.Is(d.Emit(intent(alerts.KindStart)), ErrQueueFull) {
				full = true
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked")
	}
	assert.True(t, full)

	close(rec.gate)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	assert.LessOrEqual(t, rec.count(), 3)
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := &LogPublisher{log: zerolog.New(&buf)}

	in := intent(alerts.KindStart)
	in.Test = true
	require.NoError(t, p.PublishBatch(context.Background(), []*models.Envelope{models.NewEnvelope(in, "h1")}))

	out := buf.String()
	assert.Contains(t, out, `"kind":"ALERT_START"`)
	assert.Contains(t, out, `"test":true`)
	assert.Contains(t, out, "[TEST] CPU usage alert")
}
