package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostwatch/internal/alerts"
	"hostwatch/internal/models"
)

// mockPublisher counts deliveries. With failBatch set only individual
// publishes succeed.
type mockPublisher struct {
	published  atomic.Uint64
	batches    atomic.Uint64
	shouldFail bool
	failBatch  bool
}

func (m *mockPublisher) Publish(ctx context.Context, env *models.Envelope) error {
	if m.shouldFail {
		return context.DeadlineExceeded
	}
	m.published.Add(1)
	return nil
}

func (m *mockPublisher) PublishBatch(ctx context.Context, envs []*models.Envelope) error {
	if m.shouldFail || m.failBatch {
		return context.DeadlineExceeded
	}
	m.batches.Add(1)
	m.published.Add(uint64(len(envs)))
	return nil
}

func envelope() *models.Envelope {
	return models.NewEnvelope(alerts.Intent{
		ID:        "test-intent",
		Channel:   alerts.ChannelCPU,
		Kind:      alerts.KindStart,
		Value:     91,
		Threshold: 80,
		Timestamp: time.Now(),
	}, "test-node")
}

func fill(ch chan<- *models.Envelope, n int) {
	for i := 0; i < n; i++ {
		ch <- envelope()
	}
}

func TestPool_DeliversAll(t *testing.T) {
	ch := make(chan *models.Envelope, 100)
	mock := &mockPublisher{}
	pool := NewPool(Config{Publisher: mock, Queue: ch, Workers: 2, BatchSize: 10, BatchTimeout: 50 * time.Millisecond})
	pool.Start()
	defer pool.Stop()

	fill(ch, 25)
	require.Eventually(t, func() bool { return pool.Stats().Processed == 25 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(25), mock.published.Load())
}

func TestPool_BatchesWhenFull(t *testing.T) {
	ch := make(chan *models.Envelope, 100)
	mock := &mockPublisher{}
	pool := NewPool(Config{Publisher: mock, Queue: ch, Workers: 1, BatchSize: 5, BatchTimeout: time.Second})
	pool.Start()
	defer pool.Stop()

	fill(ch, 5)
	require.Eventually(t, func() bool { return mock.published.Load() == 5 }, 500*time.Millisecond, 10*time.Millisecond,
		"a full batch must not wait for the timeout")
	assert.Equal(t, uint64(1), mock.batches.Load())
}

func TestPool_FlushesOnTimeout(t *testing.T) {
	ch := make(chan *models.Envelope, 100)
	mock := &mockPublisher{}
	pool := NewPool(Config{Publisher: mock, Queue: ch, Workers: 1, BatchSize: 100, BatchTimeout: 50 * time.Millisecond})
	pool.Start()
	defer pool.Stop()

	fill(ch, 3)
	require.Eventually(t, func() bool { return mock.published.Load() == 3 }, 2*time.Second, 10*time.Millisecond)
}

func TestPool_DrainsOnClose(t *testing.T) {
	ch := make(chan *models.Envelope, 100)
	mock := &mockPublisher{}
	pool := NewPool(Config{Publisher: mock, Queue: ch, Workers: 2, BatchSize: 10, BatchTimeout: time.Second})
	pool.Start()

	fill(ch, 7)
	close(ch)

	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not exit after queue close")
	}

	assert.Equal(t, uint64(7), mock.published.Load())
}

func TestPool_IndividualFallback(t *testing.T) {
	ch := make(chan *models.Envelope, 100)
	mock := &mockPublisher{failBatch: true}
	pool := NewPool(Config{Publisher: mock, Queue: ch, Workers: 1, BatchSize: 5, BatchTimeout: 50 * time.Millisecond})
	pool.Start()
	defer pool.Stop()

	fill(ch, 5)
	require.Eventually(t, func() bool { return pool.Stats().Processed == 5 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, pool.Stats().Failed)
	assert.Zero(t, mock.batches.Load())
}

func TestPool_CountsFailures(t *testing.T) {
	ch := make(chan *models.Envelope, 100)
	mock := &mockPublisher{shouldFail: true}
	pool := NewPool(Config{Publisher: mock, Queue: ch, Workers: 1, BatchSize: 5, BatchTimeout: 50 * time.Millisecond})
	pool.Start()
	defer pool.Stop()

	fill(ch, 5)
	require.Eventually(t, func() bool { return pool.Stats().Failed == 5 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, pool.Stats().Processed)
}

type panicPublisher struct{}

func (p *panicPublisher) Publish(context.Context, *models.Envelope) error { return nil }
func (p *panicPublisher) PublishBatch(context.Context, []*models.Envelope) error {
	panic("boom")
}

func TestPool_RecoversPanic(t *testing.T) {
	ch := make(chan *models.Envelope, 10)
	pool := NewPool(Config{Publisher: &panicPublisher{}, Queue: ch, Workers: 1, BatchSize: 1})
	pool.Start()

	ch <- envelope()
	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after panic")
	}
}
