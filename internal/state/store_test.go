package state

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostwatch/internal/alerts"
)

func TestStore_GetUnknownIsInitial(t *testing.T) {
	s := NewStore()
	assert.True(t, s.Get(alerts.ChannelCPU).IsInitial())
}

func TestStore_ApplyErrorKeepsState(t *testing.T) {
	s := NewStore()
	now := time.Now()

	err := s.Apply(alerts.ChannelCPU, func(alerts.ChannelState) (alerts.ChannelState, error) {
		return alerts.ChannelState{Phase: alerts.PhaseAlerting, LastNotifiedAt: &now}, nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.Apply(alerts.ChannelCPU, func(alerts.ChannelState) (alerts.ChannelState, error) {
		return alerts.InitialState(), boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, alerts.PhaseAlerting, s.Get(alerts.ChannelCPU).Phase)
}

func TestStore_ApplySerializesPerChannel(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	const n = 200

	// Count via LastReadingAt offsets so lost updates would show.
	base := time.Unix(0, 0)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Apply(alerts.ChannelRAM, func(st alerts.ChannelState) (alerts.ChannelState, error) {
				next := base
				if st.LastReadingAt != nil {
					next = st.LastReadingAt.Add(time.Second)
				}
				st.LastReadingAt = &next
				return st, nil
			})
		}()
	}
	wg.Wait()

	got := s.Get(alerts.ChannelRAM)
	require.NotNil(t, got.LastReadingAt)
	assert.True(t, got.LastReadingAt.Equal(base.Add((n-1)*time.Second)), "lost updates: got %v", got.LastReadingAt)
}

func TestStore_PruneAndSnapshot(t *testing.T) {
	s := NewStore()
	set := func(ch alerts.Channel) {
		_ = s.Apply(ch, func(alerts.ChannelState) (alerts.ChannelState, error) {
			return alerts.ChannelState{Phase: alerts.PhaseAlerting}, nil
		})
	}
	set(alerts.ChannelCPU)
	set(alerts.DiskChannel("/"))
	set(alerts.DiskChannel("/mnt/old"))

	removed := s.Prune(func(ch alerts.Channel) bool { return ch.Mount() != "/mnt/old" })
	assert.Equal(t, []alerts.Channel{alerts.DiskChannel("/mnt/old")}, removed)

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, alerts.ChannelCPU, snap[0].Channel)
	assert.Equal(t, alerts.DiskChannel("/"), snap[1].Channel)
}

func TestStore_ResetAll(t *testing.T) {
	s := NewStore()
	now := time.Now()
	_ = s.Apply(alerts.ChannelNetwork, func(alerts.ChannelState) (alerts.ChannelState, error) {
		return alerts.ChannelState{Phase: alerts.PhasePendingRecover, ConditionSince: &now}, nil
	})

	s.ResetAll()
	assert.True(t, s.Get(alerts.ChannelNetwork).IsInitial())
}
