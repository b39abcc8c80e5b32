// Package state holds the mutable alert state of every channel.
package state

import (
	"sort"
	"sync"

	"hostwatch/internal/alerts"
)

type slot struct {
	mu    sync.Mutex
	state alerts.ChannelState
}

// Store keeps one ChannelState per channel. Updates to a channel are
// serialized by that channel's own lock; the map lock is only held to find or
// create a slot.
type Store struct {
	mu    sync.RWMutex
	slots map[alerts.Channel]*slot
}

// NewStore returns an empty store. Unknown channels read as the initial state.
func NewStore() *Store {
	return &Store{slots: make(map[alerts.Channel]*slot)}
}

func (s *Store) slot(ch alerts.Channel) *slot {
	s.mu.RLock()
	sl, ok := s.slots[ch]
	s.mu.RUnlock()
	if ok {
		return sl
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok = s.slots[ch]; ok {
		return sl
	}
	sl = &slot{state: alerts.InitialState()}
	s.slots[ch] = sl
	return sl
}

// Apply runs fn with the current state of ch while holding the channel lock
// and stores the state fn returns. If fn returns an error the state is left
// unchanged.
func (s *Store) Apply(ch alerts.Channel, fn func(alerts.ChannelState) (alerts.ChannelState, error)) error {
	sl := s.slot(ch)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	next, err := fn(sl.state)
	if err != nil {
		return err
	}
	sl.state = next
	return nil
}

// Get returns the state of ch.
func (s *Store) Get(ch alerts.Channel) alerts.ChannelState {
	s.mu.RLock()
	sl, ok := s.slots[ch]
	s.mu.RUnlock()
	if !ok {
		return alerts.InitialState()
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.state
}

// Entry pairs a channel with its state.
type Entry struct {
	Channel alerts.Channel      `json:"channel"`
	State   alerts.ChannelState `json:"state"`
}

// Snapshot returns every known channel state sorted by channel.
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	chans := make([]alerts.Channel, 0, len(s.slots))
	slots := make([]*slot, 0, len(s.slots))
	for ch, sl := range s.slots {
		chans = append(chans, ch)
		slots = append(slots, sl)
	}
	s.mu.RUnlock()

	out := make([]Entry, len(chans))
	for i, sl := range slots {
		sl.mu.Lock()
		out[i] = Entry{Channel: chans[i], State: sl.state}
		sl.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

// Prune removes every channel for which keep returns false and returns the
// removed channels.
func (s *Store) Prune(keep func(alerts.Channel) bool) []alerts.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []alerts.Channel
	for ch := range s.slots {
		if !keep(ch) {
			delete(s.slots, ch)
			removed = append(removed, ch)
		}
	}
	return removed
}

// ResetAll puts every channel back to the initial state.
func (s *Store) ResetAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sl := range s.slots {
		sl.mu.Lock()
		sl.state = alerts.InitialState()
		sl.mu.Unlock()
	}
}
