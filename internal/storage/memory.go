package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"hostwatch/internal/alerts"
)

// Memory is an in-process History. Points are lost on restart.
type Memory struct {
	mu     sync.RWMutex
	series map[alerts.Channel][]Point
}

func NewMemory() *Memory {
	return &Memory{series: make(map[alerts.Channel][]Point)}
}

func (m *Memory) Record(_ context.Context, ch alerts.Channel, value float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pts := m.series[ch]
	p := Point{Timestamp: at, Value: value}
	if n := len(pts); n == 0 || !at.Before(pts[n-1].Timestamp) {
		m.series[ch] = append(pts, p)
		return nil
	}
	// keep the series ordered if a reading arrives late
	i := sort.Search(len(pts), func(i int) bool { return pts[i].Timestamp.After(at) })
	pts = append(pts, Point{})
	copy(pts[i+1:], pts[i:])
	pts[i] = p
	m.series[ch] = pts
	return nil
}

func (m *Memory) Range(_ context.Context, ch alerts.Channel, from, to time.Time) ([]Point, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pts := m.series[ch]
	lo := sort.Search(len(pts), func(i int) bool { return !pts[i].Timestamp.Before(from) })
	hi := sort.Search(len(pts), func(i int) bool { return pts[i].Timestamp.After(to) })
	if lo >= hi {
		return []Point{}, nil
	}
	out := make([]Point, hi-lo)
	copy(out, pts[lo:hi])
	return out, nil
}

func (m *Memory) Prune(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for ch, pts := range m.series {
		i := sort.Search(len(pts), func(i int) bool { return !pts[i].Timestamp.Before(before) })
		if i == 0 {
			continue
		}
		removed += int64(i)
		if i == len(pts) {
			delete(m.series, ch)
			continue
		}
		m.series[ch] = append([]Point(nil), pts[i:]...)
	}
	return removed, nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	m.series = make(map[alerts.Channel][]Point)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
