// Package storage keeps the reading history used to draw charts.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hostwatch/internal/alerts"
)

var ErrUnknownRange = errors.New("unknown range")

// Point is one recorded reading.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// History persists readings per channel.
type History interface {
	Record(ctx context.Context, ch alerts.Channel, value float64, at time.Time) error
	// Range returns the points of ch with from <= timestamp <= to, oldest first.
	Range(ctx context.Context, ch alerts.Channel, from, to time.Time) ([]Point, error)
	// Prune deletes points older than before and returns how many were removed.
	Prune(ctx context.Context, before time.Time) (int64, error)
	Reset(ctx context.Context) error
	Close() error
}

// MaxChartPoints bounds the number of points returned for a chart.
const MaxChartPoints = 500

var ranges = map[string]time.Duration{
	"1h":  time.Hour,
	"6h":  6 * time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// DefaultRange is used when a chart request names no range.
const DefaultRange = "24h"

// ParseRange converts a chart range name such as "24h" or "7d" to a window.
func ParseRange(s string) (time.Duration, error) {
	if s == "" {
		s = DefaultRange
	}
	d, ok := ranges[s]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRange, s)
	}
	return d, nil
}

// Chart returns the last window of ch ending at now, downsampled to at most
// MaxChartPoints.
func Chart(ctx context.Context, h History, ch alerts.Channel, window time.Duration, now time.Time) ([]Point, error) {
	pts, err := h.Range(ctx, ch, now.Add(-window), now)
	if err != nil {
		return nil, err
	}
	return Downsample(pts, MaxChartPoints), nil
}

// Downsample averages consecutive points into at most max buckets. Each bucket
// is stamped with the timestamp of its middle point.
func Downsample(pts []Point, max int) []Point {
	if max <= 0 || len(pts) <= max {
		return pts
	}
	size := (len(pts) + max - 1) / max
	out := make([]Point, 0, max)
	for start := 0; start < len(pts); start += size {
		end := start + size
		if end > len(pts) {
			end = len(pts)
		}
		var sum float64
		for _, p := range pts[start:end] {
			sum += p.Value
		}
		out = append(out, Point{
			Timestamp: pts[start+(end-start)/2].Timestamp,
			Value:     sum / float64(end-start),
		})
	}
	return out
}
