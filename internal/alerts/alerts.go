// Package alerts implements the per-channel alert decision engine: a pure
// state machine that turns readings into phase transitions and notification
// intents.
package alerts

import (
	"errors"
	"math"
	"time"
)

// Evaluation errors
var (
	ErrInvalidPolicy  = errors.New("invalid policy")
	ErrUnknownChannel = errors.New("unknown channel")
	ErrStaleReading   = errors.New("stale reading")
)

// Reading is one sampled value for a channel. IsBreach is decided by the
// caller, see IsBreach for threshold channels.
type Reading struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	IsBreach  bool      `json:"is_breach"`
}

// IsBreach reports whether value violates threshold for a threshold-based
// metric. A value equal to the threshold is not a breach.
func IsBreach(metric Metric, value, threshold float64) bool {
	if metric == MetricNetwork {
		return false
	}
	if math.IsNaN(value) {
		return false
	}
	return value > threshold
}

// ConnectivityReading builds a network reading from a ping result. The value
// is 1 when the host answered and 0 otherwise.
func ConnectivityReading(ok bool, at time.Time) Reading {
	r := Reading{Timestamp: at, IsBreach: !ok}
	if ok {
		r.Value = 1
	}
	return r
}
