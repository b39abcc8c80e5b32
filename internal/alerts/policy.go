package alerts

import (
	"fmt"
	"math"
	"time"
)

// ReminderUnit is the unit of a reminder interval.
type ReminderUnit string

const (
	UnitSeconds ReminderUnit = "seconds"
	UnitMinutes ReminderUnit = "minutes"
	UnitHours   ReminderUnit = "hours"
	UnitDays    ReminderUnit = "days"
)

// Seconds returns the number of seconds in one unit. An empty unit counts as
// seconds.
func (u ReminderUnit) Seconds() (float64, bool) {
	switch u {
	case UnitSeconds, "":
		return 1, true
	case UnitMinutes:
		return 60, true
	case UnitHours:
		return 3600, true
	case UnitDays:
		return 86400, true
	default:
		return 0, false
	}
}

// Normalize converts an interval expressed in unit to a duration.
func Normalize(interval float64, unit ReminderUnit) (time.Duration, error) {
	mult, ok := unit.Seconds()
	if !ok {
		return 0, fmt.Errorf("%w: unknown reminder unit %q", ErrInvalidPolicy, unit)
	}
	return seconds(interval * mult), nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Policy is the alert configuration of one channel. It is passed by value;
// the evaluator never retains it.
type Policy struct {
	Enabled   bool    `json:"enabled" yaml:"enabled"`
	Threshold float64 `json:"threshold" yaml:"threshold" validate:"finite"`

	// HysteresisDuration is in seconds.
	HysteresisEnabled  bool    `json:"hysteresis_enabled" yaml:"hysteresis_enabled"`
	HysteresisDuration float64 `json:"hysteresis_duration" yaml:"hysteresis_duration" validate:"finite,gte=0"`

	ReminderEnabled  bool         `json:"reminder_enabled" yaml:"reminder_enabled"`
	ReminderInterval float64      `json:"reminder_interval" yaml:"reminder_interval" validate:"finite"`
	ReminderUnit     ReminderUnit `json:"reminder_unit" yaml:"reminder_unit" validate:"omitempty,oneof=seconds minutes hours days"`
}

// Validate checks the invariants the evaluator depends on.
func (p Policy) Validate() error {
	if math.IsNaN(p.Threshold) || math.IsInf(p.Threshold, 0) {
		return fmt.Errorf("%w: threshold must be finite", ErrInvalidPolicy)
	}
	if math.IsNaN(p.HysteresisDuration) || math.IsInf(p.HysteresisDuration, 0) || p.HysteresisDuration < 0 {
		return fmt.Errorf("%w: hysteresis_duration must be a finite number >= 0", ErrInvalidPolicy)
	}
	if _, ok := p.ReminderUnit.Seconds(); !ok {
		return fmt.Errorf("%w: unknown reminder unit %q", ErrInvalidPolicy, p.ReminderUnit)
	}
	if p.ReminderEnabled {
		if math.IsNaN(p.ReminderInterval) || math.IsInf(p.ReminderInterval, 0) || p.ReminderInterval <= 0 {
			return fmt.Errorf("%w: reminder_interval must be > 0 when reminders are enabled", ErrInvalidPolicy)
		}
	}
	return nil
}

// Hold is how long a condition must persist before the phase changes. It is
// zero when hysteresis is disabled.
func (p Policy) Hold() time.Duration {
	if !p.HysteresisEnabled {
		return 0
	}
	return seconds(p.HysteresisDuration)
}

// ReminderEvery is the minimum spacing between notifications while alerting,
// or zero when reminders are off.
func (p Policy) ReminderEvery() time.Duration {
	if !p.ReminderEnabled {
		return 0
	}
	d, err := Normalize(p.ReminderInterval, p.ReminderUnit)
	if err != nil {
		return 0
	}
	return d
}
