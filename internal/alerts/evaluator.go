package alerts

import (
	"fmt"
	"math"
	"time"
)

// Result is the outcome of one evaluation.
type Result struct {
	Next   ChannelState
	Intent *Intent
}

// Evaluate runs one tick of the alert state machine for a channel. It is pure:
// the caller owns state and persists Next.
//
// A disabled policy always yields the initial state and no intent. A reading
// older than the last processed one returns ErrStaleReading and Next equal to
// state, so the caller can discard it. Invalid policies and non-finite values
// return ErrInvalidPolicy and the initial state.
func Evaluate(ch Channel, r Reading, p Policy, state ChannelState) (Result, error) {
	if !p.Enabled {
		return Result{Next: InitialState()}, nil
	}
	if err := p.Validate(); err != nil {
		return Result{Next: InitialState()}, err
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return Result{Next: InitialState()}, fmt.Errorf("%w: reading value %v is not finite", ErrInvalidPolicy, r.Value)
	}
	if state.LastReadingAt != nil && r.Timestamp.Before(*state.LastReadingAt) {
		return Result{Next: state}, fmt.Errorf("%w: %s at %s is older than %s",
			ErrStaleReading, ch, r.Timestamp.Format(time.RFC3339Nano), state.LastReadingAt.Format(time.RFC3339Nano))
	}
	if state.Phase == "" {
		state.Phase = PhaseOK
	}

	now := r.Timestamp
	hold := p.Hold()
	next := state
	next.LastReadingAt = &now

	var kind Kind

	switch state.Phase {
	case PhaseOK, PhasePendingAlert:
		if !r.IsBreach {
			next.Phase = PhaseOK
			next.ConditionSince = nil
			break
		}
		since := now
		if state.Phase == PhasePendingAlert && state.ConditionSince != nil {
			since = *state.ConditionSince
		}
		if now.Sub(since) >= hold {
			next.Phase = PhaseAlerting
			next.ConditionSince = nil
			next.LastNotifiedAt = &now
			kind = KindStart
		} else {
			next.Phase = PhasePendingAlert
			next.ConditionSince = &since
		}

	case PhaseAlerting, PhasePendingRecover:
		if r.IsBreach {
			next.Phase = PhaseAlerting
			next.ConditionSince = nil
			if reminderDue(p, state.LastNotifiedAt, now) {
				next.LastNotifiedAt = &now
				kind = KindReminder
			}
			break
		}
		since := now
		if state.Phase == PhasePendingRecover && state.ConditionSince != nil {
			since = *state.ConditionSince
		}
		if now.Sub(since) >= hold {
			next.Phase = PhaseOK
			next.ConditionSince = nil
			next.LastNotifiedAt = &now
			kind = KindRecover
		} else {
			next.Phase = PhasePendingRecover
			next.ConditionSince = &since
		}

	default:
		return Result{Next: InitialState()}, fmt.Errorf("%w: unknown phase %q", ErrInvalidPolicy, state.Phase)
	}

	res := Result{Next: next}
	if kind != "" {
		res.Intent = newIntent(ch, kind, r, p)
	}
	return res, nil
}

func reminderDue(p Policy, last *time.Time, now time.Time) bool {
	every := p.ReminderEvery()
	if every <= 0 {
		return false
	}
	if last == nil {
		return true
	}
	return now.Sub(*last) >= every
}
