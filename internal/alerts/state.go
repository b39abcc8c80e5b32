package alerts

import "time"

// Phase is the alert phase of a channel.
type Phase string

const (
	PhaseOK             Phase = "OK"
	PhasePendingAlert   Phase = "PENDING_ALERT"
	PhaseAlerting       Phase = "ALERTING"
	PhasePendingRecover Phase = "PENDING_RECOVER"
)

// Active reports whether the phase counts as an open alert.
func (p Phase) Active() bool {
	return p == PhaseAlerting || p == PhasePendingRecover
}

// ChannelState is the mutable alert state of one channel. Only Evaluate
// produces new values.
type ChannelState struct {
	Phase Phase `json:"phase"`

	// ConditionSince is when the tracked condition (breach while entering,
	// recovery while leaving) became continuously true.
	ConditionSince *time.Time `json:"condition_since,omitempty"`
	LastNotifiedAt *time.Time `json:"last_notified_at,omitempty"`
	LastReadingAt  *time.Time `json:"last_reading_at,omitempty"`
}

// InitialState is the state of a channel that has never been evaluated.
func InitialState() ChannelState {
	return ChannelState{Phase: PhaseOK}
}

// IsInitial reports whether s carries no history.
func (s ChannelState) IsInitial() bool {
	return (s.Phase == PhaseOK || s.Phase == "") &&
		s.ConditionSince == nil && s.LastNotifiedAt == nil && s.LastReadingAt == nil
}
