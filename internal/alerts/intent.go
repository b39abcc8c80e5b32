package alerts

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind is the type of a notification.
type Kind string

const (
	KindStart    Kind = "ALERT_START"
	KindReminder Kind = "ALERT_REMINDER"
	KindRecover  Kind = "ALERT_RECOVER"
)

// Intent is a request to notify operators. It carries no state.
type Intent struct {
	ID        string    `json:"id"`
	Channel   Channel   `json:"channel"`
	Kind      Kind      `json:"kind"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
	Test      bool      `json:"test,omitempty"`
}

func newIntent(ch Channel, kind Kind, r Reading, p Policy) *Intent {
	return &Intent{
		ID:        uuid.NewString(),
		Channel:   ch,
		Kind:      kind,
		Value:     r.Value,
		Threshold: p.Threshold,
		Timestamp: r.Timestamp,
	}
}

// Message renders the operator-facing text of the intent.
func (i Intent) Message() string {
	ts := i.Timestamp.Format("2006-01-02 15:04:05")

	var subject, detail string
	switch i.Channel.Metric() {
	case MetricCPU:
		subject = "CPU usage"
		detail = fmt.Sprintf("%.1f%% (threshold %.1f%%)", i.Value, i.Threshold)
	case MetricRAM:
		subject = "RAM usage"
		detail = fmt.Sprintf("%.1f%% (threshold %.1f%%)", i.Value, i.Threshold)
	case MetricTemperature:
		subject = "CPU temperature"
		detail = fmt.Sprintf("%.1f°C (threshold %.1f°C)", i.Value, i.Threshold)
	case MetricDisk:
		subject = fmt.Sprintf("Disk usage on %s", i.Channel.Mount())
		detail = fmt.Sprintf("%.1f%% (threshold %.1f%%)", i.Value, i.Threshold)
	case MetricNetwork:
		subject = "Network connection"
	default:
		subject = string(i.Channel)
		detail = fmt.Sprintf("%.2f (threshold %.2f)", i.Value, i.Threshold)
	}

	var msg string
	switch {
	case i.Channel.Metric() == MetricNetwork && i.Kind == KindRecover:
		msg = fmt.Sprintf("%s restored at %s", subject, ts)
	case i.Channel.Metric() == MetricNetwork && i.Kind == KindReminder:
		msg = fmt.Sprintf("Reminder: %s still down at %s", subject, ts)
	case i.Channel.Metric() == MetricNetwork:
		msg = fmt.Sprintf("%s lost at %s", subject, ts)
	case i.Kind == KindRecover:
		msg = fmt.Sprintf("%s back to normal: %s at %s", subject, detail, ts)
	case i.Kind == KindReminder:
		msg = fmt.Sprintf("Reminder: %s still above threshold: %s at %s", subject, detail, ts)
	default:
		msg = fmt.Sprintf("%s alert: %s at %s", subject, detail, ts)
	}
	if i.Test {
		msg = "[TEST] " + msg
	}
	return msg
}
