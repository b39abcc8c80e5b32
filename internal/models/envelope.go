// Package models holds the wire types shared by the dispatch path.
package models

import (
	"time"

	"hostwatch/internal/alerts"
)

// Envelope is a notification intent as delivered to consumers.
type Envelope struct {
	Intent  alerts.Intent `json:"intent"`
	Message string        `json:"message"`

	Host      string    `json:"host"`
	EmittedAt time.Time `json:"emitted_at"`
	// PartitionKey keeps the intents of one channel in order.
	PartitionKey string `json:"partition_key"`
}

// NewEnvelope wraps an intent for delivery from host.
func NewEnvelope(in alerts.Intent, host string) *Envelope {
	return &Envelope{
		Intent:       in,
		Message:      in.Message(),
		Host:         host,
		EmittedAt:    time.Now().UTC(),
		PartitionKey: host + "/" + string(in.Channel),
	}
}
