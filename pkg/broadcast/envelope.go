// Package broadcast delivers status envelopes to WebSocket clients subscribed to a project.
package broadcast

import (
	"context"
	"time"

	"github.com/dukex/devflow/pkg/models"
)

// TimestampLayout is ISO-8601 in UTC with millisecond precision and a Z suffix.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

type EnvelopeOption func(*models.Envelope)

// WithTimestamp overrides the send-time stamp.
func WithTimestamp(ts time.Time) EnvelopeOption {
	return func(envelope *models.Envelope) {
		envelope.Ts = ts.UTC().Format(TimestampLayout)
	}
}

// NewEnvelope is the single constructor for outbound frames.
func NewEnvelope(envelopeType models.EnvelopeType, projectID string, payload any, opts ...EnvelopeOption) models.Envelope {
	if payload == nil {
		payload = map[string]any{}
	}

	envelope := models.Envelope{
		Type:      envelopeType,
		Ts:        time.Now().UTC().Format(TimestampLayout),
		ProjectID: projectID,
		Payload:   payload,
	}

	for _, opt := range opts {
		opt(&envelope)
	}

	return envelope
}

// Broadcaster hands an envelope to every subscriber of its project.
type Broadcaster interface {
	Broadcast(ctx context.Context, envelope models.Envelope) error
}
