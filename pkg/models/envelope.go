package models

// EnvelopeType tags every outbound WebSocket frame.
type EnvelopeType string

const (
	EnvelopeExecutionUpdate       EnvelopeType = "execution-update"
	EnvelopeExecutionLog          EnvelopeType = "execution-log"
	EnvelopeError                 EnvelopeType = "error"
	EnvelopeCompletion            EnvelopeType = "completion"
	EnvelopeConnectionEstablished EnvelopeType = "connection-established"
	EnvelopeMessageReceived       EnvelopeType = "message-received"
)

// Envelope is the wire record for every WebSocket frame. The routing key is always projectId.
type Envelope struct {
	Type      EnvelopeType `json:"type"`
	Ts        string       `json:"ts"`
	ProjectID string       `json:"projectId"`
	Payload   any          `json:"payload"`
}
