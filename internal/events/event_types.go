package events

import (
	"time"

	"github.com/spec-kit/loyalty-scanner/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventPayloadScanned   EventType = "payload_scanned"
	EventOperatorNotified EventType = "operator_notified"
)

// Event represents an event emitted by the scan terminal.
type Event struct {
	ID         string      `json:"id"`
	Type       EventType   `json:"type"`
	MerchantID string      `json:"merchant_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Payload    interface{} `json:"payload"`
}

// PayloadScannedPayload payload.
type PayloadScannedPayload struct {
	SessionID string             `json:"session_id"`
	Kind      domain.PayloadKind `json:"kind"`
}

// OperatorNotifiedPayload payload.
type OperatorNotifiedPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
