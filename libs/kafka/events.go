package kafka

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeSecurityEvent = "storefront.security_event"
	EventVersion           = 1
)

type Envelope struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	EventVersion  int       `json:"event_version"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

func NewEnvelope(eventType string, version int, correlationID string) (Envelope, error) {
	if eventType == "" {
		return Envelope{}, fmt.Errorf("event_type is required")
	}
	if version <= 0 {
		return Envelope{}, fmt.Errorf("event_version must be positive")
	}

	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  version,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	}, nil
}

// SecurityEvent mirrors audit-relevant activity records onto the bus so the
// fraud tooling can consume them without polling the audit table.
type SecurityEvent struct {
	Envelope
	Actor          string         `json:"actor,omitempty"`
	Action         string         `json:"action"`
	Outcome        string         `json:"outcome"`
	NetworkAddress string         `json:"network_address,omitempty"`
	Path           string         `json:"path,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
}
