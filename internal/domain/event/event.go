package event

import (
	"time"

	"github.com/google/uuid"
)

// Payload keys shared by producers and handlers
const (
	KeyDepartment     = "department"
	KeyDecision       = "decision"
	KeyActor          = "actor"
	KeyComment        = "comment"
	KeyStatus         = "status"
	KeyPreviousStatus = "previous_status"
	KeyFamily         = "family"
	KeyIdentifier     = "identifier"
	KeyAttempts       = "attempts"
)

// Event represents a domain event
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	AggregateID   int64                  `json:"aggregate_id"`
	AggregateCode string                 `json:"aggregate_code"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with auto-generated ID and timestamp
func NewEvent(eventType Type, aggregateID int64, aggregateCode string, payload map[string]interface{}) *Event {
	return NewEventWithCorrelation(eventType, aggregateID, aggregateCode, payload, uuid.NewString())
}

// NewEventWithCorrelation creates an event linked to a correlation chain
func NewEventWithCorrelation(eventType Type, aggregateID int64, aggregateCode string, payload map[string]interface{}, correlationID string) *Event {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		AggregateID:   aggregateID,
		AggregateCode: aggregateCode,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
	}
}

// WithPayload returns a copy of the event with an added payload key-value pair
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	cp := *e
	cp.Payload = newPayload
	return &cp
}

// Caused returns a follow-up event that shares this event's correlation ID
func (e *Event) Caused(eventType Type, payload map[string]interface{}) *Event {
	return NewEventWithCorrelation(eventType, e.AggregateID, e.AggregateCode, payload, e.CorrelationID)
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case string:
			return v
		case interface{ String() string }:
			return v.String()
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}
