package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventTypeCreated   EventType = "created"
	EventTypeUpdated   EventType = "updated"
	EventTypeParsed    EventType = "parsed"
	EventTypeApproved  EventType = "approved"
	EventTypeProgress  EventType = "progress"
	EventTypeCompleted EventType = "completed"
	EventTypeFailed    EventType = "failed"
	EventTypeExecuted  EventType = "executed"
	EventTypeResolved  EventType = "resolved"
)

// EntityType represents the type of entity the event is about
type EntityType string

const (
	EntityTypeBatchJob         EntityType = "batch_job"
	EntityTypeScheduledPayment EntityType = "scheduled_payment"
	EntityTypeSettlement       EntityType = "settlement"
	EntityTypeFailedItem       EntityType = "failed_item"
)

// Event represents a WebSocket event message sent to clients
// Format: { type, entity, payload, timestamp }
type Event struct {
	Type      string      `json:"type"`      // Combined type e.g. "batch_job.completed"
	Entity    EntityType  `json:"entity"`    // Entity type e.g. "batch_job"
	Payload   interface{} `json:"payload"`   // Full entity data
	Timestamp time.Time   `json:"timestamp"` // Event timestamp
}

// NewEvent creates a new event with the given type, entity, and payload
func NewEvent(eventType EventType, entityType EntityType, payload interface{}) Event {
	return Event{
		Type:      fmt.Sprintf("%s.%s", entityType, eventType),
		Entity:    entityType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON serializes the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// BatchJobParsed creates a batch_job.parsed event
func BatchJobParsed(payload interface{}) Event {
	return NewEvent(EventTypeParsed, EntityTypeBatchJob, payload)
}

// BatchJobApproved creates a batch_job.approved event
func BatchJobApproved(payload interface{}) Event {
	return NewEvent(EventTypeApproved, EntityTypeBatchJob, payload)
}

// BatchJobProgress creates a batch_job.progress event
func BatchJobProgress(payload interface{}) Event {
	return NewEvent(EventTypeProgress, EntityTypeBatchJob, payload)
}

// BatchJobCompleted creates a batch_job.completed event
func BatchJobCompleted(payload interface{}) Event {
	return NewEvent(EventTypeCompleted, EntityTypeBatchJob, payload)
}

// BatchJobFailed creates a batch_job.failed event
func BatchJobFailed(payload interface{}) Event {
	return NewEvent(EventTypeFailed, EntityTypeBatchJob, payload)
}

// ScheduledPaymentExecuted creates a scheduled_payment.executed event
func ScheduledPaymentExecuted(payload interface{}) Event {
	return NewEvent(EventTypeExecuted, EntityTypeScheduledPayment, payload)
}

// ScheduledPaymentUpdated creates a scheduled_payment.updated event
func ScheduledPaymentUpdated(payload interface{}) Event {
	return NewEvent(EventTypeUpdated, EntityTypeScheduledPayment, payload)
}

// SettlementCreated creates a settlement.created event
func SettlementCreated(payload interface{}) Event {
	return NewEvent(EventTypeCreated, EntityTypeSettlement, payload)
}

// SettlementResolved creates a settlement.resolved event
func SettlementResolved(payload interface{}) Event {
	return NewEvent(EventTypeResolved, EntityTypeSettlement, payload)
}
