package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventType_String(t *testing.T) {
	tests := []struct {
		name     string
		et       EventType
		expected string
	}{
		{"created", EventTypeCreated, "created"},
		{"parsed", EventTypeParsed, "parsed"},
		{"approved", EventTypeApproved, "approved"},
		{"progress", EventTypeProgress, "progress"},
		{"completed", EventTypeCompleted, "completed"},
		{"failed", EventTypeFailed, "failed"},
		{"executed", EventTypeExecuted, "executed"},
		{"resolved", EventTypeResolved, "resolved"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.et))
		})
	}
}

func TestNewEvent(t *testing.T) {
	payload := map[string]interface{}{
		"jobId":     "j1",
		"processed": 42,
	}

	before := time.Now()
	evt := NewEvent(EventTypeProgress, EntityTypeBatchJob, payload)
	after := time.Now()

	assert.Equal(t, "batch_job.progress", evt.Type)
	assert.Equal(t, EntityTypeBatchJob, evt.Entity)
	assert.Equal(t, payload, evt.Payload)
	assert.True(t, !evt.Timestamp.Before(before) && !evt.Timestamp.After(after))
}

func TestEvent_JSON_Serialization(t *testing.T) {
	fixedTime := time.Date(2026, 3, 10, 10, 30, 0, 0, time.UTC)
	evt := Event{
		Type:      "settlement.created",
		Entity:    EntityTypeSettlement,
		Payload:   map[string]interface{}{"id": "STL-20260310-001"},
		Timestamp: fixedTime,
	}

	data, err := evt.ToJSON()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "settlement.created", decoded["type"])
	assert.Equal(t, "settlement", decoded["entity"])
	assert.Equal(t, "2026-03-10T10:30:00Z", decoded["timestamp"])
}

func TestEventConstructors(t *testing.T) {
	tests := []struct {
		name     string
		event    Event
		expected string
	}{
		{"batch parsed", BatchJobParsed(nil), "batch_job.parsed"},
		{"batch approved", BatchJobApproved(nil), "batch_job.approved"},
		{"batch progress", BatchJobProgress(nil), "batch_job.progress"},
		{"batch completed", BatchJobCompleted(nil), "batch_job.completed"},
		{"batch failed", BatchJobFailed(nil), "batch_job.failed"},
		{"schedule executed", ScheduledPaymentExecuted(nil), "scheduled_payment.executed"},
		{"schedule updated", ScheduledPaymentUpdated(nil), "scheduled_payment.updated"},
		{"settlement created", SettlementCreated(nil), "settlement.created"},
		{"settlement resolved", SettlementResolved(nil), "settlement.resolved"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.event.Type)
		})
	}
}
