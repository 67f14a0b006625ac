// Package events provides the real-time event broadcasting shape for sync
// lifecycle notifications (spec.md §6): cycle start/completion/failure,
// conflict detection, and dead-lettered jobs.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a real-time event broadcast to subscribers.
type Event struct {
	// Type is the event type (cycle_started, cycle_completed, etc.)
	Type string `json:"type"`

	// ID is a unique event ID (UUID)
	ID string `json:"id"`

	// Data is the event payload (varies by event type)
	Data map[string]interface{} `json:"data"`

	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`

	// ConfigID is the sync configuration the event concerns
	ConfigID string `json:"config_id"`

	// Sequence is a sequence number for event ordering (monotonically increasing)
	Sequence int64 `json:"sequence"`
}

// EventType constants for sync lifecycle events (spec.md §6).
const (
	EventTypeCycleStarted     = "cycle_started"
	EventTypeCycleCompleted   = "cycle_completed"
	EventTypeCycleFailed      = "cycle_failed"
	EventTypeConflictDetected = "conflict_detected"
	EventTypeJobDeadLettered  = "job_dead_lettered"
)

// NewEvent creates a new Event with the given type, data, and config ID.
func NewEvent(eventType, configID string, data map[string]interface{}) *Event {
	return &Event{
		Type:      eventType,
		ID:        uuid.New().String(),
		Data:      data,
		Timestamp: time.Now(),
		ConfigID:  configID,
		Sequence:  0, // set by the broadcaster
	}
}
