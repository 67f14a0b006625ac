package websocket

import (
	"time"

	"github.com/sheetsync/sheetsync/internal/core"
	"github.com/sheetsync/sheetsync/internal/events"
)

// Sink implements core.EventSink by publishing to an EventBus. Publish
// failures (a full channel) are swallowed: per spec.md §6 an event sink
// never blocks or fails the caller on delivery.
type Sink struct {
	bus EventBus
}

// NewSink wraps bus as a core.EventSink.
func NewSink(bus EventBus) *Sink {
	return &Sink{bus: bus}
}

var _ core.EventSink = (*Sink)(nil)

func (s *Sink) CycleStarted(configID string, direction core.Direction) {
	s.publish(events.EventTypeCycleStarted, configID, map[string]interface{}{
		"direction": string(direction),
	})
}

func (s *Sink) CycleCompleted(configID string, direction core.Direction, rowsAffected, conflicts int, duration time.Duration) {
	s.publish(events.EventTypeCycleCompleted, configID, map[string]interface{}{
		"direction":     string(direction),
		"rows_affected": rowsAffected,
		"conflicts":     conflicts,
		"duration_ms":   duration.Milliseconds(),
	})
}

func (s *Sink) CycleFailed(configID string, direction core.Direction, err error) {
	data := map[string]interface{}{"direction": string(direction)}
	if err != nil {
		data["error"] = err.Error()
	}
	s.publish(events.EventTypeCycleFailed, configID, data)
}

func (s *Sink) ConflictDetected(configID string, c core.Conflict) {
	s.publish(events.EventTypeConflictDetected, configID, map[string]interface{}{
		"row_key":  c.RowKey,
		"strategy": string(c.Strategy),
	})
}

func (s *Sink) JobDeadLettered(configID string, direction core.Direction, reason string) {
	s.publish(events.EventTypeJobDeadLettered, configID, map[string]interface{}{
		"direction": string(direction),
		"reason":    reason,
	})
}

func (s *Sink) publish(eventType, configID string, data map[string]interface{}) {
	if s.bus == nil {
		return
	}
	event := events.NewEvent(eventType, configID, data)
	s.bus.Publish(*event) //nolint:errcheck
}
