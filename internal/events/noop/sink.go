// Package noop provides the default core.EventSink: one that discards
// every lifecycle event. Used when no websocket.Sink (or other observer)
// has been wired, so the engine never has to nil-check its EventSink.
package noop

import (
	"time"

	"github.com/sheetsync/sheetsync/internal/core"
)

// Sink discards every event.
type Sink struct{}

var _ core.EventSink = Sink{}

func (Sink) CycleStarted(configID string, direction core.Direction)  {}
func (Sink) CycleCompleted(configID string, direction core.Direction, rowsAffected, conflicts int, duration time.Duration) {
}
func (Sink) CycleFailed(configID string, direction core.Direction, err error) {}
func (Sink) ConflictDetected(configID string, c core.Conflict)               {}
func (Sink) JobDeadLettered(configID string, direction core.Direction, reason string) {
}
