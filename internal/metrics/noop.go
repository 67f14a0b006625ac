package metrics

import (
	"time"

	"github.com/sheetsync/sheetsync/internal/core"
)

// NoopSink discards every metric. Used when no Sink has been wired (tests,
// or a deployment that doesn't scrape Prometheus), so callers never have
// to nil-check their core.MetricSink.
type NoopSink struct{}

var _ core.MetricSink = NoopSink{}

func (NoopSink) RecordCycle(direction core.Direction, status core.HistoryStatus, duration time.Duration) {
}
func (NoopSink) RecordRemoteAPICall(operation string, status string) {}
func (NoopSink) RecordConflict(strategy core.ConflictPolicy)         {}
func (NoopSink) SetDLQDepth(n int)                                   {}
func (NoopSink) SetBreakerState(target string, state string)         {}
