// Package engine implements the two directional workers and the
// orchestrator that ties every collaborator together into one sync cycle
// per configuration per tick (spec.md §4.8/§4.9/§4.10).
package engine

import (
	"log/slog"
	"time"

	"github.com/sheetsync/sheetsync/internal/core"
	"github.com/sheetsync/sheetsync/internal/core/resilience"
	"github.com/sheetsync/sheetsync/internal/dlq"
	"github.com/sheetsync/sheetsync/internal/events/noop"
	"github.com/sheetsync/sheetsync/internal/metrics"
)

// ChangeLogBatchSize bounds how many change-log rows a single T->S run
// consumes (spec.md §4.9).
const ChangeLogBatchSize = 1000

// Deps are the collaborators every worker and the orchestrator share.
// Spreadsheet, TargetTable, Idempotency and Metadata are required. When
// nil, Events and Metrics fall back to no-op sinks, Logger to
// slog.Default and Now to time.Now; NewOrchestrator fills in a default
// DLQ, and a nil RetryPolicy runs with resilience.DefaultRetryPolicy.
type Deps struct {
	Spreadsheet   core.SpreadsheetAdapter
	TargetTable   core.TargetTableAdapter
	Idempotency   core.IdempotencyStore
	Metadata      core.MetadataStore
	Events        core.EventSink
	Metrics       core.MetricSink
	DLQ           *dlq.Sink
	RetryPolicy   *resilience.RetryPolicy
	Logger        *slog.Logger
	Now           func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d Deps) events() core.EventSink {
	if d.Events != nil {
		return d.Events
	}
	return noop.Sink{}
}

func (d Deps) metrics() core.MetricSink {
	if d.Metrics != nil {
		return d.Metrics
	}
	return metrics.NoopSink{}
}
