package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sheetsync/sheetsync/internal/core"
	"github.com/sheetsync/sheetsync/internal/core/resilience"
	"github.com/sheetsync/sheetsync/internal/dlq"
)

// DefaultTickInterval is how often the orchestrator scans active configs
// when no interval is configured (spec.md §4.10).
const DefaultTickInterval = 10 * time.Second

// Orchestrator drives the periodic tick loop: for every active config it
// runs the S->T worker (if due), then the T->S worker (if due), each
// through the retry wrapper, pushing exhausted failures to the
// dead-letter sink. Grounded on the teacher's ticker-based sync worker
// (immediate run, then ticker loop, with a stop channel for graceful
// shutdown).
type Orchestrator struct {
	deps         Deps
	sheetWorker  *SheetToTableWorker
	tableWorker  *TableToSheetWorker
	tickInterval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewOrchestrator builds an Orchestrator from deps. A non-positive
// tickInterval falls back to DefaultTickInterval.
func NewOrchestrator(deps Deps, tickInterval time.Duration) *Orchestrator {
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	if deps.DLQ == nil {
		deps.DLQ = dlq.New(dlq.DefaultCapacity)
	}
	return &Orchestrator{
		deps:         deps,
		sheetWorker:  NewSheetToTableWorker(deps),
		tableWorker:  NewTableToSheetWorker(deps),
		tickInterval: tickInterval,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start launches the periodic tick loop in a background goroutine and
// runs one cycle immediately, per spec.md §4.10. Non-blocking.
func (o *Orchestrator) Start(ctx context.Context) {
	go o.run(ctx)
	o.deps.logger().Info("orchestrator started", "tick_interval", o.tickInterval)
}

func (o *Orchestrator) run(ctx context.Context) {
	defer close(o.doneCh)

	ticker := time.NewTicker(o.tickInterval)
	defer ticker.Stop()

	o.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

// Stop signals the tick loop to exit and blocks until it has. Safe to
// call at most once.
func (o *Orchestrator) Stop() {
	close(o.stopCh)
	<-o.doneCh
}

// tick lists every active config and runs its due directions. Each
// config is independent; a failure in one does not stop the others
// (spec.md §4.10, §5 "each config is effectively a shard").
func (o *Orchestrator) tick(ctx context.Context) {
	configs, err := o.deps.Metadata.ListActiveConfigs(ctx)
	if err != nil {
		o.deps.logger().Error("orchestrator: list active configs failed", "error", err)
		return
	}

	for _, cfg := range configs {
		o.runConfig(ctx, cfg)
	}
}

func (o *Orchestrator) runConfig(ctx context.Context, cfg core.SyncConfig) {
	state, err := o.deps.Metadata.GetState(ctx, cfg.ID)
	if err != nil {
		o.deps.logger().Error("orchestrator: get state failed", "config_id", cfg.ID, "error", err)
		return
	}

	now := o.deps.now()
	interval := cfg.Interval()

	if state.SheetDue(interval, now) {
		o.runDirection(ctx, cfg, core.DirectionSheetToTable)
	}
	if state.TableDue(interval, now) {
		o.runDirection(ctx, cfg, core.DirectionTableToSheet)
	}
}

// runDirection runs one direction through the retry wrapper, dead-lettering
// on exhausted retries (spec.md §4.10).
func (o *Orchestrator) runDirection(ctx context.Context, cfg core.SyncConfig, direction core.Direction) {
	var lastErr error
	attempts := 0
	firstAttempt := o.deps.now()

	policy := o.deps.RetryPolicy
	if policy == nil {
		policy = resilience.DefaultRetryPolicy()
	}

	err := resilience.WithRetry(ctx, policy, func() error {
		attempts++
		err := o.runWorker(ctx, cfg, direction)
		lastErr = err
		return err
	})
	if err == nil {
		return
	}

	reason := classifyFailure(lastErr)
	o.deps.logger().Error("orchestrator: direction exhausted retries, dead-lettering",
		"config_id", cfg.ID, "direction", direction, "attempts", attempts, "reason", reason, "error", lastErr)

	o.deps.DLQ.Push(dlq.Job{
		ConfigID:  cfg.ID,
		Direction: direction,
		Reason:    reason,
		FailedAt:  firstAttempt,
		Attempts:  attempts,
		LastError: lastErr.Error(),
	})
	o.deps.metrics().SetDLQDepth(o.deps.DLQ.Len())
	o.deps.events().JobDeadLettered(cfg.ID, direction, reason)
}

func (o *Orchestrator) runWorker(ctx context.Context, cfg core.SyncConfig, direction core.Direction) error {
	switch direction {
	case core.DirectionSheetToTable:
		return o.sheetWorker.Run(ctx, cfg)
	case core.DirectionTableToSheet:
		return o.tableWorker.Run(ctx, cfg)
	default:
		return errors.New("orchestrator: unknown direction " + string(direction))
	}
}

// TriggerNow runs direction for configID immediately, bypassing the
// interval check (spec.md §4.10's manual-trigger entry point). Still goes
// through the retry wrapper and dead-letter sink like a normal tick.
func (o *Orchestrator) TriggerNow(ctx context.Context, configID string, direction core.Direction) error {
	cfg, err := o.deps.Metadata.GetConfig(ctx, configID)
	if err != nil {
		return err
	}
	o.runDirection(ctx, cfg, direction)
	return nil
}

// classifyFailure maps an exhausted-retry error to one of the dead-letter
// failure reasons spec.md §4.7 names: "timeout", "non_retryable",
// "max_retries".
func classifyFailure(err error) string {
	if err == nil {
		return "max_retries"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timed out") {
		return "timeout"
	}
	if strings.Contains(msg, "non-retryable") || strings.Contains(msg, "non_retryable") {
		return "non_retryable"
	}
	return "max_retries"
}
