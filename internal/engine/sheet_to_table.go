package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sheetsync/sheetsync/internal/changedetect"
	"github.com/sheetsync/sheetsync/internal/conflict"
	"github.com/sheetsync/sheetsync/internal/core"
)

// SheetToTableWorker implements spec.md §4.8: project the spreadsheet's
// current contents into the target table, applying loop-prevention via the
// from_sheet write-tag.
type SheetToTableWorker struct {
	Deps Deps
}

// NewSheetToTableWorker builds a worker from deps.
func NewSheetToTableWorker(deps Deps) *SheetToTableWorker {
	return &SheetToTableWorker{Deps: deps}
}

// Run executes one S->T cycle for cfg. On any failure, history is
// finalized as failed and the error is returned for the orchestrator's
// retry wrapper to see.
func (w *SheetToTableWorker) Run(ctx context.Context, cfg core.SyncConfig) error {
	deps := w.Deps
	now := deps.now()
	logger := deps.logger().With("config_id", cfg.ID, "direction", core.DirectionSheetToTable)

	deps.events().CycleStarted(cfg.ID, core.DirectionSheetToTable)

	historyID, err := deps.Metadata.CreateHistory(ctx, core.SyncHistory{
		ConfigID:  cfg.ID,
		Direction: core.DirectionSheetToTable,
		StartedAt: now,
	})
	if err != nil {
		return fmt.Errorf("sheet_to_table: create history: %w", err)
	}

	result, err := w.run(ctx, cfg, historyID, now, logger)
	duration := time.Since(now)

	if err != nil {
		logger.Error("sheet_to_table: cycle failed", "error", err)
		_ = deps.Metadata.FinalizeHistory(ctx, historyID, core.HistoryFailed, 0, 0, err.Error(), "")
		deps.metrics().RecordCycle(core.DirectionSheetToTable, core.HistoryFailed, duration)
		deps.events().CycleFailed(cfg.ID, core.DirectionSheetToTable, err)
		return err
	}

	deps.metrics().RecordCycle(core.DirectionSheetToTable, core.HistorySuccess, duration)
	deps.events().CycleCompleted(cfg.ID, core.DirectionSheetToTable, result.rowsAffected, result.conflicts, duration)
	return nil
}

type cycleResult struct {
	rowsAffected int
	conflicts    int
}

func (w *SheetToTableWorker) run(ctx context.Context, cfg core.SyncConfig, historyID string, now time.Time, logger *slog.Logger) (cycleResult, error) {
	deps := w.Deps

	state, err := deps.Metadata.GetState(ctx, cfg.ID)
	if err != nil {
		return cycleResult{}, fmt.Errorf("get state: %w", err)
	}

	readResult, err := deps.Spreadsheet.ReadRange(ctx, cfg.SpreadsheetID, cfg.SpreadsheetRange, state.SheetETag)
	if err != nil {
		deps.metrics().RecordRemoteAPICall("read_range", "error")
		return cycleResult{}, fmt.Errorf("read range: %w", err)
	}
	deps.metrics().RecordRemoteAPICall("read_range", "success")

	if readResult.NotModified {
		return w.finalizeNoChanges(ctx, historyID, "no changes: spreadsheet not modified")
	}

	sheetRows := projectSheetRows(readResult.Rows, cfg.Mapping)

	targetRows, err := deps.TargetTable.ReadAll(ctx, cfg.TargetTable, cfg.Mapping)
	if err != nil {
		return cycleResult{}, fmt.Errorf("read target table: %w", err)
	}

	pkCol := cfg.Mapping.PrimaryKeyColumn()
	diff := changedetect.Detect(sheetRows, targetRows, changedetect.Options{
		PrimaryKeyColumn: pkCol,
		Logger:           deps.logger(),
	})

	if len(diff.Inserts) == 0 && len(diff.Updates) == 0 && len(diff.Deletes) == 0 {
		if err := w.advanceETag(ctx, cfg.ID, state, now, readResult.ETag); err != nil {
			return cycleResult{}, err
		}
		return w.finalizeNoChanges(ctx, historyID, "no changes: row sets identical")
	}

	conflicted, conflictCount, err := w.resolveConflicts(ctx, cfg, state, sheetRows, diff, now)
	if err != nil {
		return cycleResult{}, err
	}

	inserts, updates, deleteKeys := filterByConflicts(diff, conflicted, pkCol)

	opID := fmt.Sprintf("%s:%s:%s", cfg.ID, core.DirectionSheetToTable, readResult.ETag)
	fresh, err := deps.Idempotency.CheckAndMark(ctx, opID, 24*time.Hour)
	if err != nil {
		return cycleResult{}, fmt.Errorf("idempotency check: %w", err)
	}
	if !fresh {
		logger.Warn("sheet_to_table: op already processed, skipping write", "op_id", opID)
		return w.finalizeNoChanges(ctx, historyID, "skipped: already processed")
	}

	if len(inserts) > 0 || len(updates) > 0 || len(deleteKeys) > 0 {
		if err := deps.TargetTable.ApplyChanges(ctx, cfg.TargetTable, cfg.Mapping, core.FromSheetSourceTag, inserts, updates, deleteKeys); err != nil {
			return cycleResult{}, fmt.Errorf("apply changes: %w", err)
		}
	}

	rowsAffected := len(inserts) + len(updates) + len(deleteKeys)
	_ = deps.Idempotency.MarkProcessed(ctx, opID, map[string]any{
		"rows_affected": rowsAffected,
		"conflicts":     conflictCount,
	})

	newState := state
	newState.ConfigID = cfg.ID
	newState.LastSheetSyncAt = &now
	newState.SheetETag = readResult.ETag
	newState.LastSheetRowCount = len(sheetRows)
	newState.LastError = ""
	if err := deps.Metadata.SaveState(ctx, newState); err != nil {
		return cycleResult{}, fmt.Errorf("save state: %w", err)
	}

	if err := deps.Metadata.FinalizeHistory(ctx, historyID, core.HistorySuccess, rowsAffected, conflictCount, "", ""); err != nil {
		return cycleResult{}, fmt.Errorf("finalize history: %w", err)
	}

	return cycleResult{rowsAffected: rowsAffected, conflicts: conflictCount}, nil
}

// advanceETag persists the new ETag even when no row-level changes were
// detected, so the next cycle's conditional read stays cheap.
func (w *SheetToTableWorker) advanceETag(ctx context.Context, configID string, state core.SyncState, now time.Time, etag string) error {
	state.ConfigID = configID
	state.LastSheetSyncAt = &now
	state.SheetETag = etag
	state.LastError = ""
	if err := w.Deps.Metadata.SaveState(ctx, state); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (w *SheetToTableWorker) finalizeNoChanges(ctx context.Context, historyID, note string) (cycleResult, error) {
	if err := w.Deps.Metadata.FinalizeHistory(ctx, historyID, core.HistorySuccess, 0, 0, "", note); err != nil {
		return cycleResult{}, fmt.Errorf("finalize history: %w", err)
	}
	return cycleResult{}, nil
}

// resolveConflicts implements spec.md §4.4: a row is a candidate when both
// the spreadsheet and the target table changed it since the last
// successful T->S sync. Every resolution is persisted as a Conflict row
// regardless of outcome.
func (w *SheetToTableWorker) resolveConflicts(ctx context.Context, cfg core.SyncConfig, state core.SyncState, sheetRows []core.Row, diff changedetect.Result, now time.Time) (map[string]string, int, error) {
	deps := w.Deps
	pkCol := cfg.Mapping.PrimaryKeyColumn()

	changedSheetKeys := make(map[string]core.Row, len(diff.Inserts)+len(diff.Updates))
	for _, row := range diff.Inserts {
		changedSheetKeys[row.Get(pkCol).TrimmedString()] = row
	}
	for _, u := range diff.Updates {
		changedSheetKeys[u.Key] = u.Row
	}

	since := time.Time{}
	if state.LastDBSyncAt != nil {
		since = *state.LastDBSyncAt
	}
	tableChanges, err := deps.TargetTable.GetChangeLogSince(ctx, cfg.TargetTable, since)
	if err != nil {
		return nil, 0, fmt.Errorf("get change log since: %w", err)
	}

	latestTableChange := make(map[string]core.ChangeLogEntry, len(tableChanges))
	for _, entry := range tableChanges {
		key := entry.Row.Get(pkCol).TrimmedString()
		if key == "" {
			continue
		}
		if existing, ok := latestTableChange[key]; !ok || entry.ChangedAt.After(existing.ChangedAt) {
			latestTableChange[key] = entry
		}
	}

	var candidates []conflict.Candidate
	for key, sheetRow := range changedSheetKeys {
		entry, ok := latestTableChange[key]
		if !ok {
			continue
		}
		candidates = append(candidates, conflict.Candidate{
			RowKey:               key,
			SpreadsheetValue:     sheetRow,
			TableValue:           entry.Row,
			SpreadsheetChangedAt: now,
			TableChangedAt:       entry.ChangedAt,
		})
	}

	actual := conflict.Detect(candidates)
	winners := make(map[string]string, len(actual))
	for _, c := range actual {
		resolution := conflict.Resolve(cfg.ID, c, cfg.ConflictPolicy)
		if err := deps.Metadata.SaveConflict(ctx, resolution.Conflict); err != nil {
			return nil, 0, fmt.Errorf("save conflict: %w", err)
		}
		deps.events().ConflictDetected(cfg.ID, resolution.Conflict)
		deps.metrics().RecordConflict(cfg.ConflictPolicy)
		winners[c.RowKey] = resolution.Conflict.Winner
		if !resolution.Resolved {
			winners[c.RowKey] = "manual"
		}
	}

	return winners, len(actual), nil
}

// filterByConflicts drops any insert/update/delete whose key lost to
// "table" or was left "manual" (spec.md §4.4: only a "spreadsheet" winner
// keeps its S->T write).
func filterByConflicts(diff changedetect.Result, winners map[string]string, pkCol string) ([]core.Row, []changedetect.Update, []string) {
	keep := func(key string) bool {
		winner, conflicted := winners[key]
		return !conflicted || winner == "spreadsheet"
	}

	var inserts []core.Row
	for _, row := range diff.Inserts {
		if keep(row.Get(pkCol).TrimmedString()) {
			inserts = append(inserts, row)
		}
	}

	var updates []changedetect.Update
	for _, u := range diff.Updates {
		if keep(u.Key) {
			updates = append(updates, u)
		}
	}

	var deletes []string
	for _, key := range diff.Deletes {
		if keep(key) {
			deletes = append(deletes, key)
		}
	}

	return inserts, updates, deletes
}
