package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sheetsync/sheetsync/internal/core"
)

// TableToSheetWorker implements spec.md §4.9: drain the target table's
// change-capture log (excluding rows the S->T worker wrote) and reflect
// them into the spreadsheet.
type TableToSheetWorker struct {
	Deps Deps
}

// NewTableToSheetWorker builds a worker from deps.
func NewTableToSheetWorker(deps Deps) *TableToSheetWorker {
	return &TableToSheetWorker{Deps: deps}
}

func (w *TableToSheetWorker) Run(ctx context.Context, cfg core.SyncConfig) error {
	deps := w.Deps
	now := deps.now()

	deps.events().CycleStarted(cfg.ID, core.DirectionTableToSheet)

	historyID, err := deps.Metadata.CreateHistory(ctx, core.SyncHistory{
		ConfigID:  cfg.ID,
		Direction: core.DirectionTableToSheet,
		StartedAt: now,
	})
	if err != nil {
		return fmt.Errorf("table_to_sheet: create history: %w", err)
	}

	result, err := w.run(ctx, cfg, historyID, now)
	duration := time.Since(now)

	if err != nil {
		deps.logger().Error("table_to_sheet: cycle failed", "config_id", cfg.ID, "error", err)
		_ = deps.Metadata.FinalizeHistory(ctx, historyID, core.HistoryFailed, 0, 0, err.Error(), "")
		deps.metrics().RecordCycle(core.DirectionTableToSheet, core.HistoryFailed, duration)
		deps.events().CycleFailed(cfg.ID, core.DirectionTableToSheet, err)
		return err
	}

	deps.metrics().RecordCycle(core.DirectionTableToSheet, core.HistorySuccess, duration)
	deps.events().CycleCompleted(cfg.ID, core.DirectionTableToSheet, result.rowsAffected, result.conflicts, duration)
	return nil
}

func (w *TableToSheetWorker) run(ctx context.Context, cfg core.SyncConfig, historyID string, now time.Time) (cycleResult, error) {
	deps := w.Deps

	entries, err := deps.TargetTable.GetChangeLog(ctx, cfg.TargetTable, core.FromSheetSourceTag, ChangeLogBatchSize)
	if err != nil {
		return cycleResult{}, fmt.Errorf("get change log: %w", err)
	}
	if len(entries) == 0 {
		return w.finalizeNoChanges(ctx, historyID, "no changes: change log empty")
	}

	readResult, err := deps.Spreadsheet.ReadRange(ctx, cfg.SpreadsheetID, cfg.SpreadsheetRange, "")
	if err != nil {
		deps.metrics().RecordRemoteAPICall("read_range", "error")
		return cycleResult{}, fmt.Errorf("read range: %w", err)
	}
	deps.metrics().RecordRemoteAPICall("read_range", "success")

	pkCol := cfg.Mapping.PrimaryKeyColumn()
	rowIndexByKey := make(map[string]int, len(readResult.Rows))
	for i, cells := range readResult.Rows {
		if i == 0 {
			continue // header
		}
		if len(cells) == 0 {
			continue
		}
		key := strings.TrimSpace(cells[0])
		if key == "" {
			continue
		}
		rowIndexByKey[key] = i + 1 // 1-based spreadsheet row number
	}

	sheetName := sheetNameOf(cfg.SpreadsheetRange)
	lastCol := lastColumnLetter(cfg.Mapping)

	var updates []core.RangeValues
	var appendRows [][]string
	var clearRanges []string
	var ids []int64
	var maxID int64

	for _, entry := range entries {
		ids = append(ids, entry.ID)
		if entry.ID > maxID {
			maxID = entry.ID
		}
		key := entry.Row.Get(pkCol).TrimmedString()

		switch entry.Op {
		case core.OpDelete:
			if rowIdx, ok := rowIndexByKey[key]; ok {
				clearRanges = append(clearRanges, fmt.Sprintf("%s!A%d:%s%d", sheetName, rowIdx, lastCol, rowIdx))
			}
		default: // INSERT or UPDATE
			cells := rowToCells(entry.Row, cfg.Mapping)
			if rowIdx, ok := rowIndexByKey[key]; ok {
				updates = append(updates, core.RangeValues{
					Range:  fmt.Sprintf("%s!A%d:%s%d", sheetName, rowIdx, lastCol, rowIdx),
					Values: [][]string{cells},
				})
			} else {
				appendRows = append(appendRows, cells)
			}
		}
	}

	opID := fmt.Sprintf("%s:%s:%d", cfg.ID, core.DirectionTableToSheet, maxID)
	fresh, err := deps.Idempotency.CheckAndMark(ctx, opID, 24*time.Hour)
	if err != nil {
		return cycleResult{}, fmt.Errorf("idempotency check: %w", err)
	}
	if !fresh {
		deps.logger().Warn("table_to_sheet: op already processed, skipping write", "op_id", opID)
		return w.finalizeNoChanges(ctx, historyID, "skipped: already processed")
	}

	if len(updates) > 0 {
		if _, err := deps.Spreadsheet.BatchUpdate(ctx, cfg.SpreadsheetID, updates); err != nil {
			deps.metrics().RecordRemoteAPICall("batch_update", "error")
			return cycleResult{}, fmt.Errorf("batch update: %w", err)
		}
		deps.metrics().RecordRemoteAPICall("batch_update", "success")
	}
	if len(appendRows) > 0 {
		if _, err := deps.Spreadsheet.Append(ctx, cfg.SpreadsheetID, cfg.SpreadsheetRange, appendRows); err != nil {
			deps.metrics().RecordRemoteAPICall("append", "error")
			return cycleResult{}, fmt.Errorf("append: %w", err)
		}
		deps.metrics().RecordRemoteAPICall("append", "success")
	}
	for _, r := range clearRanges {
		if _, err := deps.Spreadsheet.Clear(ctx, cfg.SpreadsheetID, r); err != nil {
			deps.metrics().RecordRemoteAPICall("clear", "error")
			return cycleResult{}, fmt.Errorf("clear %s: %w", r, err)
		}
		deps.metrics().RecordRemoteAPICall("clear", "success")
	}

	if err := deps.TargetTable.MarkChangesProcessed(ctx, cfg.TargetTable, ids); err != nil {
		return cycleResult{}, fmt.Errorf("mark changes processed: %w", err)
	}

	rowsAffected := len(updates) + len(appendRows) + len(clearRanges)
	_ = deps.Idempotency.MarkProcessed(ctx, opID, map[string]any{
		"rows_affected":  rowsAffected,
		"max_change_id":  maxID,
	})

	state, err := deps.Metadata.GetState(ctx, cfg.ID)
	if err != nil {
		return cycleResult{}, fmt.Errorf("get state: %w", err)
	}
	state.ConfigID = cfg.ID
	state.LastDBSyncAt = &now
	if maxID > state.DBLastChangeID {
		state.DBLastChangeID = maxID
	}
	state.LastError = ""
	if err := deps.Metadata.SaveState(ctx, state); err != nil {
		return cycleResult{}, fmt.Errorf("save state: %w", err)
	}

	if err := deps.Metadata.FinalizeHistory(ctx, historyID, core.HistorySuccess, rowsAffected, 0, "", ""); err != nil {
		return cycleResult{}, fmt.Errorf("finalize history: %w", err)
	}

	return cycleResult{rowsAffected: rowsAffected}, nil
}

func (w *TableToSheetWorker) finalizeNoChanges(ctx context.Context, historyID, note string) (cycleResult, error) {
	if err := w.Deps.Metadata.FinalizeHistory(ctx, historyID, core.HistorySuccess, 0, 0, "", note); err != nil {
		return cycleResult{}, fmt.Errorf("finalize history: %w", err)
	}
	return cycleResult{}, nil
}

// sheetNameOf extracts the sheet name from an A1 range like "Sheet1!A:Z".
func sheetNameOf(rangeA1 string) string {
	if i := strings.Index(rangeA1, "!"); i >= 0 {
		return rangeA1[:i]
	}
	return rangeA1
}

// lastColumnLetter returns the spreadsheet column letter of mapping's last
// mapped column, for constructing a row's A1 range.
func lastColumnLetter(mapping core.ColumnMapping) string {
	if len(mapping.Columns) == 0 {
		return "A"
	}
	return mapping.Columns[len(mapping.Columns)-1].Letter
}
