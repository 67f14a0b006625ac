package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetsync/sheetsync/internal/core"
)

func TestTableToSheetWorker_AppendsNewRow(t *testing.T) {
	deps, sheet, table, meta := newTestDeps(t)
	cfg := testConfig()
	meta.PutConfig(cfg)

	sheet.Seed(cfg.SpreadsheetID, cfg.SpreadsheetRange, [][]string{
		{"id", "name"},
	})

	require.NoError(t, table.ApplyChanges(context.Background(), cfg.TargetTable, cfg.Mapping, core.ExternalSourceTag,
		[]core.Row{{"id": core.StringValue("1"), "name": core.StringValue("alice")}}, nil, nil))

	worker := NewTableToSheetWorker(deps)
	require.NoError(t, worker.Run(context.Background(), cfg))

	result, err := sheet.ReadRange(context.Background(), cfg.SpreadsheetID, cfg.SpreadsheetRange, "")
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, []string{"1", "alice"}, result.Rows[1])

	history := meta.History()
	require.Len(t, history, 1)
	assert.Equal(t, core.HistorySuccess, history[0].Status)
}

func TestTableToSheetWorker_ExcludesFromSheetWrites(t *testing.T) {
	deps, sheet, table, meta := newTestDeps(t)
	cfg := testConfig()
	meta.PutConfig(cfg)

	sheet.Seed(cfg.SpreadsheetID, cfg.SpreadsheetRange, [][]string{
		{"id", "name"},
	})

	// A write tagged from_sheet must not be reflected back (loop prevention).
	require.NoError(t, table.ApplyChanges(context.Background(), cfg.TargetTable, cfg.Mapping, core.FromSheetSourceTag,
		[]core.Row{{"id": core.StringValue("1"), "name": core.StringValue("alice")}}, nil, nil))

	worker := NewTableToSheetWorker(deps)
	require.NoError(t, worker.Run(context.Background(), cfg))

	result, err := sheet.ReadRange(context.Background(), cfg.SpreadsheetID, cfg.SpreadsheetRange, "")
	require.NoError(t, err)
	assert.Len(t, result.Rows, 1) // header only, no append happened

	history := meta.History()
	require.Len(t, history, 1)
	assert.Contains(t, history[0].Note, "no changes")
}

func TestTableToSheetWorker_NoUnprocessedChangesIsNoop(t *testing.T) {
	deps, _, _, meta := newTestDeps(t)
	cfg := testConfig()
	meta.PutConfig(cfg)

	worker := NewTableToSheetWorker(deps)
	require.NoError(t, worker.Run(context.Background(), cfg))

	history := meta.History()
	require.Len(t, history, 1)
	assert.Equal(t, core.HistorySuccess, history[0].Status)
}
