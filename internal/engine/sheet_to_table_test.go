package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sheetmemory "github.com/sheetsync/sheetsync/internal/adapters/spreadsheet/memory"
	tablememory "github.com/sheetsync/sheetsync/internal/adapters/targettable/memory"
	"github.com/sheetsync/sheetsync/internal/core"
	idemmemory "github.com/sheetsync/sheetsync/internal/idempotency/memory"
	metamemory "github.com/sheetsync/sheetsync/internal/metadatastore/memory"
)

func testConfig() core.SyncConfig {
	return core.SyncConfig{
		ID:               "cfg-1",
		Name:             "people sync",
		SpreadsheetID:    "sheet-1",
		SpreadsheetRange: "Sheet1!A:B",
		TargetTable:      "people",
		Mapping: core.ColumnMapping{Columns: []core.ColumnEntry{
			{Letter: "A", Column: "id"},
			{Letter: "B", Column: "name"},
		}},
		ConflictPolicy:  core.PolicyLastWriteWins,
		IntervalSeconds: 60,
		Active:          true,
	}
}

func newTestDeps(t *testing.T) (Deps, *sheetmemory.Adapter, *tablememory.Adapter, *metamemory.Store) {
	t.Helper()

	idem, err := idemmemory.New(1024)
	require.NoError(t, err)

	sheet := sheetmemory.New()
	table := tablememory.New()
	meta := metamemory.New()

	deps := Deps{
		Spreadsheet: sheet,
		TargetTable: table,
		Idempotency: idem,
		Metadata:    meta,
		Now:         func() time.Time { return time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC) },
	}
	return deps, sheet, table, meta
}

func TestSheetToTableWorker_InsertsNewRow(t *testing.T) {
	deps, sheet, table, meta := newTestDeps(t)
	cfg := testConfig()
	meta.PutConfig(cfg)

	sheet.Seed(cfg.SpreadsheetID, cfg.SpreadsheetRange, [][]string{
		{"id", "name"},
		{"1", "alice"},
	})

	worker := NewSheetToTableWorker(deps)
	require.NoError(t, worker.Run(context.Background(), cfg))

	rows, err := table.ReadAll(context.Background(), cfg.TargetTable, cfg.Mapping)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0].Get("name").TrimmedString())

	history := meta.History()
	require.Len(t, history, 1)
	assert.Equal(t, core.HistorySuccess, history[0].Status)
	assert.Equal(t, 1, history[0].RowsAffected)
}

func TestSheetToTableWorker_NotModifiedSkipsWrite(t *testing.T) {
	deps, sheet, table, meta := newTestDeps(t)
	cfg := testConfig()
	meta.PutConfig(cfg)

	sheet.Seed(cfg.SpreadsheetID, cfg.SpreadsheetRange, [][]string{
		{"id", "name"},
		{"1", "alice"},
	})

	worker := NewSheetToTableWorker(deps)
	require.NoError(t, worker.Run(context.Background(), cfg))

	// Second run: same ETag, spreadsheet unchanged -> no-op.
	require.NoError(t, worker.Run(context.Background(), cfg))

	rows, err := table.ReadAll(context.Background(), cfg.TargetTable, cfg.Mapping)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	history := meta.History()
	require.Len(t, history, 2)
}

func TestSheetToTableWorker_DeletesRemovedRow(t *testing.T) {
	deps, sheet, table, meta := newTestDeps(t)
	cfg := testConfig()
	meta.PutConfig(cfg)

	table.Seed(cfg.TargetTable, []core.Row{
		{"id": core.StringValue("1"), "name": core.StringValue("alice")},
		{"id": core.StringValue("2"), "name": core.StringValue("bob")},
	}, "id")

	sheet.Seed(cfg.SpreadsheetID, cfg.SpreadsheetRange, [][]string{
		{"id", "name"},
		{"1", "alice"},
	})

	worker := NewSheetToTableWorker(deps)
	require.NoError(t, worker.Run(context.Background(), cfg))

	rows, err := table.ReadAll(context.Background(), cfg.TargetTable, cfg.Mapping)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0].Get("id").TrimmedString())
}
