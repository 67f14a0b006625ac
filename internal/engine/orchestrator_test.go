package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetsync/sheetsync/internal/core"
	"github.com/sheetsync/sheetsync/internal/core/resilience"
	"github.com/sheetsync/sheetsync/internal/dlq"
)

func TestOrchestrator_TriggerNowRunsImmediately(t *testing.T) {
	deps, sheet, table, meta := newTestDeps(t)
	cfg := testConfig()
	meta.PutConfig(cfg)

	sheet.Seed(cfg.SpreadsheetID, cfg.SpreadsheetRange, [][]string{
		{"id", "name"},
		{"1", "alice"},
	})

	orch := NewOrchestrator(deps, time.Hour)
	require.NoError(t, orch.TriggerNow(context.Background(), cfg.ID, core.DirectionSheetToTable))

	rows, err := table.ReadAll(context.Background(), cfg.TargetTable, cfg.Mapping)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

type alwaysFailSpreadsheet struct{}

func (alwaysFailSpreadsheet) ReadRange(context.Context, string, string, string) (core.RangeResult, error) {
	return core.RangeResult{}, assert.AnError
}
func (alwaysFailSpreadsheet) BatchUpdate(context.Context, string, []core.RangeValues) (string, error) {
	return "", assert.AnError
}
func (alwaysFailSpreadsheet) Append(context.Context, string, string, [][]string) (string, error) {
	return "", assert.AnError
}
func (alwaysFailSpreadsheet) Clear(context.Context, string, string) (string, error) {
	return "", assert.AnError
}

func TestOrchestrator_DeadLettersAfterRetriesExhausted(t *testing.T) {
	deps, _, _, meta := newTestDeps(t)
	cfg := testConfig()
	meta.PutConfig(cfg)

	deps.Spreadsheet = alwaysFailSpreadsheet{}
	deps.RetryPolicy = &resilience.RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	sink := dlq.New(10)
	deps.DLQ = sink

	orch := NewOrchestrator(deps, time.Hour)
	require.NoError(t, orch.TriggerNow(context.Background(), cfg.ID, core.DirectionSheetToTable))

	jobs := sink.List()
	require.Len(t, jobs, 1)
	assert.Equal(t, cfg.ID, jobs[0].ConfigID)
	assert.Equal(t, core.DirectionSheetToTable, jobs[0].Direction)
}
