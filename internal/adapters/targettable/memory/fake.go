// Package memory implements an in-process fake of core.TargetTableAdapter,
// including the append-only change-capture log semantics ApplyChanges is
// expected to produce, for tests that exercise the engine without a real
// Postgres instance.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sheetsync/sheetsync/internal/core"
)

// Adapter is a fake target table keyed by table name -> primary key ->
// row, with a shared append-only change log across all tables.
type Adapter struct {
	mu        sync.Mutex
	rows      map[string]map[string]core.Row
	changeLog []core.ChangeLogEntry
	nextID    int64
	now       func() time.Time
}

func New() *Adapter {
	return &Adapter{
		rows: make(map[string]map[string]core.Row),
		now:  time.Now,
	}
}

var _ core.TargetTableAdapter = (*Adapter)(nil)

// Seed sets the initial contents of a table, bypassing the change log (as
// if loaded outside of sync).
func (a *Adapter) Seed(table string, rows []core.Row, pkCol string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ensureTable(table)
	for _, row := range rows {
		a.rows[table][row.Get(pkCol).TrimmedString()] = row.Clone()
	}
}

func (a *Adapter) ReadAll(_ context.Context, table string, _ core.ColumnMapping) ([]core.Row, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]core.Row, 0, len(a.rows[table]))
	for _, row := range a.rows[table] {
		out = append(out, row.Clone())
	}
	return out, nil
}

func (a *Adapter) ApplyChanges(_ context.Context, table string, mapping core.ColumnMapping, writeTag string, inserts, updates []core.Row, deleteKeys []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ensureTable(table)

	pkCol := mapping.PrimaryKeyColumn()
	changedAt := a.now()

	for _, row := range inserts {
		key := row.Get(pkCol).TrimmedString()
		a.rows[table][key] = row.Clone()
		a.appendLog(table, core.OpInsert, row, writeTag, changedAt)
	}
	for _, row := range updates {
		key := row.Get(pkCol).TrimmedString()
		a.rows[table][key] = row.Clone()
		a.appendLog(table, core.OpUpdate, row, writeTag, changedAt)
	}
	for _, key := range deleteKeys {
		delete(a.rows[table], key)
		a.appendLog(table, core.OpDelete, core.Row{pkCol: core.StringValue(key)}, writeTag, changedAt)
	}
	return nil
}

func (a *Adapter) GetChangeLog(_ context.Context, table string, excludeTag string, limit int) ([]core.ChangeLogEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []core.ChangeLogEntry
	for _, entry := range a.changeLog {
		if entry.TableName != table || entry.Processed {
			continue
		}
		if excludeTag != "" && entry.SourceTag == excludeTag {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (a *Adapter) GetChangeLogSince(_ context.Context, table string, since time.Time) ([]core.ChangeLogEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []core.ChangeLogEntry
	for _, entry := range a.changeLog {
		if entry.TableName == table && !entry.ChangedAt.Before(since) {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (a *Adapter) MarkChangesProcessed(_ context.Context, table string, ids []int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for i := range a.changeLog {
		if a.changeLog[i].TableName == table && want[a.changeLog[i].ID] {
			a.changeLog[i].Processed = true
		}
	}
	return nil
}

func (a *Adapter) ensureTable(table string) {
	if a.rows[table] == nil {
		a.rows[table] = make(map[string]core.Row)
	}
}

func (a *Adapter) appendLog(table string, op core.ChangeOp, row core.Row, sourceTag string, changedAt time.Time) {
	a.nextID++
	a.changeLog = append(a.changeLog, core.ChangeLogEntry{
		ID:        a.nextID,
		TableName: table,
		Op:        op,
		Row:       row.Clone(),
		SourceTag: sourceTag,
		ChangedAt: changedAt,
		Processed: false,
	})
}
