// Package memory implements an in-process fake of core.SpreadsheetAdapter
// for tests that exercise the engine and change detector without a real
// Sheets endpoint.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/sheetsync/sheetsync/internal/core"
)

// Adapter is a fake spreadsheet keyed by spreadsheetID -> rangeA1 ->
// cell grid, with a monotonically increasing ETag bumped on every
// mutation.
type Adapter struct {
	mu    sync.Mutex
	sheets map[string]map[string][][]string
	etag   int
}

func New() *Adapter {
	return &Adapter{sheets: make(map[string]map[string][][]string)}
}

var _ core.SpreadsheetAdapter = (*Adapter)(nil)

// Seed sets the initial contents of a range, header row included.
func (a *Adapter) Seed(spreadsheetID, rangeA1 string, rows [][]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.set(spreadsheetID, rangeA1, rows)
}

func (a *Adapter) ReadRange(_ context.Context, spreadsheetID, rangeA1, etag string) (core.RangeResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	current := a.currentETag()
	if etag != "" && etag == current {
		return core.RangeResult{NotModified: true}, nil
	}

	rows := a.get(spreadsheetID, rangeA1)
	return core.RangeResult{Rows: rows, ETag: current}, nil
}

func (a *Adapter) BatchUpdate(_ context.Context, spreadsheetID string, updates []core.RangeValues) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, u := range updates {
		a.set(spreadsheetID, u.Range, u.Values)
	}
	a.etag++
	return a.currentETag(), nil
}

func (a *Adapter) Append(_ context.Context, spreadsheetID, rangeA1 string, rows [][]string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	existing := a.get(spreadsheetID, rangeA1)
	a.set(spreadsheetID, rangeA1, append(existing, rows...))
	a.etag++
	return a.currentETag(), nil
}

func (a *Adapter) Clear(_ context.Context, spreadsheetID, rangeA1 string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	existing := a.get(spreadsheetID, rangeA1)
	var header [][]string
	if len(existing) > 0 {
		header = [][]string{existing[0]}
	}
	a.set(spreadsheetID, rangeA1, header)
	a.etag++
	return a.currentETag(), nil
}

func (a *Adapter) currentETag() string {
	return fmt.Sprintf("etag-%d", a.etag)
}

func (a *Adapter) get(spreadsheetID, rangeA1 string) [][]string {
	if a.sheets[spreadsheetID] == nil {
		return nil
	}
	return a.sheets[spreadsheetID][rangeA1]
}

func (a *Adapter) set(spreadsheetID, rangeA1 string, rows [][]string) {
	if a.sheets[spreadsheetID] == nil {
		a.sheets[spreadsheetID] = make(map[string][][]string)
	}
	a.sheets[spreadsheetID][rangeA1] = rows
}
