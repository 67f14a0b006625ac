// Package changedetect diffs two row sets keyed by primary key into
// inserts, updates, and deletes, per spec.md §4.3. It is pure and
// dependency-free: a row-diffing algorithm over in-memory slices has no
// natural library home in the retrieved corpus, and reaching for one here
// would be reaching for its own sake (see DESIGN.md).
package changedetect

import (
	"log/slog"

	"github.com/sheetsync/sheetsync/internal/core"
)

// Update pairs a changed row with its primary key.
type Update struct {
	Key string
	Row core.Row
}

// Result is the output of Detect: inserts, updates, and deletes, in an
// order following the iteration order of current/baseline respectively
// (spec.md §4.3 "Determinism").
type Result struct {
	Inserts []core.Row
	Updates []Update
	Deletes []string
}

// Options configures one Detect call.
type Options struct {
	// PrimaryKeyColumn names the column holding each row's primary key.
	PrimaryKeyColumn string
	// Ignore names columns to exclude from the update-detection diff.
	Ignore map[string]bool
	// Logger receives a warning for every row skipped due to a missing,
	// null, or empty primary key. Defaults to slog.Default().
	Logger *slog.Logger
}

// Detect implements spec.md §4.3's procedure: build keyed maps of both
// sides, then classify every key into inserts/updates/deletes/unchanged.
func Detect(current, baseline []core.Row, opts Options) Result {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	baselineByKey := make(map[string]core.Row, len(baseline))
	for _, row := range baseline {
		key := row.Get(opts.PrimaryKeyColumn)
		if key.IsEmpty() {
			logger.Warn("changedetect: skipping baseline row with missing primary key", "column", opts.PrimaryKeyColumn)
			continue
		}
		baselineByKey[key.TrimmedString()] = row
	}

	var result Result
	seenInCurrent := make(map[string]bool, len(current))

	for _, row := range current {
		key := row.Get(opts.PrimaryKeyColumn)
		if key.IsEmpty() {
			logger.Warn("changedetect: skipping current row with missing primary key", "column", opts.PrimaryKeyColumn)
			continue
		}
		k := key.TrimmedString()
		seenInCurrent[k] = true

		base, existed := baselineByKey[k]
		if !existed {
			result.Inserts = append(result.Inserts, row)
			continue
		}
		if rowsDiffer(row, base, opts.Ignore) {
			result.Updates = append(result.Updates, Update{Key: k, Row: row})
		}
	}

	for _, row := range baseline {
		key := row.Get(opts.PrimaryKeyColumn)
		if key.IsEmpty() {
			continue
		}
		k := key.TrimmedString()
		if !seenInCurrent[k] {
			result.Deletes = append(result.Deletes, k)
		}
	}

	return result
}

// rowsDiffer reports whether any non-ignored column differs between a and
// b, using core.Value's type-tolerant equality.
func rowsDiffer(a, b core.Row, ignore map[string]bool) bool {
	columns := make(map[string]bool, len(a)+len(b))
	for c := range a {
		columns[c] = true
	}
	for c := range b {
		columns[c] = true
	}
	for c := range columns {
		if ignore[c] {
			continue
		}
		if !a.Get(c).Equal(b.Get(c)) {
			return true
		}
	}
	return false
}
