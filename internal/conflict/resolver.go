// Package conflict detects and resolves rows changed on both the
// spreadsheet and table sides since the last sync in the opposite
// direction, per spec.md §4.4. Like changedetect, it is a pure
// in-memory comparison with no natural third-party library home (see
// DESIGN.md).
package conflict

import (
	"time"

	"github.com/sheetsync/sheetsync/internal/core"
)

// Candidate is one row that changed on both sides since the reference
// point the caller supplies (normally the state of the last successful
// opposite-direction sync).
type Candidate struct {
	RowKey               string
	SpreadsheetValue     core.Row
	TableValue           core.Row
	SpreadsheetChangedAt time.Time
	TableChangedAt       time.Time
}

// Resolution is the outcome of resolving one Candidate under a policy.
type Resolution struct {
	Conflict core.Conflict
	// Resolved is false only for PolicyManual: the conflict is recorded
	// but neither side is written.
	Resolved bool
}

// Detect returns the subset of candidates whose spreadsheet and table
// values actually differ (spec.md §4.4: a row touched on both sides
// that converged to the same value is not a conflict).
func Detect(candidates []Candidate) []Candidate {
	var out []Candidate
	for _, c := range candidates {
		if rowsDiffer(c.SpreadsheetValue, c.TableValue) {
			out = append(out, c)
		}
	}
	return out
}

// Resolve arbitrates a single candidate under policy, per spec.md §4.4:
//
//   - last-write-wins: the side with the later changed-at timestamp wins;
//     exact ties favor the spreadsheet (spreadsheet is the declared
//     source of truth for human edits).
//   - spreadsheet-wins / table-wins: that side always wins, regardless
//     of timestamps.
//   - manual: the conflict is recorded unresolved; neither side is
//     written until an operator resolves it out of band.
func Resolve(configID string, c Candidate, policy core.ConflictPolicy) Resolution {
	conflict := core.Conflict{
		ConfigID:             configID,
		RowKey:               c.RowKey,
		SpreadsheetValue:     c.SpreadsheetValue,
		TableValue:           c.TableValue,
		SpreadsheetChangedAt: c.SpreadsheetChangedAt,
		TableChangedAt:       c.TableChangedAt,
		Strategy:             policy,
	}

	switch policy {
	case core.PolicySpreadsheetWins:
		return resolveTo(conflict, "spreadsheet", c.SpreadsheetValue)

	case core.PolicyTableWins:
		return resolveTo(conflict, "table", c.TableValue)

	case core.PolicyLastWriteWins:
		if c.TableChangedAt.After(c.SpreadsheetChangedAt) {
			return resolveTo(conflict, "table", c.TableValue)
		}
		return resolveTo(conflict, "spreadsheet", c.SpreadsheetValue)

	case core.PolicyManual:
		return Resolution{Conflict: conflict, Resolved: false}

	default:
		// Unreachable given SyncConfig.Validate, but fail closed to manual
		// rather than silently picking a winner.
		return Resolution{Conflict: conflict, Resolved: false}
	}
}

func resolveTo(conflict core.Conflict, winner string, value core.Row) Resolution {
	now := conflict.SpreadsheetChangedAt
	if conflict.TableChangedAt.After(now) {
		now = conflict.TableChangedAt
	}
	conflict.Winner = winner
	conflict.ResolvedValue = value
	conflict.ResolvedAt = &now
	return Resolution{Conflict: conflict, Resolved: true}
}

func rowsDiffer(a, b core.Row) bool {
	columns := make(map[string]bool, len(a)+len(b))
	for c := range a {
		columns[c] = true
	}
	for c := range b {
		columns[c] = true
	}
	for c := range columns {
		if !a.Get(c).Equal(b.Get(c)) {
			return true
		}
	}
	return false
}
