// Package core defines the domain types shared by every sync engine
// component: configuration, cross-cycle state, audit history, conflicts,
// change-log entries, and the untyped row representation cells and table
// columns are normalized into.
package core

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New()

// ConflictPolicy selects how the resolver arbitrates a row changed on both
// sides since the last sync in the opposite direction.
type ConflictPolicy string

const (
	PolicyLastWriteWins  ConflictPolicy = "last-write-wins"
	PolicySpreadsheetWins ConflictPolicy = "spreadsheet-wins"
	PolicyTableWins      ConflictPolicy = "table-wins"
	PolicyManual         ConflictPolicy = "manual"
)

func (p ConflictPolicy) Valid() bool {
	switch p {
	case PolicyLastWriteWins, PolicySpreadsheetWins, PolicyTableWins, PolicyManual:
		return true
	default:
		return false
	}
}

// ColumnMapping is an ordered relation from spreadsheet column letters
// (A, B, C, ...) to target-table column names. Letter A is always the
// primary-key column.
type ColumnMapping struct {
	// Columns is ordered by letter: Columns[0] is "A", Columns[1] is "B", ...
	Columns []ColumnEntry
}

type ColumnEntry struct {
	Letter string
	Column string
}

// PrimaryKeyColumn returns the target-table column name mapped to letter A.
func (m ColumnMapping) PrimaryKeyColumn() string {
	if len(m.Columns) == 0 {
		return ""
	}
	return m.Columns[0].Column
}

// Validate enforces the invariants in spec.md §3: a non-empty mapping,
// unique contiguous letters starting at A, and a non-empty primary-key
// column name.
func (m ColumnMapping) Validate() error {
	if len(m.Columns) == 0 {
		return fmt.Errorf("column mapping: must have at least one column")
	}
	if m.Columns[0].Letter != "A" {
		return fmt.Errorf("column mapping: first column must be letter A, got %q", m.Columns[0].Letter)
	}
	if m.Columns[0].Column == "" {
		return fmt.Errorf("column mapping: primary key column (letter A) must be non-empty")
	}

	seen := make(map[string]bool, len(m.Columns))
	for i, c := range m.Columns {
		want := letterAt(i)
		if c.Letter != want {
			return fmt.Errorf("column mapping: expected contiguous letters starting at A, got %q at position %d (want %q)", c.Letter, i, want)
		}
		if c.Column == "" {
			return fmt.Errorf("column mapping: column name for letter %q is empty", c.Letter)
		}
		if seen[c.Letter] {
			return fmt.Errorf("column mapping: duplicate letter %q", c.Letter)
		}
		seen[c.Letter] = true
	}
	return nil
}

// ColumnNames returns the ordered list of target-table column names.
func (m ColumnMapping) ColumnNames() []string {
	out := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		out[i] = c.Column
	}
	return out
}

// letterAt returns the spreadsheet column letter for a zero-based index
// (0 -> "A", 25 -> "Z", 26 -> "AA", ...).
func letterAt(i int) string {
	var b []byte
	i++
	for i > 0 {
		i--
		b = append([]byte{byte('A' + i%26)}, b...)
		i /= 26
	}
	return string(b)
}

// SyncConfig is the persisted, externally managed declaration of one
// spreadsheet<->table pairing.
type SyncConfig struct {
	ID               string         `validate:"required"`
	Name             string         `validate:"required"`
	SpreadsheetID    string         `validate:"required"`
	SpreadsheetRange string         // default: first sheet, e.g. "Sheet1!A:Z"
	TargetDSN        string
	TargetTable      string         `validate:"required"`
	Mapping          ColumnMapping
	ConflictPolicy   ConflictPolicy `validate:"oneof=last-write-wins spreadsheet-wins table-wins manual"`
	IntervalSeconds  int            `validate:"gt=0"`
	Active           bool
}

// Validate enforces spec.md §3's invariants: struct-tag-expressible rules
// via validator/v10, plus the letter-contiguity rule on Mapping no struct
// tag can express.
func (c SyncConfig) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		return fmt.Errorf("sync config: %w", err)
	}
	if err := c.Mapping.Validate(); err != nil {
		return fmt.Errorf("sync config: %w", err)
	}
	return nil
}

// Interval returns the configured sync interval as a time.Duration.
func (c SyncConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// SyncState is the cross-cycle state that makes successive cycles
// incremental and loop-free. There is exactly one per SyncConfig.
type SyncState struct {
	ConfigID          string
	LastSheetSyncAt   *time.Time
	LastDBSyncAt      *time.Time
	SheetETag         string
	DBLastChangeID    int64
	LastSheetRowCount int    // supplements spec.md; operator visibility only
	LastError         string // supplements spec.md; cleared on next success
}

// SheetDue reports whether the S->T direction is due to run, per spec.md §4.10.
func (s SyncState) SheetDue(interval time.Duration, now time.Time) bool {
	return s.LastSheetSyncAt == nil || now.Sub(*s.LastSheetSyncAt) >= interval
}

// TableDue reports whether the T->S direction is due to run, per spec.md §4.10.
func (s SyncState) TableDue(interval time.Duration, now time.Time) bool {
	return s.LastDBSyncAt == nil || now.Sub(*s.LastDBSyncAt) >= interval
}

// Direction identifies one half of a cycle.
type Direction string

const (
	DirectionSheetToTable Direction = "sheet_to_table"
	DirectionTableToSheet Direction = "table_to_sheet"
)

// HistoryStatus is the outcome recorded for one worker run.
type HistoryStatus string

const (
	HistoryRunning HistoryStatus = "running"
	HistorySuccess HistoryStatus = "success"
	HistoryFailed  HistoryStatus = "failed"
	HistoryPartial HistoryStatus = "partial"
)

// SyncHistory is an append-only audit record of one worker run.
type SyncHistory struct {
	ID                string
	ConfigID          string
	Direction         Direction
	StartedAt         time.Time
	CompletedAt       *time.Time
	RowsAffected      int
	ConflictsDetected int
	Status            HistoryStatus
	Error             string
	CorrelationID     string
	Note              string
}

// Conflict is an append-only record of a row that changed on both sides
// since the last opposite-direction sync.
type Conflict struct {
	ID                 string
	ConfigID           string
	RowKey             string
	SpreadsheetValue    Row
	TableValue          Row
	SpreadsheetChangedAt time.Time
	TableChangedAt       time.Time
	Strategy             ConflictPolicy
	ResolvedAt           *time.Time // nil if manual and unresolved
	ResolvedValue        Row
	Winner               string // "spreadsheet" or "table"; empty when left for manual resolution
}

// ChangeOp identifies the kind of row-level mutation a ChangeLogEntry records.
type ChangeOp string

const (
	OpInsert ChangeOp = "INSERT"
	OpUpdate ChangeOp = "UPDATE"
	OpDelete ChangeOp = "DELETE"
)

// ExternalSourceTag is the default tag stamped on changes not produced by
// the S->T worker.
const ExternalSourceTag = "external"

// FromSheetSourceTag is the distinguished tag the S->T worker stamps on
// every write it performs, so the T->S worker can exclude it and break the
// loop between the two directions.
const FromSheetSourceTag = "from_sheet"

// ChangeLogEntry is one row of the target database's append-only
// change-capture log, populated by per-table triggers.
type ChangeLogEntry struct {
	ID         int64
	TableName  string
	Op         ChangeOp
	Row        Row // at minimum the primary key; full mapped columns for INSERT/UPDATE
	SourceTag  string
	ChangedAt  time.Time
	Processed  bool
}

// Row is a column-name-to-value mapping for one logical record, used
// uniformly by the spreadsheet side (projected from cell grids) and the
// table side (projected from database rows).
type Row map[string]Value

// Get returns the value for column, or a Null Value if absent.
func (r Row) Get(column string) Value {
	if v, ok := r[column]; ok {
		return v
	}
	return Value{Kind: KindNull}
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// SortedKeys returns the row's column names sorted, for deterministic
// encoding (spec.md §9: canonical encoding avoids spurious diffs).
func (r Row) SortedKeys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CanonicalString renders the row as a stable, sorted-key string for use
// as a canonical snapshot encoding (spec.md §9).
func (r Row) CanonicalString() string {
	var b strings.Builder
	for i, k := range r.SortedKeys() {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(r[k].TrimmedString())
	}
	return b.String()
}
