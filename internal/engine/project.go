package engine

import (
	"github.com/sheetsync/sheetsync/internal/core"
)

// projectSheetRows turns a 2-D cell grid (rows[0] is the header row, per
// spec.md §4.8 step 4) into Rows keyed by mapping's column names. Grid
// column index i is assumed to correspond to mapping.Columns[i], which
// core.ColumnMapping.Validate enforces to be contiguous letters starting
// at A.
func projectSheetRows(rows [][]string, mapping core.ColumnMapping) []core.Row {
	if len(rows) <= 1 {
		return nil
	}
	out := make([]core.Row, 0, len(rows)-1)
	for _, cells := range rows[1:] {
		row := make(core.Row, len(mapping.Columns))
		for i, col := range mapping.Columns {
			if i < len(cells) {
				row[col.Column] = core.StringValue(cells[i])
			} else {
				row[col.Column] = core.NullValue()
			}
		}
		out = append(out, row)
	}
	return out
}

// rowToCells renders row as one spreadsheet data row, in mapping's column
// order, for a batch-update or append call.
func rowToCells(row core.Row, mapping core.ColumnMapping) []string {
	cells := make([]string, len(mapping.Columns))
	for i, col := range mapping.Columns {
		cells[i] = row.Get(col.Column).TrimmedString()
	}
	return cells
}
