package conflict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetsync/sheetsync/internal/core"
)

func TestDetectOnlyFlagsDivergentRows(t *testing.T) {
	now := time.Now()
	candidates := []Candidate{
		{
			RowKey:           "1",
			SpreadsheetValue: core.Row{"name": core.StringValue("alice")},
			TableValue:       core.Row{"name": core.StringValue("alice")},
			SpreadsheetChangedAt: now,
			TableChangedAt:       now,
		},
		{
			RowKey:           "2",
			SpreadsheetValue: core.Row{"name": core.StringValue("bob")},
			TableValue:       core.Row{"name": core.StringValue("robert")},
			SpreadsheetChangedAt: now,
			TableChangedAt:       now,
		},
	}

	out := Detect(candidates)

	require.Len(t, out, 1)
	assert.Equal(t, "2", out[0].RowKey)
}

func TestResolveSpreadsheetWins(t *testing.T) {
	c := Candidate{
		RowKey:               "1",
		SpreadsheetValue:     core.Row{"name": core.StringValue("sheet")},
		TableValue:           core.Row{"name": core.StringValue("table")},
		SpreadsheetChangedAt: time.Now().Add(-time.Hour),
		TableChangedAt:       time.Now(),
	}

	res := Resolve("cfg-1", c, core.PolicySpreadsheetWins)

	require.True(t, res.Resolved)
	assert.Equal(t, "spreadsheet", res.Conflict.Winner)
	assert.Equal(t, "sheet", res.Conflict.ResolvedValue.Get("name").TrimmedString())
}

func TestResolveTableWins(t *testing.T) {
	c := Candidate{
		RowKey:               "1",
		SpreadsheetValue:     core.Row{"name": core.StringValue("sheet")},
		TableValue:           core.Row{"name": core.StringValue("table")},
		SpreadsheetChangedAt: time.Now(),
		TableChangedAt:       time.Now().Add(-time.Hour),
	}

	res := Resolve("cfg-1", c, core.PolicyTableWins)

	require.True(t, res.Resolved)
	assert.Equal(t, "table", res.Conflict.Winner)
	assert.Equal(t, "table", res.Conflict.ResolvedValue.Get("name").TrimmedString())
}

func TestResolveLastWriteWinsPicksLaterSide(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	c := Candidate{
		RowKey:               "1",
		SpreadsheetValue:     core.Row{"name": core.StringValue("sheet")},
		TableValue:           core.Row{"name": core.StringValue("table")},
		SpreadsheetChangedAt: older,
		TableChangedAt:       newer,
	}

	res := Resolve("cfg-1", c, core.PolicyLastWriteWins)
	assert.Equal(t, "table", res.Conflict.Winner)
}

func TestResolveLastWriteWinsTieFavorsSpreadsheet(t *testing.T) {
	same := time.Now()

	c := Candidate{
		RowKey:               "1",
		SpreadsheetValue:     core.Row{"name": core.StringValue("sheet")},
		TableValue:           core.Row{"name": core.StringValue("table")},
		SpreadsheetChangedAt: same,
		TableChangedAt:       same,
	}

	res := Resolve("cfg-1", c, core.PolicyLastWriteWins)
	assert.Equal(t, "spreadsheet", res.Conflict.Winner)
}

func TestResolveManualLeavesUnresolved(t *testing.T) {
	c := Candidate{
		RowKey:           "1",
		SpreadsheetValue: core.Row{"name": core.StringValue("sheet")},
		TableValue:       core.Row{"name": core.StringValue("table")},
	}

	res := Resolve("cfg-1", c, core.PolicyManual)

	assert.False(t, res.Resolved)
	assert.Empty(t, res.Conflict.Winner)
	assert.Nil(t, res.Conflict.ResolvedAt)
}
