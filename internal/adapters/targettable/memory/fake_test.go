package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetsync/sheetsync/internal/core"
)

func testMapping() core.ColumnMapping {
	return core.ColumnMapping{Columns: []core.ColumnEntry{
		{Letter: "A", Column: "id"},
		{Letter: "B", Column: "name"},
	}}
}

func TestAdapter_ApplyChangesThenReadAll(t *testing.T) {
	a := New()
	mapping := testMapping()

	err := a.ApplyChanges(context.Background(), "people", mapping, core.FromSheetSourceTag,
		[]core.Row{{"id": core.StringValue("1"), "name": core.StringValue("alice")}}, nil, nil)
	require.NoError(t, err)

	rows, err := a.ReadAll(context.Background(), "people", mapping)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0].Get("name").TrimmedString())
}

func TestAdapter_ApplyChangesStampsSourceTag(t *testing.T) {
	a := New()
	mapping := testMapping()

	require.NoError(t, a.ApplyChanges(context.Background(), "people", mapping, core.FromSheetSourceTag,
		[]core.Row{{"id": core.StringValue("1"), "name": core.StringValue("alice")}}, nil, nil))

	log, err := a.GetChangeLog(context.Background(), "people", "", 10)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, core.FromSheetSourceTag, log[0].SourceTag)
	assert.Equal(t, core.OpInsert, log[0].Op)
}

func TestAdapter_GetChangeLogExcludesTag(t *testing.T) {
	a := New()
	mapping := testMapping()

	require.NoError(t, a.ApplyChanges(context.Background(), "people", mapping, core.FromSheetSourceTag,
		[]core.Row{{"id": core.StringValue("1"), "name": core.StringValue("alice")}}, nil, nil))
	require.NoError(t, a.ApplyChanges(context.Background(), "people", mapping, core.ExternalSourceTag,
		[]core.Row{{"id": core.StringValue("2"), "name": core.StringValue("bob")}}, nil, nil))

	log, err := a.GetChangeLog(context.Background(), "people", core.FromSheetSourceTag, 10)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, core.ExternalSourceTag, log[0].SourceTag)
}

func TestAdapter_MarkChangesProcessedExcludesFromNextLog(t *testing.T) {
	a := New()
	mapping := testMapping()

	require.NoError(t, a.ApplyChanges(context.Background(), "people", mapping, core.ExternalSourceTag,
		[]core.Row{{"id": core.StringValue("1"), "name": core.StringValue("alice")}}, nil, nil))

	log, err := a.GetChangeLog(context.Background(), "people", "", 10)
	require.NoError(t, err)
	require.Len(t, log, 1)

	require.NoError(t, a.MarkChangesProcessed(context.Background(), "people", []int64{log[0].ID}))

	log, err = a.GetChangeLog(context.Background(), "people", "", 10)
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestAdapter_DeleteRemovesRowAndLogs(t *testing.T) {
	a := New()
	mapping := testMapping()

	require.NoError(t, a.ApplyChanges(context.Background(), "people", mapping, core.ExternalSourceTag,
		[]core.Row{{"id": core.StringValue("1"), "name": core.StringValue("alice")}}, nil, nil))
	require.NoError(t, a.ApplyChanges(context.Background(), "people", mapping, core.ExternalSourceTag,
		nil, nil, []string{"1"}))

	rows, err := a.ReadAll(context.Background(), "people", mapping)
	require.NoError(t, err)
	assert.Empty(t, rows)

	log, err := a.GetChangeLog(context.Background(), "people", "", 10)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, core.OpInsert, log[0].Op)
	assert.Equal(t, core.OpDelete, log[1].Op)
}
