package changedetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetsync/sheetsync/internal/core"
)

func row(id string, fields ...any) core.Row {
	r := core.Row{"id": core.StringValue(id)}
	for i := 0; i+1 < len(fields); i += 2 {
		key := fields[i].(string)
		switch v := fields[i+1].(type) {
		case string:
			r[key] = core.StringValue(v)
		case int:
			r[key] = core.IntegerValue(int64(v))
		}
	}
	return r
}

func TestDetectInsertsUpdatesDeletes(t *testing.T) {
	baseline := []core.Row{
		row("1", "name", "alice"),
		row("2", "name", "bob"),
		row("3", "name", "carol"),
	}
	current := []core.Row{
		row("1", "name", "alice"),      // unchanged
		row("2", "name", "robert"),     // updated
		row("4", "name", "dave"),       // inserted
		// id 3 removed
	}

	result := Detect(current, baseline, Options{PrimaryKeyColumn: "id"})

	require.Len(t, result.Inserts, 1)
	assert.Equal(t, "4", result.Inserts[0].Get("id").TrimmedString())

	require.Len(t, result.Updates, 1)
	assert.Equal(t, "2", result.Updates[0].Key)
	assert.Equal(t, "robert", result.Updates[0].Row.Get("name").TrimmedString())

	require.Len(t, result.Deletes, 1)
	assert.Equal(t, "3", result.Deletes[0])
}

func TestDetectTypeTolerantEquality(t *testing.T) {
	baseline := []core.Row{row("1", "count", "1")}
	current := []core.Row{row("1", "count", 1)}

	result := Detect(current, baseline, Options{PrimaryKeyColumn: "id"})

	assert.Empty(t, result.Updates, "string \"1\" and integer 1 must compare equal")
}

func TestDetectSkipsMissingPrimaryKey(t *testing.T) {
	baseline := []core.Row{row("1", "name", "alice")}
	current := []core.Row{
		{"name": core.StringValue("nameless")}, // no "id" column at all
		row("1", "name", "alice"),
	}

	result := Detect(current, baseline, Options{PrimaryKeyColumn: "id"})

	assert.Empty(t, result.Inserts)
	assert.Empty(t, result.Updates)
	assert.Empty(t, result.Deletes)
}

func TestDetectIgnoresConfiguredColumns(t *testing.T) {
	baseline := []core.Row{row("1", "name", "alice", "updated_at", "t0")}
	current := []core.Row{row("1", "name", "alice", "updated_at", "t1")}

	result := Detect(current, baseline, Options{
		PrimaryKeyColumn: "id",
		Ignore:           map[string]bool{"updated_at": true},
	})

	assert.Empty(t, result.Updates)
}
