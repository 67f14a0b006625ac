package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMapping() ColumnMapping {
	return ColumnMapping{Columns: []ColumnEntry{
		{Letter: "A", Column: "id"},
		{Letter: "B", Column: "name"},
		{Letter: "C", Column: "email"},
	}}
}

func TestColumnMapping_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mapping ColumnMapping
		wantErr bool
	}{
		{"valid contiguous", validMapping(), false},
		{"empty", ColumnMapping{}, true},
		{"first column not A", ColumnMapping{Columns: []ColumnEntry{{Letter: "B", Column: "id"}}}, true},
		{"empty primary key column", ColumnMapping{Columns: []ColumnEntry{{Letter: "A", Column: ""}}}, true},
		{"non-contiguous letters", ColumnMapping{Columns: []ColumnEntry{
			{Letter: "A", Column: "id"}, {Letter: "C", Column: "name"},
		}}, true},
		{"duplicate letter", ColumnMapping{Columns: []ColumnEntry{
			{Letter: "A", Column: "id"}, {Letter: "A", Column: "name"},
		}}, true},
		{"empty column name mid-mapping", ColumnMapping{Columns: []ColumnEntry{
			{Letter: "A", Column: "id"}, {Letter: "B", Column: ""},
		}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mapping.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestColumnMapping_PrimaryKeyColumn(t *testing.T) {
	assert.Equal(t, "id", validMapping().PrimaryKeyColumn())
	assert.Equal(t, "", ColumnMapping{}.PrimaryKeyColumn())
}

func TestColumnMapping_ColumnNames(t *testing.T) {
	assert.Equal(t, []string{"id", "name", "email"}, validMapping().ColumnNames())
}

func validSyncConfig() SyncConfig {
	return SyncConfig{
		ID:              "cfg-1",
		Name:            "people",
		SpreadsheetID:   "sheet-1",
		TargetTable:     "people",
		Mapping:         validMapping(),
		ConflictPolicy:  PolicyLastWriteWins,
		IntervalSeconds: 60,
		Active:          true,
	}
}

func TestSyncConfig_Validate(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		require.NoError(t, validSyncConfig().Validate())
	})

	t.Run("missing id fails", func(t *testing.T) {
		cfg := validSyncConfig()
		cfg.ID = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing target table fails", func(t *testing.T) {
		cfg := validSyncConfig()
		cfg.TargetTable = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("invalid conflict policy fails", func(t *testing.T) {
		cfg := validSyncConfig()
		cfg.ConflictPolicy = "bogus"
		assert.Error(t, cfg.Validate())
	})

	t.Run("non-positive interval fails", func(t *testing.T) {
		cfg := validSyncConfig()
		cfg.IntervalSeconds = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("invalid mapping fails even with valid top-level fields", func(t *testing.T) {
		cfg := validSyncConfig()
		cfg.Mapping = ColumnMapping{}
		assert.Error(t, cfg.Validate())
	})
}

func TestConflictPolicy_Valid(t *testing.T) {
	assert.True(t, PolicyLastWriteWins.Valid())
	assert.True(t, PolicySpreadsheetWins.Valid())
	assert.True(t, PolicyTableWins.Valid())
	assert.True(t, PolicyManual.Valid())
	assert.False(t, ConflictPolicy("nonsense").Valid())
}

func TestSyncState_SheetDue(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	t.Run("nil last sync is always due", func(t *testing.T) {
		state := SyncState{}
		assert.True(t, state.SheetDue(time.Minute, now))
	})

	t.Run("within interval is not due", func(t *testing.T) {
		last := now.Add(-30 * time.Second)
		state := SyncState{LastSheetSyncAt: &last}
		assert.False(t, state.SheetDue(time.Minute, now))
	})

	t.Run("past interval is due", func(t *testing.T) {
		last := now.Add(-90 * time.Second)
		state := SyncState{LastSheetSyncAt: &last}
		assert.True(t, state.SheetDue(time.Minute, now))
	})
}

func TestSyncState_TableDue(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	last := now.Add(-90 * time.Second)
	state := SyncState{LastDBSyncAt: &last}
	assert.True(t, state.TableDue(time.Minute, now))

	recent := now.Add(-10 * time.Second)
	state = SyncState{LastDBSyncAt: &recent}
	assert.False(t, state.TableDue(time.Minute, now))
}

func TestRow_GetAndClone(t *testing.T) {
	row := Row{"id": StringValue("1"), "name": StringValue("alice")}

	assert.Equal(t, "1", row.Get("id").TrimmedString())
	assert.Equal(t, KindNull, row.Get("missing").Kind)

	clone := row.Clone()
	clone["name"] = StringValue("bob")
	assert.Equal(t, "alice", row.Get("name").TrimmedString())
	assert.Equal(t, "bob", clone.Get("name").TrimmedString())
}

func TestRow_CanonicalString(t *testing.T) {
	a := Row{"b": StringValue("2"), "a": StringValue("1")}
	b := Row{"a": StringValue("1"), "b": StringValue("2")}
	assert.Equal(t, a.CanonicalString(), b.CanonicalString(), "key order must not affect canonical encoding")
}
