package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sheetsync/sheetsync/internal/core"
)

func TestValueFromAny(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		in   any
		want core.Value
	}{
		{"nil", nil, core.NullValue()},
		{"int64", int64(7), core.IntegerValue(7)},
		{"int32", int32(7), core.IntegerValue(7)},
		{"float64", float64(1.5), core.FloatValue(1.5)},
		{"bool", true, core.BoolValue(true)},
		{"string", "hi", core.StringValue("hi")},
		{"bytes", []byte("hi"), core.StringValue("hi")},
		{"time", now, core.TimestampValue(now)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := valueFromAny(c.in)
			assert.Equal(t, c.want.Kind, got.Kind)
			assert.Equal(t, c.want.TrimmedString(), got.TrimmedString())
		})
	}
}

func TestRowFromJSON(t *testing.T) {
	row := rowFromJSON([]byte(`{"id":"1","name":"alice"}`))
	assert.Equal(t, "1", row.Get("id").TrimmedString())
	assert.Equal(t, "alice", row.Get("name").TrimmedString())
}

func TestRowFromJSON_EmptyPayload(t *testing.T) {
	row := rowFromJSON(nil)
	assert.Empty(t, row)
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"people"`, quoteIdent("people"))
	assert.Equal(t, `"we""ird"`, quoteIdent(`we"ird`))
}

func TestQuoteIdentList(t *testing.T) {
	assert.Equal(t, `"id", "name"`, quoteIdentList([]string{"id", "name"}))
}

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, `'from_sheet'`, quoteLiteral("from_sheet"))
	assert.Equal(t, `'it''s'`, quoteLiteral("it's"))
}
