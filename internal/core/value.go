package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind tags the dynamic type carried by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindInteger
	KindFloat
	KindString
	KindBool
	KindTimestamp
	KindJSON
)

// Value is the tagged variant a Row's cells and table columns are
// normalized into, per spec.md §9: cells arrive untyped (spreadsheet) or
// typed (database), and detection tolerates this via trimmed-string
// equality at the leaves.
type Value struct {
	Kind      Kind
	Integer   int64
	Float     float64
	String    string
	Bool      bool
	Timestamp time.Time
	JSON      any // arbitrary nested structure, compared by shallow deep-equal
}

func NullValue() Value               { return Value{Kind: KindNull} }
func IntegerValue(v int64) Value     { return Value{Kind: KindInteger, Integer: v} }
func FloatValue(v float64) Value     { return Value{Kind: KindFloat, Float: v} }
func StringValue(v string) Value     { return Value{Kind: KindString, String: v} }
func BoolValue(v bool) Value         { return Value{Kind: KindBool, Bool: v} }
func TimestampValue(v time.Time) Value { return Value{Kind: KindTimestamp, Timestamp: v} }
func JSONValue(v any) Value          { return Value{Kind: KindJSON, JSON: v} }

// IsEmpty reports whether the value is null, or an empty/whitespace-only
// string — the condition spec.md §4.3 uses to skip a row for a missing
// primary key.
func (v Value) IsEmpty() bool {
	if v.Kind == KindNull {
		return true
	}
	if v.Kind == KindString && strings.TrimSpace(v.String) == "" {
		return true
	}
	return false
}

// TrimmedString renders the value's trimmed string form, used for
// type-tolerant equality comparisons (spec.md §4.3: "1" vs 1).
func (v Value) TrimmedString() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindInteger:
		return strconv.FormatInt(v.Integer, 10)
	case KindFloat:
		// Trim a trailing ".0" so "1" and 1.0 compare equal, matching the
		// type-laundering tolerance spec.md §4.3 asks for.
		s := strconv.FormatFloat(v.Float, 'f', -1, 64)
		return s
	case KindString:
		return strings.TrimSpace(v.String)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindTimestamp:
		return strconv.FormatInt(v.Timestamp.UnixNano(), 10)
	case KindJSON:
		return fmt.Sprintf("%v", v.JSON)
	default:
		return ""
	}
}

// timestampLayouts are the layouts a spreadsheet cell's literal date text is
// tried against when the opposite side is a native database timestamp.
// RFC3339(Nano) covers values round-tripped through TrimmedString/JSON; the
// rest cover the plain date/time text a human typically enters into a
// sheet cell.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTimestamp tries each of timestampLayouts in turn, as the teacher's
// own toDate template helper does with a caller-supplied layout.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Equal implements spec.md §4.3's value-equality rule: null/undefined
// equivalent, primitives by trimmed string form, dates by timestamp,
// objects by shallow deep-equal (delegated to a structural comparison of
// the JSON payload).
//
// A spreadsheet cell is always projected as KindString (no cell-level date
// parsing happens at projection time), while a native database date/
// timestamp column comes back as KindTimestamp. Comparing those via
// TrimmedString would diff a Unix-nanosecond digit string against literal
// date text and never match, so a native timestamp on either side is
// always compared by parsing the other side's text as a timestamp first.
func (v Value) Equal(other Value) bool {
	if v.IsEmpty() && other.IsEmpty() {
		return true
	}
	if v.Kind == KindTimestamp && other.Kind == KindTimestamp {
		return v.Timestamp.Equal(other.Timestamp)
	}
	if v.Kind == KindTimestamp || other.Kind == KindTimestamp {
		vt, vok := v.asTimestamp()
		ot, ook := other.asTimestamp()
		if vok && ook {
			return vt.Equal(ot)
		}
		return false
	}
	if v.Kind == KindJSON || other.Kind == KindJSON {
		return shallowDeepEqual(v.asAny(), other.asAny())
	}
	return v.TrimmedString() == other.TrimmedString()
}

// asTimestamp returns v's value as a time.Time, parsing string/int/float
// forms as needed. ok is false when v carries no recognizable timestamp.
func (v Value) asTimestamp() (time.Time, bool) {
	switch v.Kind {
	case KindTimestamp:
		return v.Timestamp, true
	case KindString:
		return parseTimestamp(v.String)
	default:
		return time.Time{}, false
	}
}

func (v Value) asAny() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindInteger:
		return v.Integer
	case KindFloat:
		return v.Float
	case KindString:
		return v.String
	case KindBool:
		return v.Bool
	case KindTimestamp:
		return v.Timestamp
	case KindJSON:
		return v.JSON
	default:
		return nil
	}
}

// shallowDeepEqual compares two values one level deep: matching map keys
// by trimmed-string leaf equality, matching slice elements positionally.
// Anything deeper falls back to fmt-string comparison, which is
// sufficient for the spreadsheet/JSON payloads this system handles.
func shallowDeepEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	am, aok := a.(map[string]any)
	bm, bok := b.(map[string]any)
	if aok && bok {
		if len(am) != len(bm) {
			return false
		}
		for k, av := range am {
			bv, ok := bm[k]
			if !ok {
				return false
			}
			if fmt.Sprintf("%v", av) != fmt.Sprintf("%v", bv) {
				return false
			}
		}
		return true
	}
	as, aok := a.([]any)
	bs, bok := b.([]any)
	if aok && bok {
		if len(as) != len(bs) {
			return false
		}
		for i := range as {
			if fmt.Sprintf("%v", as[i]) != fmt.Sprintf("%v", bs[i]) {
				return false
			}
		}
		return true
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
