package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/sheetsync/sheetsync/internal/core"
)

func TestSink_RecordCycle(t *testing.T) {
	sink := NewSink()

	sink.RecordCycle(core.DirectionSheetToTable, core.HistorySuccess, 250*time.Millisecond)

	count := testutil.ToFloat64(sink.cyclesTotal.WithLabelValues("sheet_to_table", "success"))
	assert.Equal(t, float64(1), count)
}

func TestSink_RecordRemoteAPICall(t *testing.T) {
	sink := NewSink()

	sink.RecordRemoteAPICall("read_range", "ok")
	sink.RecordRemoteAPICall("read_range", "ok")

	count := testutil.ToFloat64(sink.remoteAPICalls.WithLabelValues("read_range", "ok"))
	assert.Equal(t, float64(2), count)
}

func TestSink_RecordConflict(t *testing.T) {
	sink := NewSink()

	sink.RecordConflict(core.PolicyLastWriteWins)

	count := testutil.ToFloat64(sink.conflictsTotal.WithLabelValues("last-write-wins"))
	assert.Equal(t, float64(1), count)
}

func TestSink_SetDLQDepth(t *testing.T) {
	sink := NewSink()

	sink.SetDLQDepth(7)

	assert.Equal(t, float64(7), testutil.ToFloat64(sink.dlqDepth))
}

func TestSink_SetBreakerState(t *testing.T) {
	sink := NewSink()

	sink.SetBreakerState("target-db", "open")
	assert.Equal(t, float64(2), testutil.ToFloat64(sink.breakerState.WithLabelValues("target-db")))

	sink.SetBreakerState("target-db", "half-open")
	assert.Equal(t, float64(1), testutil.ToFloat64(sink.breakerState.WithLabelValues("target-db")))

	sink.SetBreakerState("target-db", "closed")
	assert.Equal(t, float64(0), testutil.ToFloat64(sink.breakerState.WithLabelValues("target-db")))
}
