package dlq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetsync/sheetsync/internal/core"
)

func TestSink_PushAndList(t *testing.T) {
	sink := New(10)

	sink.Push(Job{ConfigID: "cfg-1", Direction: core.DirectionSheetToTable, Reason: "terminal error", FailedAt: time.Now()})
	sink.Push(Job{ConfigID: "cfg-2", Direction: core.DirectionTableToSheet, Reason: "retries exhausted", FailedAt: time.Now()})

	jobs := sink.List()
	require.Len(t, jobs, 2)
	assert.Equal(t, "cfg-1", jobs[0].ConfigID)
	assert.Equal(t, "cfg-2", jobs[1].ConfigID)
	assert.Equal(t, 2, sink.Len())
}

func TestSink_EvictsOldestAtCapacity(t *testing.T) {
	sink := New(2)

	sink.Push(Job{ConfigID: "cfg-1"})
	sink.Push(Job{ConfigID: "cfg-2"})
	sink.Push(Job{ConfigID: "cfg-3"})

	jobs := sink.List()
	require.Len(t, jobs, 2)
	assert.Equal(t, "cfg-2", jobs[0].ConfigID)
	assert.Equal(t, "cfg-3", jobs[1].ConfigID)
	assert.EqualValues(t, 1, sink.Dropped())
}

func TestSink_DefaultCapacity(t *testing.T) {
	sink := New(0)
	assert.Equal(t, DefaultCapacity, sink.capacity)
}

func TestSink_Remove(t *testing.T) {
	sink := New(10)
	sink.Push(Job{ConfigID: "cfg-1"})
	sink.Push(Job{ConfigID: "cfg-2"})

	ok := sink.Remove(0)
	assert.True(t, ok)
	assert.Len(t, sink.List(), 1)
	assert.Equal(t, "cfg-2", sink.List()[0].ConfigID)

	assert.False(t, sink.Remove(5))
}
