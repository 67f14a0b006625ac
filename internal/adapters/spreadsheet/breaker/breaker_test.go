package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New("sheet-1", Config{FailureThreshold: 3, Cooldown: time.Minute})

	fail := errors.New("boom")
	for i := 0; i < 3; i++ {
		err := b.Execute(context.Background(), func(context.Context) error { return fail })
		require.Equal(t, fail, err)
	}

	assert.Equal(t, StateOpen, b.State())

	err := b.Execute(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreaker_HalfOpenAfterCooldownThenCloses(t *testing.T) {
	b := New("sheet-1", Config{FailureThreshold: 1, Cooldown: 10 * time.Millisecond})

	_ = b.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })
	require.Equal(t, StateOpen, b.State())

	time.Sleep(20 * time.Millisecond)

	err := b.Execute(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New("sheet-1", Config{FailureThreshold: 1, Cooldown: 10 * time.Millisecond})

	_ = b.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)

	err := b.Execute(context.Background(), func(context.Context) error { return errors.New("still broken") })
	require.Error(t, err)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_OnStateChangeCallback(t *testing.T) {
	var seen []State
	b := New("sheet-1", Config{
		FailureThreshold: 1,
		Cooldown:         time.Minute,
		OnStateChange: func(target string, state State) {
			assert.Equal(t, "sheet-1", target)
			seen = append(seen, state)
		},
	})

	_ = b.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })

	require.Len(t, seen, 1)
	assert.Equal(t, StateOpen, seen[0])
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
