// Package breaker implements a closed/open/half-open circuit breaker
// guarding calls to the remote spreadsheet API, grounded on the
// teacher's per-target publishing circuit breaker (the same
// closed-on-success, open-after-threshold-failures, half-open-after-
// cooldown-probe state machine, adapted from guarding webhook delivery
// to guarding spreadsheet reads/writes).
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is one of the three circuit breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Execute when the breaker is open and the
// cooldown has not yet elapsed.
var ErrOpen = errors.New("breaker: circuit open")

// Config configures a Breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker from closed to open.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before moving to
	// half-open and letting calls through again.
	Cooldown time.Duration
	// OnStateChange, if set, is called whenever the breaker transitions
	// state — wired to MetricSink.SetBreakerState by callers.
	OnStateChange func(target string, state State)
}

// Breaker is a per-target circuit breaker. Zero value is not usable;
// construct with New.
type Breaker struct {
	target string
	config Config

	mu              sync.Mutex
	state           State
	consecutiveFail int
	openedAt        time.Time
}

func New(target string, config Config) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}
	return &Breaker{target: target, config: config, state: StateClosed}
}

// Execute runs fn if the breaker allows it, and records the outcome.
// Returns ErrOpen without calling fn if the circuit is open and the
// cooldown has not elapsed.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !b.allow() {
		return ErrOpen
	}

	err := fn(ctx)
	b.record(err == nil)
	return err
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.openedAt) >= b.config.Cooldown {
			b.transition(StateHalfOpen)
			return true
		}
		return false
	case StateHalfOpen:
		// Half-open does not limit concurrent probes: every caller is let
		// through until the first recorded outcome closes or re-opens the
		// breaker.
		return true
	default:
		return true
	}
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.consecutiveFail = 0
		if b.state != StateClosed {
			b.transition(StateClosed)
		}
		return
	}

	b.consecutiveFail++
	switch b.state {
	case StateHalfOpen:
		b.transition(StateOpen)
	case StateClosed:
		if b.consecutiveFail >= b.config.FailureThreshold {
			b.transition(StateOpen)
		}
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to State) {
	b.state = to
	if to == StateOpen {
		b.openedAt = time.Now()
	}
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.target, to)
	}
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
