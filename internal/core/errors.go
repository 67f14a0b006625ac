package core

import "errors"

var (
	// ErrNotFound is returned by stores when a lookup has no match.
	ErrNotFound = errors.New("core: not found")

	// ErrNotModified signals a conditional spreadsheet read matched the
	// supplied ETag (spec.md §4.2).
	ErrNotModified = errors.New("core: spreadsheet range not modified")

	// ErrAlreadyProcessed is returned when an idempotency check finds the
	// operation id already recorded (spec.md §4.5/§7).
	ErrAlreadyProcessed = errors.New("core: operation already processed")

	// ErrTerminal wraps an error the retry wrapper's classifier decided is
	// non-retryable (spec.md §4.6/§7).
	ErrTerminal = errors.New("core: terminal error")
)
