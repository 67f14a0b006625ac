package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/sheetsync/sheetsync/internal/database/postgres"
)

// ErrNonRetryable is returned when an error is explicitly non-retryable.
var ErrNonRetryable = errors.New("error is not retryable")

// DefaultErrorChecker is a default implementation of RetryableErrorChecker
// that considers network errors, timeouts, and temporary errors as retryable.
type DefaultErrorChecker struct{}

// IsRetryable implements RetryableErrorChecker interface.
// Returns true for transient errors that should be retried.
func (c *DefaultErrorChecker) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Explicitly non-retryable errors
	if errors.Is(err, ErrNonRetryable) {
		return false
	}

	// Network errors - check for transient conditions
	if isTransientNetworkError(err) {
		return true
	}

	// Timeout errors - generally retryable
	if isTimeoutError(err) {
		return true
	}

	// Check for "temporary" interface (common in Go stdlib)
	type temporary interface {
		Temporary() bool
	}
	if te, ok := err.(temporary); ok {
		return te.Temporary()
	}

	// Default: assume error is retryable
	return true
}

// isTransientNetworkError determines if a network error is transient.
func isTransientNetworkError(err error) bool {
	if err == nil {
		return false
	}

	// DNS errors - temporary failures are retryable
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary()
	}

	// Operation errors - check for specific syscall errors
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		// Connection refused - service might be restarting (retryable)
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return true
		}
		// Connection reset - transient network issue (retryable)
		if errors.Is(opErr.Err, syscall.ECONNRESET) {
			return true
		}
		// Network unreachable - might be temporary (retryable)
		if errors.Is(opErr.Err, syscall.ENETUNREACH) {
			return true
		}
		// Host unreachable - might be temporary (retryable)
		if errors.Is(opErr.Err, syscall.EHOSTUNREACH) {
			return true
		}
	}

	return false
}

// isTimeoutError checks if an error represents a timeout.
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	// Check error message for timeout indicators
	errMsg := err.Error()
	timeoutIndicators := []string{
		"timeout",
		"deadline exceeded",
		"context deadline exceeded",
		"i/o timeout",
		"timed out",
	}

	for _, indicator := range timeoutIndicators {
		if strings.Contains(strings.ToLower(errMsg), indicator) {
			return true
		}
	}

	// Check for timeout interface
	type timeout interface {
		Timeout() bool
	}
	if te, ok := err.(timeout); ok {
		return te.Timeout()
	}

	return false
}

// SyncErrorChecker implements the retryable taxonomy spec.md §7 names for
// adapter calls: network errors and HTTP 429/503 are retryable; any other
// HTTP 4xx is terminal (the request itself is wrong and retrying won't
// help); everything else falls back to DefaultErrorChecker.
type SyncErrorChecker struct{}

// IsRetryable implements RetryableErrorChecker.
func (c *SyncErrorChecker) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Errors surfaced by the target-table adapter carry a Postgres error
	// code (e.g. 40001 serialization_failure, 08006 connection_failure);
	// classify those by code rather than by string-matching the message.
	var dbErr *postgres.DatabaseError
	if errors.As(err, &dbErr) {
		return dbErr.IsRetryable()
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "503") {
		return true
	}

	for _, code := range []string{"400", "401", "403", "404", "409", "422"} {
		if strings.Contains(errMsg, code) {
			return false
		}
	}

	if isTransientNetworkError(err) || isTimeoutError(err) {
		return true
	}

	return (&DefaultErrorChecker{}).IsRetryable(err)
}
