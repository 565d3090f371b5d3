// Package common defines shared constants and sentinel errors used across
// GophScan components. Callers should use errors.Is / errors.As to match
// these values.
package common

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned by repositories when a lookup has no row.
	ErrNotFound = errors.New("not found")

	// ErrNotConfigured means no event or check-in list has been selected.
	ErrNotConfigured = errors.New("no event or check-in list configured")

	// ErrNonceConflict means a nonce is already used by a different scan.
	ErrNonceConflict = errors.New("nonce already used by another scan")

	// ErrStoreUnavailable wraps failures of the local ticket store.
	ErrStoreUnavailable = errors.New("local store unavailable")

	// Transport errors.
	ErrUnavailable      = errors.New("server unavailable")
	ErrMalformedPayload = errors.New("malformed server payload")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrRateLimited      = errors.New("rate limited")

	// ErrRejected means the server refused a request for good; retrying the
	// same request will not change the answer.
	ErrRejected = errors.New("rejected by server")
)

// RateLimitError carries the server supplied back-off. It matches
// ErrRateLimited with errors.Is.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s, retry after %s", ErrRateLimited, e.RetryAfter)
	}
	return ErrRateLimited.Error()
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// StoreError wraps err so that it matches ErrStoreUnavailable while keeping
// the original cause reachable through errors.Unwrap. ErrNotFound and
// ErrNonceConflict are returned unchanged.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNonceConflict) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
