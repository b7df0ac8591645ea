package integration

import (
	"errors"
	"fmt"
)

// Common errors returned by adapters.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, integration.ErrUnauthorized) {
//	    // Credentials were rejected
//	}
var (
	// ErrUnauthorized is returned when the provider rejects the credentials.
	ErrUnauthorized = errors.New("provider rejected credentials")

	// ErrNotFound is returned when the item or container doesn't exist or
	// is not shared with the credentials.
	ErrNotFound = errors.New("not found at provider")

	// ErrRateLimited is returned when the provider throttles the client.
	ErrRateLimited = errors.New("rate limited by provider")

	// ErrUnavailable is returned for provider-side failures and unreachable
	// endpoints.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrUnknownProvider is returned when no adapter is registered for a
	// provider name.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrInvalidItem is returned when an item cannot be mapped, for example
	// a wrong variant or a missing title.
	ErrInvalidItem = errors.New("invalid item")
)

// FetchError is returned by GetItems when the item list cannot be read in
// full.
type FetchError struct {
	Provider Provider
	Op       string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: failed to %s: %v", e.Provider, e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is likely to succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Throttling clears after the provider's window
	if errors.Is(err, ErrRateLimited) {
		return true
	}

	// Provider-side failures are usually transient
	if errors.Is(err, ErrUnavailable) {
		return true
	}

	return false
}

// IsAuthError returns true if the error requires new credentials.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
