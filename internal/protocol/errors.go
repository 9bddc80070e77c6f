package protocol

import (
	"errors"
	"fmt"
)

// Sentinel errors for caller mistakes and structural protocol failures.
var (
	// ErrNotAuthenticated is returned by every catalog operation invoked
	// before a successful Login.
	ErrNotAuthenticated = errors.New("session is not authenticated: call Login first")

	// ErrMissingVersionCode is returned when purchase authorization is
	// requested without a version code. This is a caller error; retrying
	// with the same input cannot succeed.
	ErrMissingVersionCode = errors.New("version code is required for purchase authorization")

	// ErrMissingPrefetch is returned when a related-entries response lacks
	// the prefetch slot the list is delivered in. This indicates a
	// protocol mismatch rather than a service-reported failure.
	ErrMissingPrefetch = errors.New("related response is missing the prefetch slot")
)

// AuthError reports a rejected authentication handshake. It is fatal for
// the whole run: retrying with the same credentials will not help.
type AuthError struct {
	// Message is the service-reported reason, when one was given.
	Message string

	// RemediationURL is an optional URL the service provided for the
	// operator to resolve the problem (e.g. an account verification page).
	RemediationURL string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.RemediationURL != "" {
		return fmt.Sprintf("authentication rejected: %s (to resolve, visit: %s)", e.Message, e.RemediationURL)
	}
	return "authentication rejected: " + e.Message
}

// ServiceError reports a well-formed envelope that carried an explicit
// error message. The transport succeeded; the service refused the request.
type ServiceError struct {
	// Op is the operation that failed ("details", "reviews", ...).
	Op string

	// DocID is the entry the operation targeted, when applicable.
	DocID string

	// Message is the display error message from the envelope.
	Message string
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.DocID != "" {
		return fmt.Sprintf("%s failed for %s: %s", e.Op, e.DocID, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
}

// DecodeError reports response bytes that could not be decoded into the
// expected envelope structure. Distinct from ServiceError: the bytes
// themselves are malformed or missing required structure.
type DecodeError struct {
	// Op is the operation whose response failed to decode.
	Op string

	// Err is the underlying parse failure.
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s response: %v", e.Op, e.Err)
}

// Unwrap returns the underlying parse failure.
func (e *DecodeError) Unwrap() error { return e.Err }

// NotFoundError reports an entry whose details payload was empty.
type NotFoundError struct {
	// DocID is the entry that was not found.
	DocID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return "no details found for " + e.DocID
}
