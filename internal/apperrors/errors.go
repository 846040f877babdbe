package apperrors

import "fmt"

// ErrNotFound represents an error when a requested resource is not found.
type ErrNotFound struct {
	Resource string
	ID       interface{}
}

// Error implements the error interface.
func (e *ErrNotFound) Error() string {
	if e.ID != nil {
		return fmt.Sprintf("%s with ID %v not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is allows for error checking with errors.Is().
func (e *ErrNotFound) Is(target error) bool {
	_, ok := target.(*ErrNotFound)
	return ok
}

// NewNotFoundError creates a new ErrNotFound.
func NewNotFoundError(resource string, id interface{}) *ErrNotFound {
	return &ErrNotFound{
		Resource: resource,
		ID:       id,
	}
}

// ErrReauthRequired is returned when the remote service rejects the bearer
// token. It is a distinguished outcome rather than a generic failure: callers
// route it to the re-authentication flow instead of retrying or crashing.
type ErrReauthRequired struct {
	Reason string
}

// Error implements the error interface.
func (e *ErrReauthRequired) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("re-authentication required: %s", e.Reason)
	}
	return "re-authentication required"
}

// Is allows for error checking with errors.Is().
func (e *ErrReauthRequired) Is(target error) bool {
	_, ok := target.(*ErrReauthRequired)
	return ok
}

// NewReauthRequired creates a new ErrReauthRequired.
func NewReauthRequired(reason string) *ErrReauthRequired {
	return &ErrReauthRequired{Reason: reason}
}

// ErrGatewayClosed is returned for calls submitted after the request gateway
// has been shut down.
type ErrGatewayClosed struct{}

// Error implements the error interface.
func (e *ErrGatewayClosed) Error() string {
	return "request gateway is closed"
}

// Is allows for error checking with errors.Is().
func (e *ErrGatewayClosed) Is(target error) bool {
	_, ok := target.(*ErrGatewayClosed)
	return ok
}

// ErrRetriesExhausted is returned when a call kept hitting retryable failures
// (429 or 5xx) until its backoff policy ran out of attempts.
type ErrRetriesExhausted struct {
	Attempts   int
	LastStatus int
}

// Error implements the error interface.
func (e *ErrRetriesExhausted) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts (last status %d)", e.Attempts, e.LastStatus)
}

// Is allows for error checking with errors.Is().
func (e *ErrRetriesExhausted) Is(target error) bool {
	_, ok := target.(*ErrRetriesExhausted)
	return ok
}
