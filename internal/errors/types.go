package errors

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ValidationError reports a malformed task request. It is raised before any
// run starts and surfaced synchronously to the caller.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return e.Message
}

// NewValidationError creates a validation error for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// AuthenticationRequiredError reports a missing caller identity.
type AuthenticationRequiredError struct{}

func (e *AuthenticationRequiredError) Error() string {
	return "authentication required: no caller identity present"
}

// IsAuthenticationRequired reports whether err is a missing-identity failure.
func IsAuthenticationRequired(err error) bool {
	var ae *AuthenticationRequiredError
	return errors.As(err, &ae)
}

// UnavailableConnectorError reports requested connectors that are not in the
// caller's available set. Names holds every offending connector, not just the
// first, so a single message can enumerate all of them.
type UnavailableConnectorError struct {
	Names []string
}

func (e *UnavailableConnectorError) Error() string {
	return fmt.Sprintf("connectors not available: %s", strings.Join(e.Names, ", "))
}

// IsUnavailableConnector reports whether err is a connector availability failure.
func IsUnavailableConnector(err error) bool {
	var ue *UnavailableConnectorError
	return errors.As(err, &ue)
}

// NoToolsAvailableError reports that a resolved connector set yielded zero
// invocable handlers.
type NoToolsAvailableError struct {
	Toolkits []string
}

func (e *NoToolsAvailableError) Error() string {
	return fmt.Sprintf("no invocable tools available for connectors: %s", strings.Join(e.Toolkits, ", "))
}

// IsNoToolsAvailable reports whether err is an empty-toolset failure.
func IsNoToolsAvailable(err error) bool {
	var ne *NoToolsAvailableError
	return errors.As(err, &ne)
}

// TransientError represents an error that can be retried.
type TransientError struct {
	Err     error
	Message string // user-facing message
}

func (e *TransientError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError represents an error that should not be retried.
type PermanentError struct {
	Err     error
	Message string // user-facing message
}

func (e *PermanentError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// NewTransientError marks an error as retryable with a user-facing message.
func NewTransientError(err error, message string) *TransientError {
	return &TransientError{Err: err, Message: message}
}

// NewPermanentError marks an error as non-retryable with a user-facing message.
func NewPermanentError(err error, message string) *PermanentError {
	return &PermanentError{Err: err, Message: message}
}

// IsTransient checks if an error is retryable. Explicit markers win; network
// and syscall failures are treated as transient by default.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}

	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return false
	}

	return isNetworkError(err)
}

// IsPermanent checks if an error is explicitly non-retryable.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var permanentErr *PermanentError
	return errors.As(err, &permanentErr)
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ETIMEDOUT)
}
