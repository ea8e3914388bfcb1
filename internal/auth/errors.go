// Package auth implements the OAuth 2.0 authorization-code + PKCE flow
// against a single identity provider, and the token lifecycle management
// layered on top of it.
package auth

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable classification of an auth failure. Callers
// branch on kinds rather than matching message text.
type Kind string

const (
	KindInvalidConfig      Kind = "invalid-config"
	KindAuthFailed         Kind = "auth-failed"
	KindTokenExpired       Kind = "token-expired"
	KindTokenRefreshFailed Kind = "token-refresh-failed"
	KindInvalidToken       Kind = "invalid-token"
	KindNetworkError       Kind = "network-error"
	KindPKCEError          Kind = "pkce-error"
	KindUserFetchError     Kind = "user-fetch-error"
	KindStorageError       Kind = "storage-error"
	KindInvalidState       Kind = "invalid-state"
	KindCallbackError      Kind = "callback-error"
	KindUnknown            Kind = "unknown-error"
)

// Error is the typed failure every protocol operation raises. It carries a
// kind for branching, a human-readable message, optional structured details
// and the wrapped original cause.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the original cause to errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// E builds an *Error. cause may be nil.
func E(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetails attaches structured context and returns the error for
// chaining.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// KindOf classifies err. Foreign errors fall back to KindUnknown; nil maps
// to the empty kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is an auth error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Record is the serializable form of an Error for structured logging.
type Record struct {
	Kind    Kind           `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   string         `json:"cause,omitempty"`
}

// Record converts the error to its loggable form.
func (e *Error) Record() Record {
	r := Record{Kind: e.Kind, Message: e.Message, Details: e.Details}
	if e.Cause != nil {
		r.Cause = e.Cause.Error()
	}
	return r
}

// UserFriendlyMessage maps err to a message suitable for display. The core
// never renders anything itself; this is for callers that do.
func UserFriendlyMessage(err error) string {
	switch KindOf(err) {
	case KindAuthFailed:
		return "Sign-in was cancelled or rejected. Please try again."
	case KindTokenExpired, KindTokenRefreshFailed:
		return "Your session has expired. Please sign in again."
	case KindInvalidState:
		return "The sign-in request could not be verified. Please try again."
	case KindNetworkError:
		return "Could not reach the authentication service. Check your connection and try again."
	case KindStorageError:
		return "Could not access local storage. Please try again."
	case KindInvalidToken, KindPKCEError, KindUserFetchError, KindCallbackError, KindInvalidConfig:
		return "Authentication failed. Please try again."
	default:
		return "An unexpected error occurred. Please try again."
	}
}
