// Package errors defines the typed errors used across the gateway and their
// mapping to HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error types
const (
	// ErrMalformedCredential is returned when the Authorization header is
	// absent, uses the wrong scheme, or the token cannot be structurally decoded
	ErrMalformedCredential = "malformed_credential"

	// ErrInvalidSignature is returned when the token signature check fails
	ErrInvalidSignature = "invalid_signature"

	// ErrTokenExpired is returned when the token expiration is in the past
	ErrTokenExpired = "token_expired"

	// ErrTokenNotYetValid is returned when the token is used before its
	// issued-at time, beyond the allowed clock skew
	ErrTokenNotYetValid = "token_not_yet_valid"

	// ErrInvalidIssuerOrAudience is returned when the issuer or audience claim
	// does not match the expected values
	ErrInvalidIssuerOrAudience = "invalid_issuer_or_audience"

	// ErrMissingScope is returned when the token lacks a required scope
	ErrMissingScope = "missing_scope"

	// ErrInvalidOAuthParameter is returned when an OAuth proxy request carries
	// a missing or unsupported parameter
	ErrInvalidOAuthParameter = "invalid_oauth_parameter"

	// ErrProviderUnavailable is returned when the identity provider cannot be
	// reached or times out
	ErrProviderUnavailable = "provider_unavailable"

	// ErrProviderMalformedResponse is returned when the identity provider
	// response cannot be read
	ErrProviderMalformedResponse = "provider_malformed_response"

	// ErrUpstreamUnavailable is returned when a forwarded external service
	// cannot be reached
	ErrUpstreamUnavailable = "upstream_unavailable"

	// ErrInternal is returned when there is an internal error
	ErrInternal = "internal"
)

// Error represents an error in the application
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewMalformedCredentialError creates a new malformed credential error
func NewMalformedCredentialError(message string, cause error) *Error {
	return NewError(ErrMalformedCredential, message, cause)
}

// NewInvalidSignatureError creates a new invalid signature error
func NewInvalidSignatureError(message string, cause error) *Error {
	return NewError(ErrInvalidSignature, message, cause)
}

// NewTokenExpiredError creates a new token expired error
func NewTokenExpiredError(message string, cause error) *Error {
	return NewError(ErrTokenExpired, message, cause)
}

// NewTokenNotYetValidError creates a new token not yet valid error
func NewTokenNotYetValidError(message string, cause error) *Error {
	return NewError(ErrTokenNotYetValid, message, cause)
}

// NewInvalidIssuerOrAudienceError creates a new invalid issuer or audience error
func NewInvalidIssuerOrAudienceError(message string, cause error) *Error {
	return NewError(ErrInvalidIssuerOrAudience, message, cause)
}

// NewMissingScopeError creates a new missing scope error
func NewMissingScopeError(message string, cause error) *Error {
	return NewError(ErrMissingScope, message, cause)
}

// NewInvalidOAuthParameterError creates a new invalid OAuth parameter error
func NewInvalidOAuthParameterError(message string, cause error) *Error {
	return NewError(ErrInvalidOAuthParameter, message, cause)
}

// NewProviderUnavailableError creates a new provider unavailable error
func NewProviderUnavailableError(message string, cause error) *Error {
	return NewError(ErrProviderUnavailable, message, cause)
}

// NewProviderMalformedResponseError creates a new provider malformed response error
func NewProviderMalformedResponseError(message string, cause error) *Error {
	return NewError(ErrProviderMalformedResponse, message, cause)
}

// NewUpstreamUnavailableError creates a new upstream unavailable error
func NewUpstreamUnavailableError(message string, cause error) *Error {
	return NewError(ErrUpstreamUnavailable, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

// statusCodes maps error types to the HTTP status surfaced to callers.
var statusCodes = map[string]int{
	ErrMalformedCredential:       http.StatusUnauthorized,
	ErrInvalidSignature:          http.StatusUnauthorized,
	ErrTokenExpired:              http.StatusUnauthorized,
	ErrTokenNotYetValid:          http.StatusUnauthorized,
	ErrInvalidIssuerOrAudience:   http.StatusUnauthorized,
	ErrMissingScope:              http.StatusForbidden,
	ErrInvalidOAuthParameter:     http.StatusBadRequest,
	ErrProviderUnavailable:       http.StatusBadGateway,
	ErrProviderMalformedResponse: http.StatusBadGateway,
	ErrUpstreamUnavailable:       http.StatusBadGateway,
	ErrInternal:                  http.StatusInternalServerError,
}

// Code extracts the HTTP status code for an error. Errors that do not carry a
// known type are treated as internal.
func Code(err error) int {
	var e *Error
	if errors.As(err, &e) {
		if code, ok := statusCodes[e.Type]; ok {
			return code
		}
	}
	return http.StatusInternalServerError
}

// IsType checks whether the error carries the given type.
func IsType(err error, errorType string) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == errorType
}
