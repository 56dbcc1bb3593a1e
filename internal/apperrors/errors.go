// Package apperrors provides the stable error taxonomy for the Evident API.
//
// Every outward-facing error carries a machine-readable Kind, a human
// message, and an HTTP status derived from the kind. Handlers never write
// HTML error pages or leak stack traces; everything crosses the boundary as
// {error, message}.
//
// Usage:
//
//	return apperrors.New(apperrors.InsufficientTier, "requires professional tier or above")
//	return apperrors.Wrap(apperrors.DatabaseError, "failed to load evidence", err)
package apperrors

import (
	"fmt"
	"net/http"
)

// Kind is a stable, machine-readable error identifier (spec.md §7).
type Kind string

const (
	Unauthenticated      Kind = "Unauthenticated"
	InvalidCredentials   Kind = "InvalidCredentials"
	AccountDisabled      Kind = "AccountDisabled"
	InsufficientTier     Kind = "InsufficientTier"
	FeatureNotAvailable  Kind = "FeatureNotAvailable"
	RateLimited          Kind = "RateLimited"
	QuotaExceeded        Kind = "QuotaExceeded"
	NotFound             Kind = "NotFound"
	AlreadyExists        Kind = "AlreadyExists"
	Conflict             Kind = "Conflict"
	TooLarge             Kind = "TooLarge"
	UnsupportedType      Kind = "UnsupportedType"
	MalformedRequest     Kind = "MalformedRequest"
	IntegrityError       Kind = "IntegrityError"
	DependencyUnavailable Kind = "DependencyUnavailable"
	DeadlineExceeded     Kind = "DeadlineExceeded"
	Internal             Kind = "Internal"
	DatabaseError        Kind = "DatabaseError"
)

// AppError is the concrete error type carried across every package
// boundary in this repository.
type AppError struct {
	Kind          Kind   `json:"error"`
	Message       string `json:"message"`
	Details       string `json:"-"`
	CorrelationID string `json:"correlationId,omitempty"`
	RetryAfterSeconds int `json:"retryAfterSeconds,omitempty"`
	StatusCode    int    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Response is the JSON body every error crosses the HTTP boundary as.
type Response struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId,omitempty"`
}

func (e *AppError) ToResponse() Response {
	return Response{Error: string(e.Kind), Message: e.Message, CorrelationID: e.CorrelationID}
}

// New creates an AppError with the given kind and message.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message, StatusCode: statusFor(kind)}
}

// Wrap attaches debugging details from an underlying error without leaking
// them into the client-facing message.
func Wrap(kind Kind, message string, err error) *AppError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &AppError{Kind: kind, Message: message, Details: details, StatusCode: statusFor(kind)}
}

// WithCorrelationID attaches a correlation id for cross-referencing against
// audit and metric records, per spec.md §7.
func (e *AppError) WithCorrelationID(id string) *AppError {
	e.CorrelationID = id
	return e
}

// WithRetryAfter attaches the retry-after seconds for a RateLimited error.
func (e *AppError) WithRetryAfter(seconds int) *AppError {
	e.RetryAfterSeconds = seconds
	return e
}

func statusFor(kind Kind) int {
	switch kind {
	case MalformedRequest, TooLarge, UnsupportedType:
		return http.StatusBadRequest
	case Unauthenticated, InvalidCredentials:
		return http.StatusUnauthorized
	case InsufficientTier, FeatureNotAvailable, AccountDisabled:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case AlreadyExists, Conflict:
		return http.StatusConflict
	case RateLimited:
		return http.StatusTooManyRequests
	case QuotaExceeded:
		return http.StatusForbidden
	case DeadlineExceeded:
		return http.StatusGatewayTimeout
	case DependencyUnavailable:
		return http.StatusServiceUnavailable
	case IntegrityError, Internal, DatabaseError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// As reports whether err is an *AppError and returns it.
func As(err error) (*AppError, bool) {
	ae, ok := err.(*AppError)
	return ae, ok
}

// Retryable classifies a stage-level outcome error as transient (I/O,
// provider timeout) as opposed to fatal (malformed input, integrity
// mismatch). Fatal errors are never retried; retryable ones drive the
// Evidence Processor's backoff loop (spec.md §4.1).
func Retryable(kind Kind) bool {
	return kind == DependencyUnavailable
}
