package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// ErrorKind classifies engine errors by the boundary that produced them.
type ErrorKind string

const (
	KindTransientStorage     ErrorKind = "TRANSIENT_STORAGE"
	KindPermanentStorage     ErrorKind = "PERMANENT_STORAGE"
	KindMissingRule          ErrorKind = "MISSING_RULE"
	KindNoActivePartner      ErrorKind = "NO_ACTIVE_PARTNER"
	KindWebhookTransient     ErrorKind = "WEBHOOK_TRANSIENT"
	KindWebhookPermanent     ErrorKind = "WEBHOOK_PERMANENT"
	KindInvariantViolation   ErrorKind = "INVARIANT_VIOLATION"
	KindOperatorInputInvalid ErrorKind = "OPERATOR_INPUT_INVALID"
	KindNotFound             ErrorKind = "NOT_FOUND"
	KindUnauthorized         ErrorKind = "UNAUTHORIZED"
	KindInternal             ErrorKind = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Kind       ErrorKind
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(kind ErrorKind, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Kind: kind, Message: message, HTTPStatus: status, Details: details}
}

// NewTransientStorage wraps a retryable storage failure.
func NewTransientStorage(err error) error {
	return &DomainError{
		Kind:       KindTransientStorage,
		Message:    "transient storage failure",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewPermanentStorage wraps a non-retryable storage failure such as a
// schema mismatch.
func NewPermanentStorage(err error) error {
	return &DomainError{
		Kind:       KindPermanentStorage,
		Message:    "permanent storage failure",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewInvariantViolation reports engine state that cannot be repaired.
func NewInvariantViolation(message string, details map[string]any) error {
	return NewDomainError(KindInvariantViolation, message, http.StatusConflict, details)
}

// NewOperatorInputInvalid rejects a control-plane request.
func NewOperatorInputInvalid(message string, details map[string]any) error {
	return NewDomainError(KindOperatorInputInvalid, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Kind:       KindNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(KindUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Kind:       KindInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Kind == kind
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Kind:       KindInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
