package domain

import (
	"errors"
	"fmt"
	"maps"
)

// Kind groups error codes by how the caller should react
type Kind string

const (
	KindNotFound                Kind = "not_found"
	KindValidationFailure       Kind = "validation_failure"
	KindConsistencyViolation    Kind = "consistency_violation"
	KindStateTransitionRejected Kind = "state_transition_rejected"
	KindStorageConflict         Kind = "storage_conflict"
	KindUpstreamUnavailable     Kind = "upstream_unavailable"
)

type Code string

const (
	CodeProductNotFound    Code = "ProductNotFound"
	CodeRestaurantNotFound Code = "RestaurantNotFound"
	CodeOrderNotFound      Code = "OrderNotFound"

	CodeEmptyCart             Code = "EmptyCart"
	CodeTooManyLines          Code = "TooManyLines"
	CodeInvalidQuantity       Code = "InvalidQuantity"
	CodeDuplicateOption       Code = "DuplicateOption"
	CodeMissingRequiredGroup  Code = "MissingRequiredGroup"
	CodeBelowMinimumSelection Code = "BelowMinimumSelection"
	CodeAboveMaximumSelection Code = "AboveMaximumSelection"
	CodeOptionNotInGroup      Code = "OptionNotInGroup"
	CodeUnknownOptionGroup    Code = "UnknownOptionGroup"
	CodeInvalidStatus         Code = "InvalidStatus"
	CodeInvalidRequest        Code = "InvalidRequest"

	CodeCrossRestaurantProduct Code = "CrossRestaurantProduct"
	CodeCatalogChanged         Code = "CatalogChanged"
	CodeMalformedOptionGroup   Code = "MalformedOptionGroup"
	CodeInvalidPrice           Code = "InvalidPrice"

	CodeInvalidTransition Code = "InvalidTransition"
	CodeOrderLocked       Code = "OrderLocked"

	CodeStorageConflict Code = "StorageConflict"

	CodeCatalogUnavailable Code = "CatalogUnavailable"
	CodeStoreUnavailable   Code = "StoreUnavailable"
)

// Error is a structured rejection. Details carry the offending identifiers
// (product, group, option, line) and are safe to show to clients.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Details map[string]interface{}
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Retryable reports whether repeating the same request may succeed
func (e *Error) Retryable() bool {
	return e.Kind == KindUpstreamUnavailable
}

// WithDetail returns a copy of e with an extra detail set
func (e *Error) WithDetail(key string, value interface{}) *Error {
	cp := *e
	cp.Details = maps.Clone(e.Details)
	if cp.Details == nil {
		cp.Details = make(map[string]interface{})
	}
	cp.Details[key] = value
	return &cp
}

func newError(kind Kind, code Code, message string, details map[string]interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Details: details}
}

func NotFound(code Code, message string, details map[string]interface{}) *Error {
	return newError(KindNotFound, code, message, details)
}

func Validation(code Code, message string, details map[string]interface{}) *Error {
	return newError(KindValidationFailure, code, message, details)
}

func Consistency(code Code, message string, details map[string]interface{}) *Error {
	return newError(KindConsistencyViolation, code, message, details)
}

func TransitionRejected(code Code, message string, details map[string]interface{}) *Error {
	return newError(KindStateTransitionRejected, code, message, details)
}

func Conflict(message string, details map[string]interface{}) *Error {
	return newError(KindStorageConflict, CodeStorageConflict, message, details)
}

// Unavailable wraps an infrastructure failure (timeout, lost connection)
func Unavailable(code Code, message string, cause error) *Error {
	e := newError(KindUpstreamUnavailable, code, message, nil)
	e.cause = cause
	return e
}

// AsError extracts a *Error from err's chain
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code
func HasCode(err error, code Code) bool {
	de, ok := AsError(err)
	return ok && de.Code == code
}

// IsKind reports whether err is a domain error of the given kind
func IsKind(err error, kind Kind) bool {
	de, ok := AsError(err)
	return ok && de.Kind == kind
}
