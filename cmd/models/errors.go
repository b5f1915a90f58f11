package models

import (
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	ErrKindNotFound           ErrorKind = "not_found"
	ErrKindForbidden          ErrorKind = "forbidden"
	ErrKindConflict           ErrorKind = "conflict"
	ErrKindInvalidState       ErrorKind = "invalid_state"
	ErrKindInsufficientCredit ErrorKind = "insufficient_credit"
	ErrKindAuth               ErrorKind = "auth_error"
)

// DomainError carries the error category alongside a user-facing message so
// the HTTP and WebSocket boundaries can map it to a status without string
// matching.
type DomainError struct {
	Kind    ErrorKind
	Message string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *DomainError) HTTPStatus() int {
	switch e.Kind {
	case ErrKindNotFound:
		return http.StatusNotFound
	case ErrKindForbidden:
		return http.StatusForbidden
	case ErrKindConflict:
		return http.StatusConflict
	case ErrKindAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}

func NewNotFoundError(message string) *DomainError {
	return &DomainError{Kind: ErrKindNotFound, Message: message}
}

func NewForbiddenError(message string) *DomainError {
	return &DomainError{Kind: ErrKindForbidden, Message: message}
}

func NewConflictError(message string) *DomainError {
	return &DomainError{Kind: ErrKindConflict, Message: message}
}

func NewInvalidStateError(message string) *DomainError {
	return &DomainError{Kind: ErrKindInvalidState, Message: message}
}

func NewInsufficientCreditError(message string) *DomainError {
	return &DomainError{Kind: ErrKindInsufficientCredit, Message: message}
}

func NewAuthError(message string) *DomainError {
	return &DomainError{Kind: ErrKindAuth, Message: message}
}
