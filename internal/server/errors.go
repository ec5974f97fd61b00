package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/freelance-market/internal/lifecycle"
)

// ErrEmailAlreadyExists indicates email is already registered
type ErrEmailAlreadyExists struct {
	Email string
}

func (e *ErrEmailAlreadyExists) Error() string {
	return fmt.Sprintf("email already registered: %s", e.Email)
}

// ErrInvalidCredentials indicates invalid login credentials
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return "invalid email or password"
}

// ErrAccountSuspended indicates a suspended user tried to act.
type ErrAccountSuspended struct{}

func (e *ErrAccountSuspended) Error() string {
	return "account is suspended"
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// kindStatus maps lifecycle error kinds to HTTP status codes.
var kindStatus = map[lifecycle.Kind]int{
	lifecycle.KindValidation:          http.StatusBadRequest,
	lifecycle.KindNotFound:            http.StatusNotFound,
	lifecycle.KindForbidden:           http.StatusForbidden,
	lifecycle.KindInvalidState:        http.StatusConflict,
	lifecycle.KindConflict:            http.StatusConflict,
	lifecycle.KindPaymentVerification: http.StatusPaymentRequired,
	lifecycle.KindUnavailable:         http.StatusServiceUnavailable,
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		emailExists *ErrEmailAlreadyExists
		badCreds    *ErrInvalidCredentials
		suspended   *ErrAccountSuspended
		invalid     *ErrValidation
	)
	switch {
	case errors.As(err, &emailExists):
		return http.StatusConflict
	case errors.As(err, &badCreds):
		return http.StatusUnauthorized
	case errors.As(err, &suspended):
		return http.StatusForbidden
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	}
	if status, ok := kindStatus[lifecycle.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// errorCode returns the machine-readable "error" field for err.
func errorCode(err error) string {
	var (
		emailExists *ErrEmailAlreadyExists
		badCreds    *ErrInvalidCredentials
		suspended   *ErrAccountSuspended
		invalid     *ErrValidation
	)
	switch {
	case errors.As(err, &emailExists):
		return string(lifecycle.KindConflict)
	case errors.As(err, &badCreds):
		return "invalid_credentials"
	case errors.As(err, &suspended):
		return string(lifecycle.KindForbidden)
	case errors.As(err, &invalid):
		return string(lifecycle.KindValidation)
	}
	if kind := lifecycle.KindOf(err); kind != "" {
		return string(kind)
	}
	return "internal_error"
}

// errorMessage hides the causes of unclassified and dependency failures.
func errorMessage(err error) string {
	var le *lifecycle.Error
	if errors.As(err, &le) {
		if le.Kind == lifecycle.KindUnavailable {
			return "a required service is unavailable, retry later"
		}
		return le.Message
	}
	if HTTPStatus(err) == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}
