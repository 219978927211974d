package errs

import (
	"errors"
	"net/http"
)

// The four error kinds every handler maps onto a status code. Each wraps a
// reason error so callers can still unwrap sentinel values.

type ValidationError struct {
	reason error
}

func Validation(reason error) error {
	return ValidationError{reason: reason}
}

func Validationf(msg string) error {
	return ValidationError{reason: errors.New(msg)}
}

func (e ValidationError) Error() string { return e.reason.Error() }
func (e ValidationError) Unwrap() error { return e.reason }

func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

type AuthenticationError struct {
	reason error
}

func Authentication(reason error) error {
	return AuthenticationError{reason: reason}
}

func Authenticationf(msg string) error {
	return AuthenticationError{reason: errors.New(msg)}
}

func (e AuthenticationError) Error() string { return e.reason.Error() }
func (e AuthenticationError) Unwrap() error { return e.reason }

func IsAuthentication(err error) bool {
	var ae AuthenticationError
	return errors.As(err, &ae)
}

type PermissionError struct {
	reason error
}

func Permission(reason error) error {
	return PermissionError{reason: reason}
}

func Permissionf(msg string) error {
	return PermissionError{reason: errors.New(msg)}
}

func (e PermissionError) Error() string { return e.reason.Error() }
func (e PermissionError) Unwrap() error { return e.reason }

func IsPermission(err error) bool {
	var pe PermissionError
	return errors.As(err, &pe)
}

type NotFoundError struct {
	reason error
}

func NotFound(reason error) error {
	return NotFoundError{reason: reason}
}

func NotFoundf(msg string) error {
	return NotFoundError{reason: errors.New(msg)}
}

func (e NotFoundError) Error() string { return e.reason.Error() }
func (e NotFoundError) Unwrap() error { return e.reason }

func IsNotFound(err error) bool {
	var ne NotFoundError
	return errors.As(err, &ne)
}

// HTTPStatus maps an error to its response status. Unclassified errors are
// internal failures.
func HTTPStatus(err error) int {
	switch {
	case IsValidation(err):
		return http.StatusBadRequest
	case IsAuthentication(err):
		return http.StatusUnauthorized
	case IsPermission(err):
		return http.StatusForbidden
	case IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
