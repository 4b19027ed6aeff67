package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorUpstream     ErrorCode = "UPSTREAM_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// HTTPStatus is the response status for the error. Only caller mistakes are
// 4xx; every upstream failure is a plain 500.
func (e *Error) HTTPStatus() int {
	if e != nil && e.Code == ErrorInvalidInput {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// StatusOf returns the HTTP status for any error returned by this package.
func StatusOf(err error) int {
	var ucErr *Error
	if errors.As(err, &ucErr) {
		return ucErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
