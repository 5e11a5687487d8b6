// Package serr carries user-facing failures: a safe message and an HTTP status on
// top of the internal cause.
package serr

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
)

type ServiceError struct {
	Err        error
	Msg        string
	StackTrace string
	StatusCode int
	Env        map[string]string
	Header     http.Header
}

func NewServiceError(err error, statusCode int, msg string, args ...any) *ServiceError {
	return &ServiceError{
		Err:        err,
		Msg:        fmt.Sprintf(msg, args...),
		StatusCode: statusCode,
		StackTrace: string(debug.Stack()),
		Env:        make(map[string]string),
		Header:     make(http.Header),
	}
}

func (e *ServiceError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// StatusCode returns the status of the first ServiceError in err's chain, or 500.
func StatusCode(err error) int {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return http.StatusInternalServerError
}
