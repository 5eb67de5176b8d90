package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a failure for callers and for HTTP mapping.
type Code string

const (
	// CodeValidation marks client-caused input problems; never retried.
	CodeValidation Code = "VALIDATION"
	// CodeConstraint marks a store constraint violation, also client-caused.
	CodeConstraint Code = "CONSTRAINT"
	// CodeStoreUnavailable marks transient connectivity loss after retries ran out.
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
	// CodeStoreQuery marks store-side query failures (read-only, corrupt, busy).
	CodeStoreQuery Code = "STORE_QUERY"
	// CodeServiceUnavailable marks a dependency that was never initialized.
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
)

// Error is the one error type crossing package boundaries in this repo.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) *Error { return &Error{Code: CodeValidation, Message: msg} }

func Constraint(msg string, err error) *Error {
	return &Error{Code: CodeConstraint, Message: msg, Err: err}
}

func StoreUnavailable(msg string, err error) *Error {
	return &Error{Code: CodeStoreUnavailable, Message: msg, Err: err}
}

func StoreQuery(msg string, err error) *Error {
	return &Error{Code: CodeStoreQuery, Message: msg, Err: err}
}

func ServiceUnavailable(msg string) *Error {
	return &Error{Code: CodeServiceUnavailable, Message: msg}
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Code == code
}

// HTTPStatus maps an error to a status code; unknown errors are 500s.
func HTTPStatus(err error) int {
	var fe *Error
	if !errors.As(err, &fe) {
		return http.StatusInternalServerError
	}
	switch fe.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeConstraint:
		return http.StatusConflict
	case CodeStoreUnavailable, CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
