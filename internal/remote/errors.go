package remote

import (
	"errors"
	"fmt"
)

// TransportError means the store could not be reached or refused the
// credentials. The operation may or may not have been applied.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidationError means the store rejected the input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NotFoundError means the record is gone on the store side, typically
// deleted through another session.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("note %s not found", e.ID)
}

type ErrorClass string

const (
	ClassNone       ErrorClass = ""
	ClassTransport  ErrorClass = "transport"
	ClassValidation ErrorClass = "validation"
	ClassNotFound   ErrorClass = "not_found"
	ClassUnknown    ErrorClass = "unknown"
)

// Classify names the taxonomy class of err.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}

	var transportErr *TransportError
	var validationErr *ValidationError
	var notFoundErr *NotFoundError

	switch {
	case errors.As(err, &validationErr):
		return ClassValidation
	case errors.As(err, &notFoundErr):
		return ClassNotFound
	case errors.As(err, &transportErr):
		return ClassTransport
	default:
		return ClassUnknown
	}
}
