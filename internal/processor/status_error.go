package processor

import (
	"fmt"

	"matchstats/internal/apperr"
)

// Status types
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusWarning = "warning"
	StatusSkipped = "skipped"
)

// StatusError is the outcome of processing one queued item. Failure means
// the item may succeed if redelivered; Warning means it was rejected for
// good and should be dropped; Skipped means it was not processed and goes
// back to the queue untouched.
type StatusError interface {
	Error() string
	Status() string
	Message() string
	Unwrap() error
}

type statusError struct {
	status  string
	message string
	err     error
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: %s", e.status, e.message)
}

func (e *statusError) Status() string {
	return e.status
}

func (e *statusError) Message() string {
	return e.message
}

func (e *statusError) Unwrap() error {
	return e.err
}

func NewSuccessError(message string) StatusError {
	return &statusError{status: StatusSuccess, message: message}
}

func NewFailureError(err error) StatusError {
	return &statusError{status: StatusFailure, message: err.Error(), err: err}
}

func NewWarningError(message string) StatusError {
	return &statusError{status: StatusWarning, message: message}
}

func NewSkippedError(message string) StatusError {
	return &statusError{status: StatusSkipped, message: message}
}

// FromError maps a typed failure onto a processing status. Validation and
// semantic conflicts can never succeed on redelivery, so they become warnings.
func FromError(err error) StatusError {
	if err == nil {
		return NewSuccessError("ok")
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindConfigInUse, apperr.KindNotFound:
		return &statusError{status: StatusWarning, message: err.Error(), err: err}
	}
	return NewFailureError(err)
}
