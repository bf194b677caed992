package models

import (
	"errors"
	"fmt"
)

// Error codes used by the pipeline stages and in API responses.
const (
	// Per-domain failure categories. None of them is fatal to a run.
	ErrCodeNetwork    = "NETWORK_FAILURE"
	ErrCodeDecode     = "DECODE_FAILURE"
	ErrCodeValidation = "VALIDATION_FAILURE"
	ErrCodeHash       = "HASH_FAILURE"
	ErrCodeGraphData  = "GRAPH_DATA_ERROR"

	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PipelineError is the internal error type carrying a failure category.
// It implements the error interface and supports error wrapping via Unwrap.
type PipelineError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError creates a new PipelineError.
func NewPipelineError(code, message string, err error) *PipelineError {
	return &PipelineError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *PipelineError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// ErrorCode returns the code of the first PipelineError in err's chain,
// or ErrCodeInternal when there is none.
func ErrorCode(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given failure category.
func IsCode(err error, code string) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Code == code
}

// DetailOf converts any error into an ErrorDetail. Errors without a
// PipelineError in their chain become INTERNAL_ERROR.
func DetailOf(err error) *ErrorDetail {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.ToDetail()
	}
	return &ErrorDetail{Code: ErrCodeInternal, Message: err.Error()}
}
