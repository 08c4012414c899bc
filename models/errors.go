package models

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes carried by step outcomes and API responses.
const (
	ErrCodeNavigation     = "NAVIGATION_ERROR"
	ErrCodeLocatorTimeout = "LOCATOR_TIMEOUT"
	ErrCodeNotActionable  = "NOT_ACTIONABLE"
	ErrCodeAssertion      = "ASSERTION_FAILED"
	ErrCodeHarness        = "HARNESS_ERROR"
	ErrCodeHarnessTimeout = "HARNESS_TIMEOUT"
	ErrCodeConfiguration  = "CONFIGURATION_ERROR"

	// API-only codes.
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeBusy         = "BUSY"
)

// ErrorDetail is the serialisable form of a step or API error.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Cause     string `json:"cause,omitempty"`
	Expected  string `json:"expected,omitempty"`
	Actual    string `json:"actual,omitempty"`
	LastState string `json:"last_state,omitempty"`
}

// StepError is the error type returned by action primitives.
// It implements the error interface and supports error wrapping via Unwrap.
type StepError struct {
	Code      string
	Message   string
	Expected  string
	Actual    string
	LastState string
	Err       error // wrapped original error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// NewStepError creates a new StepError.
func NewStepError(code, message string, err error) *StepError {
	return &StepError{Code: code, Message: message, Err: err}
}

// NewAssertionError creates an ASSERTION_FAILED error with expected/actual values.
func NewAssertionError(message, expected, actual string) *StepError {
	return &StepError{
		Code:     ErrCodeAssertion,
		Message:  message,
		Expected: expected,
		Actual:   actual,
	}
}

// ToDetail converts the error to its serialisable form.
func (e *StepError) ToDetail() *ErrorDetail {
	d := &ErrorDetail{
		Code:      e.Code,
		Message:   e.Message,
		Expected:  e.Expected,
		Actual:    e.Actual,
		LastState: e.LastState,
	}
	if e.Err != nil {
		d.Cause = e.Err.Error()
	}
	return d
}

// CodeOf returns the taxonomy code of err, or HARNESS_ERROR when err carries none.
func CodeOf(err error) string {
	var se *StepError
	if errors.As(err, &se) {
		return se.Code
	}
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ErrCodeConfiguration
	}
	return ErrCodeHarness
}

// DetailOf converts any error into an ErrorDetail.
func DetailOf(err error) *ErrorDetail {
	if err == nil {
		return nil
	}
	var se *StepError
	if errors.As(err, &se) {
		return se.ToDetail()
	}
	return &ErrorDetail{Code: CodeOf(err), Message: err.Error()}
}

// ConfigError reports every problem found while loading or validating a suite.
// It is raised before any scenario runs.
type ConfigError struct {
	Source   string
	Problems []string
}

func (e *ConfigError) Error() string {
	prefix := ErrCodeConfiguration
	if e.Source != "" {
		prefix += " (" + e.Source + ")"
	}
	if len(e.Problems) == 1 {
		return prefix + ": " + e.Problems[0]
	}
	return fmt.Sprintf("%s: %d problems:\n  - %s", prefix, len(e.Problems), strings.Join(e.Problems, "\n  - "))
}

// Add appends a formatted problem.
func (e *ConfigError) Add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// OrNil returns e when it holds problems, nil otherwise.
func (e *ConfigError) OrNil() error {
	if e == nil || len(e.Problems) == 0 {
		return nil
	}
	return e
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
