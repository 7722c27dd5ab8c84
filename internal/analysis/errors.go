package analysis

import (
	"errors"
	"fmt"
)

// ErrNotFound means the sample or report is unknown, lies outside the
// caller's scope, or has no recorded submission.
var ErrNotFound = errors.New("not found")

// ValidationError rejects a request before any remote call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Op names an appliance operation for error reporting.
type Op string

const (
	OpSubmitFile   Op = "submit_file"
	OpSubmitURL    Op = "submit_url"
	OpStatus       Op = "status"
	OpResults      Op = "results"
	OpEnvironments Op = "environments"
)

var upstreamMessages = map[Op]string{
	OpSubmitFile:   "Failed to submit file to FireEye AX",
	OpSubmitURL:    "Failed to submit URL to FireEye AX",
	OpStatus:       "Failed to get status from FireEye AX",
	OpResults:      "Failed to get result from FireEye AX",
	OpEnvironments: "Failed to get environments from FireEye AX",
}

// UpstreamError wraps any failure talking to the appliance. Callers show
// Message to users and log Err.
type UpstreamError struct {
	Op  Op
	Err error
}

func upstream(op Op, err error) *UpstreamError {
	return &UpstreamError{Op: op, Err: err}
}

// Message is the fixed, user-facing text for the failed operation.
func (e *UpstreamError) Message() string {
	if m, ok := upstreamMessages[e.Op]; ok {
		return m
	}
	return "FireEye AX request failed"
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message(), e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
