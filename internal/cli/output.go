package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/caldrift/caldrift/internal/report"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // all cases passed
	ExitFailure      = 1 // regression failures or errors present
	ExitCommandError = 2 // command error (invalid paths, bad flags, etc.)
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// writeReport renders a run report in the selected format and returns
// the ExitError that encodes its verdict counts, or nil when everything
// passed.
func writeReport(w io.Writer, opts *RootOptions, rep *report.RunReport) error {
	var err error
	if opts.Format == "json" {
		err = rep.WriteJSON(w)
	} else {
		err = rep.WriteText(w)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "write report", err)
	}
	if rep.Failed > 0 || rep.Errored > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d failed, %d errored", rep.Failed, rep.Errored))
	}
	return nil
}
