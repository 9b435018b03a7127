package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/outpost-os/shieldmeta/internal/diag"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Build aborted: invalid input, inconsistent inputs, failed verification
	ExitCommandError = 2 // Command error (bad flags, unreadable paths, etc.)
)

// ErrCodeGeneric is reported for errors outside the diag taxonomy.
const ErrCodeGeneric = "E000"

var (
	green = color.New(color.FgGreen)
	red   = color.New(color.FgRed, color.Bold)
	cyan  = color.New(color.FgCyan)
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code     int    // Exit code (use ExitFailure or ExitCommandError)
	Message  string // Error message
	Err      error  // Underlying error (optional)
	Reported bool   // Already written to the output by the command
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

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status  string    `json:"status"`             // "ok" or "error"
	Data    any       `json:"data,omitempty"`     // success payload
	Error   *CLIError `json:"error,omitempty"`    // error details
	BuildID string    `json:"build_id,omitempty"` // pipeline run correlation
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E101", "E401", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	return f.SuccessWithBuild("", data)
}

// SuccessWithBuild outputs a successful pipeline result tagged with its
// build id.
func (f *OutputFormatter) SuccessWithBuild(buildID string, data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status:  "ok",
			Data:    data,
			BuildID: buildID,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Check prints a green check line in text mode.
func (f *OutputFormatter) Check(format string, args ...any) {
	if f.Format == "json" {
		return
	}
	green.Fprintf(f.Writer, "✓ "+format+"\n", args...)
}

// Field prints an indented "name: value" line in text mode.
func (f *OutputFormatter) Field(name string, value any) {
	if f.Format == "json" {
		return
	}
	fmt.Fprintf(f.Writer, "  %s %v\n", cyan.Sprint(name+":"), value)
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	red.Fprintf(f.Writer, "✗ Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns the ExitError the command should return.
// diag errors abort the build (exit 1) and are printed with their code,
// position, fields and expected/found values; other errors are command
// errors (exit 2).
func (f *OutputFormatter) Fail(action string, err error) error {
	de, ok := diag.As(err)
	if !ok {
		_ = f.Error(ErrCodeGeneric, err.Error(), nil)
		return &ExitError{Code: ExitCommandError, Message: action, Err: err, Reported: true}
	}

	if f.Format == "json" {
		_ = f.Error(de.Code(), err.Error(), de.Details())
	} else {
		red.Fprintf(f.Writer, "✗ %s failed\n", action)
		fmt.Fprintf(f.Writer, "error[%s]: %s\n", de.Code(), de.Message)
		writeDetails(f.Writer, de)
		if ctx := wrapContext(err, de); ctx != "" {
			fmt.Fprintf(f.Writer, "  context: %s\n", ctx)
		}
	}
	return &ExitError{Code: ExitFailure, Message: action, Err: err, Reported: true}
}

func writeDetails(w io.Writer, de *diag.Error) {
	if de.Pos.IsValid() {
		fmt.Fprintf(w, "  --> %s\n", de.Pos)
	}
	if len(de.Fields) > 0 {
		fmt.Fprintf(w, "  fields: %s\n", strings.Join(de.Fields, ", "))
	}
	if de.Expected != "" || de.Found != "" {
		fmt.Fprintf(w, "  expected: %s\n  found: %s\n", de.Expected, de.Found)
	}
	if de.Err != nil {
		fmt.Fprintf(w, "  cause: %v\n", de.Err)
	}
}

// wrapContext returns the wrapping text around the diag error, such as
// "loading configuration".
func wrapContext(err error, de *diag.Error) string {
	before, _, _ := strings.Cut(err.Error(), de.Error())
	return strings.TrimSuffix(strings.TrimSpace(before), ":")
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
