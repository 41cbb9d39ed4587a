package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"github.com/roach88/collcheck/internal/harness"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // All scenarios passed or were skipped
	ExitFailure      = 1 // A scenario failed, a program is invalid or a replay diverged
	ExitCommandError = 2 // Command error (invalid paths, database not found, etc.)
)

// ExitError represents an error with a specific exit code.
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

// GetExitCode extracts the exit code from an error: 0 for nil, the ExitError
// code if there is one, and ExitCommandError otherwise.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
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
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Error codes of CLIError.
const (
	ErrCodeLoad     = "E_LOAD"
	ErrCodeProgram  = "E_PROGRAM"
	ErrCodeCompile  = "E_COMPILE"
	ErrCodeScenario = "E_SCENARIO"
	ErrCodeReplay   = "E_REPLAY"
	ErrCodeHistory  = "E_HISTORY"
)

// IsJSON reports whether JSON output was requested.
func (f *OutputFormatter) IsJSON() bool { return f.Format == "json" }

// Success outputs a successful result. In text mode text is printed instead of data.
func (f *OutputFormatter) Success(data any, text string) error {
	if f.IsJSON() {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprint(f.Writer, text)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.IsJSON() {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

func (f *OutputFormatter) encode(v any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// statusMark renders a status as a coloured mark when Writer is a terminal.
func (f *OutputFormatter) statusMark(status harness.Status) string {
	out := termenv.NewOutput(f.Writer)
	switch status {
	case harness.StatusPass:
		return out.String("✓").Foreground(out.Color("2")).String()
	case harness.StatusSkip:
		return out.String("-").Foreground(out.Color("3")).String()
	}
	return out.String("✗").Foreground(out.Color("1")).String()
}

var (
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	headerStyle = cellStyle.Bold(true)
	statusStyle = map[string]lipgloss.Style{
		string(harness.StatusPass): cellStyle.Foreground(lipgloss.Color("2")),
		string(harness.StatusFail): cellStyle.Foreground(lipgloss.Color("1")),
		string(harness.StatusSkip): cellStyle.Foreground(lipgloss.Color("3")),
	}
)

// renderTable renders rows under headers. A column titled "status" is coloured by value.
func renderTable(headers []string, rows [][]string) string {
	statusCol := -1
	for i, h := range headers {
		if h == "status" {
			statusCol = i
		}
	}
	t := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return headerStyle
			}
			if col == statusCol && row >= 0 && row < len(rows) {
				if style, ok := statusStyle[rows[row][col]]; ok {
					return style
				}
			}
			return cellStyle
		})
	return t.String() + "\n"
}
