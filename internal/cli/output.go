package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	store "github.com/goliatone/go-store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitCommandError = 2
)

// ExitError carries the exit code a command failed with.
type ExitError struct {
	Code    int
	Message string
	Err     error
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

// NewExitError creates an ExitError.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from err, ExitFailure by default.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// StateReport is what eval and watch print for a snapshot.
type StateReport struct {
	Store    string         `json:"store"`
	Version  uint64         `json:"version"`
	Changed  []string       `json:"changed,omitempty"`
	State    map[string]any `json:"state"`
	Computed map[string]any `json:"computed,omitempty"`
	Errors   map[string]any `json:"errors,omitempty"`
}

// NewStateReport evaluates the named computeds against snap. A failing
// computed is reported under Errors instead of aborting the report.
func NewStateReport(st *store.Store, snap *store.Snapshot, computeds []string) StateReport {
	report := StateReport{
		Store:   st.Name(),
		Version: snap.Version(),
		State:   snap.Export(),
	}
	for _, name := range computeds {
		value, err := snap.Computed(name)
		if err != nil {
			if report.Errors == nil {
				report.Errors = map[string]any{}
			}
			report.Errors[name] = err.Error()
			continue
		}
		if report.Computed == nil {
			report.Computed = map[string]any{}
		}
		report.Computed[name] = value
	}
	return report
}

// OutputFormatter renders reports as text or JSON.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// Report writes r in the configured format.
func (f *OutputFormatter) Report(r StateReport) error {
	if f.Format == "json" {
		return f.JSON(r)
	}
	fmt.Fprintf(f.Writer, "store %s (version %d)\n", r.Store, r.Version)
	if len(r.Changed) > 0 {
		fmt.Fprintf(f.Writer, "changed: %v\n", r.Changed)
	}
	if err := f.section("state", r.State); err != nil {
		return err
	}
	if err := f.section("computed", r.Computed); err != nil {
		return err
	}
	return f.section("errors", r.Errors)
}

// JSON writes v as indented JSON.
func (f *OutputFormatter) JSON(v any) error {
	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// VerboseLog writes to ErrWriter when verbose output is enabled.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, "[verbose] "+format+"\n", args...)
}

func (f *OutputFormatter) section(title string, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	fmt.Fprintf(f.Writer, "%s:\n", title)
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		encoded, err := json.Marshal(values[key])
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("encode %s.%s", title, key), err)
		}
		fmt.Fprintf(f.Writer, "  %s: %s\n", key, encoded)
	}
	return nil
}
