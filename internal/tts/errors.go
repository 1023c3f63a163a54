package tts

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBusy is returned when a job is started while another one is running.
	ErrBusy = errors.New("a synthesis job is already running")
	// ErrCancelled is returned when a running job was cancelled.
	ErrCancelled = errors.New("synthesis cancelled")
	// ErrInvalidExecutable indicates a missing or non-executable synthesis binary.
	ErrInvalidExecutable = errors.New("synthesis executable is missing or not executable")
	// ErrInvalidModel indicates a voice model without its file or its JSON config.
	ErrInvalidModel = errors.New("voice model or its config file is missing")
	// ErrEmptyText indicates a request without any input.
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrEmptyOutput indicates a request without an output path.
	ErrEmptyOutput = errors.New("output path cannot be empty")
)

// ConfigurationError reports a request that cannot run with the current
// configuration. No process is spawned when it is returned.
type ConfigurationError struct {
	Err   error
	Field string
	Path  string
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	}

	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ProcessFailure reports a synthesis process that did not exit cleanly.
type ProcessFailure struct {
	Err         error
	Diagnostics string
	ExitCode    int
}

func (e *ProcessFailure) Error() string {
	diagnostics := strings.TrimSpace(e.Diagnostics)
	if diagnostics == "" {
		return fmt.Sprintf("synthesis failed with exit code %d", e.ExitCode)
	}

	return fmt.Sprintf("synthesis failed with exit code %d: %s", e.ExitCode, diagnostics)
}

func (e *ProcessFailure) Unwrap() error {
	return e.Err
}
