// Package tts supervises the external Piper synthesis executable.
//
// A Supervisor owns at most one running synthesis process. Start validates
// the request, spawns the executable with the model and output flags, streams
// the text to its standard input and waits for it to exit. Cancel kills the
// running process. Every terminal transition returns the supervisor to idle.
package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-desk/internal/fsutil"
	"github.com/book-expert/tts-desk/internal/pathcheck"
	"github.com/google/uuid"
)

// Default invocation settings for the Piper command line.
const (
	DefaultModelFlag        = "--model"
	DefaultOutputFlag       = "--output_file"
	DefaultDiagnosticsLimit = 16 * 1024
	DefaultWaitDelay        = 2 * time.Second
)

// exitCodeUnknown is reported when the process ended without an exit status.
const exitCodeUnknown = -1

// State is the supervisor's lifecycle state.
type State string

// Supervisor states.
const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Status is the terminal state of a job.
type Status string

// Job statuses.
const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Request describes one synthesis run. Input, when set, is streamed to the
// process instead of Text.
//
// BeforeSpawn, when set, runs once the job holds the supervisor slot and
// before the process is spawned. An error from it aborts the job.
type Request struct {
	Input       io.Reader
	Text        string
	ModelPath   string
	OutputPath  string
	BeforeSpawn func() error
}

// Outcome is the result of a job that reached a terminal state.
type Outcome struct {
	JobID       string        `json:"jobId"`
	Status      Status        `json:"status"`
	OutputPath  string        `json:"outputPath,omitempty"`
	Diagnostics string        `json:"diagnostics,omitempty"`
	ExitCode    int           `json:"exitCode"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Options tune how the executable is invoked.
type Options struct {
	ModelFlag        string
	OutputFlag       string
	ExtraArgs        []string
	DiagnosticsLimit int
	WaitDelay        time.Duration
}

// DefaultOptions returns the Piper invocation defaults.
func DefaultOptions() Options {
	return Options{
		ModelFlag:        DefaultModelFlag,
		OutputFlag:       DefaultOutputFlag,
		ExtraArgs:        nil,
		DiagnosticsLimit: DefaultDiagnosticsLimit,
		WaitDelay:        DefaultWaitDelay,
	}
}

// job is the single in-flight process. Fields are guarded by Supervisor.mu.
type job struct {
	id        string
	cmd       *exec.Cmd
	cancelled bool
}

// Supervisor runs the synthesis executable one job at a time.
type Supervisor struct {
	mu         sync.Mutex
	current    *job
	executable func() string
	options    Options
	log        *logger.Logger
}

// New creates a Supervisor. executable is consulted on every Start so the
// user can change the configured binary between jobs.
func New(executable func() string, options Options, log *logger.Logger) *Supervisor {
	defaults := DefaultOptions()

	if options.ModelFlag == "" {
		options.ModelFlag = defaults.ModelFlag
	}

	if options.OutputFlag == "" {
		options.OutputFlag = defaults.OutputFlag
	}

	if options.DiagnosticsLimit <= 0 {
		options.DiagnosticsLimit = defaults.DiagnosticsLimit
	}

	if options.WaitDelay <= 0 {
		options.WaitDelay = defaults.WaitDelay
	}

	return &Supervisor{
		mu:         sync.Mutex{},
		current:    nil,
		executable: executable,
		options:    options,
		log:        log,
	}
}

// State reports whether a job is running.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return StateIdle
	}

	return StateRunning
}

// Running returns the id of the running job, if any.
func (s *Supervisor) Running() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return "", false
	}

	return s.current.id, true
}

// Validate checks the request against the configured executable without
// spawning anything.
func (s *Supervisor) Validate(req Request) error {
	return validateRequest(s.executable(), req)
}

func validateRequest(executable string, req Request) error {
	if !pathcheck.ValidateExecutable(executable) {
		return &ConfigurationError{Err: ErrInvalidExecutable, Field: "executable", Path: executable}
	}

	if !pathcheck.ValidateModelPair(req.ModelPath) {
		return &ConfigurationError{Err: ErrInvalidModel, Field: "model", Path: req.ModelPath}
	}

	if req.Input == nil && strings.TrimSpace(req.Text) == "" {
		return &ConfigurationError{Err: ErrEmptyText, Field: "text", Path: ""}
	}

	if req.OutputPath == "" {
		return &ConfigurationError{Err: ErrEmptyOutput, Field: "output", Path: ""}
	}

	return nil
}

// Start runs one synthesis job and blocks until it reaches a terminal state.
//
// It returns ErrBusy while another job runs and a *ConfigurationError when
// the request is invalid; in both cases nothing is spawned. A non-zero exit
// yields a Failed outcome with a *ProcessFailure, and a job stopped by Cancel
// or by ctx yields a Cancelled outcome with ErrCancelled. A job that exits
// successfully is Completed even when a cancellation arrived after the exit.
func (s *Supervisor) Start(ctx context.Context, req Request) (Outcome, error) {
	executable := s.executable()

	validationErr := validateRequest(executable, req)
	if validationErr != nil {
		return Outcome{}, validationErr
	}

	current, reserveErr := s.reserve()
	if reserveErr != nil {
		return Outcome{}, reserveErr
	}

	defer s.release(current)

	if req.BeforeSpawn != nil {
		hookErr := req.BeforeSpawn()
		if hookErr != nil {
			return Outcome{}, hookErr
		}
	}

	return s.run(ctx, current, executable, req)
}

// Cancel kills the running process. It returns false when nothing is running.
func (s *Supervisor) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return false
	}

	s.current.cancelled = true

	if s.current.cmd != nil && s.current.cmd.Process != nil {
		killErr := s.current.cmd.Process.Kill()
		if killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			s.log.Warn("Failed to kill synthesis job %s: %v", s.current.id, killErr)
		}
	}

	s.log.Info("Cancellation requested for synthesis job %s", s.current.id)

	return true
}

func (s *Supervisor) reserve() (*job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return nil, fmt.Errorf("%w: job %s", ErrBusy, s.current.id)
	}

	s.current = &job{id: uuid.NewString(), cmd: nil, cancelled: false}

	return s.current, nil
}

func (s *Supervisor) release(finished *job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == finished {
		s.current = nil
	}
}

func (s *Supervisor) args(req Request) []string {
	args := []string{
		s.options.ModelFlag, req.ModelPath,
		s.options.OutputFlag, req.OutputPath,
	}

	return append(args, s.options.ExtraArgs...)
}

func (s *Supervisor) run(ctx context.Context, current *job, executable string, req Request) (Outcome, error) {
	startedAt := time.Now()
	outcome := Outcome{
		JobID:       current.id,
		Status:      StatusFailed,
		OutputPath:  "",
		Diagnostics: "",
		ExitCode:    exitCodeUnknown,
		Elapsed:     0,
	}

	dirErr := fsutil.EnsureDir(filepath.Dir(req.OutputPath))
	if dirErr != nil {
		return outcome, fmt.Errorf("failed to prepare output directory: %w", dirErr)
	}

	args := s.args(req)
	diagnostics := newTailBuffer(s.options.DiagnosticsLimit)

	// #nosec G204 -- the executable and model paths are validated above
	cmd := exec.CommandContext(ctx, executable, args...)
	cmd.Stdout = diagnostics
	cmd.Stderr = diagnostics
	cmd.WaitDelay = s.options.WaitDelay

	stdin, pipeErr := cmd.StdinPipe()
	if pipeErr != nil {
		return outcome, fmt.Errorf("failed to open synthesis input: %w", pipeErr)
	}

	startErr := s.spawn(current, cmd)
	if startErr != nil {
		_ = stdin.Close()

		if ctx.Err() != nil {
			outcome.Status = StatusCancelled

			return outcome, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}

		if errors.Is(startErr, ErrCancelled) {
			outcome.Status = StatusCancelled

			return outcome, ErrCancelled
		}

		return outcome, fmt.Errorf("failed to start synthesis executable '%s': %w", executable, startErr)
	}

	s.log.Info("Synthesis job %s started: %s %s", current.id, executable, strings.Join(args, " "))

	writeDone := make(chan error, 1)

	go func() {
		writeDone <- writeInput(stdin, req)
	}()

	waitErr := cmd.Wait()
	writeErr := <-writeDone

	outcome.Elapsed = time.Since(startedAt)
	outcome.Diagnostics = diagnostics.String()

	return s.classify(ctx, current, outcome, req, waitErr, writeErr)
}

// spawn starts cmd unless the job was cancelled before it got the chance.
func (s *Supervisor) spawn(current *job, cmd *exec.Cmd) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current.cancelled {
		return ErrCancelled
	}

	startErr := cmd.Start()
	if startErr != nil {
		return startErr
	}

	current.cmd = cmd

	return nil
}

// writeInput streams the whole request to the process and closes the pipe.
func writeInput(stdin io.WriteCloser, req Request) error {
	input := req.Input
	if input == nil {
		input = strings.NewReader(req.Text)
	}

	_, copyErr := io.Copy(stdin, input)
	closeErr := stdin.Close()

	if copyErr != nil {
		return fmt.Errorf("failed to write synthesis input: %w", copyErr)
	}

	if closeErr != nil && !errors.Is(closeErr, io.ErrClosedPipe) {
		return fmt.Errorf("failed to close synthesis input: %w", closeErr)
	}

	return nil
}

func (s *Supervisor) classify(
	ctx context.Context,
	current *job,
	outcome Outcome,
	req Request,
	waitErr, writeErr error,
) (Outcome, error) {
	if waitErr == nil {
		if writeErr != nil {
			s.log.Warn("Synthesis job %s exited cleanly but did not consume all input: %v", current.id, writeErr)
		}

		outcome.Status = StatusCompleted
		outcome.ExitCode = 0
		outcome.OutputPath = req.OutputPath
		s.log.Info("Synthesis job %s completed in %s: %s", current.id, outcome.Elapsed, req.OutputPath)

		return outcome, nil
	}

	s.mu.Lock()
	cancelled := current.cancelled
	s.mu.Unlock()

	if cancelled || ctx.Err() != nil {
		outcome.Status = StatusCancelled
		s.log.Info("Synthesis job %s cancelled after %s", current.id, outcome.Elapsed)

		if ctx.Err() != nil {
			return outcome, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}

		return outcome, ErrCancelled
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		outcome.ExitCode = exitErr.ExitCode()
	}

	s.log.Error("Synthesis job %s failed with exit code %d: %s", current.id, outcome.ExitCode, outcome.Diagnostics)

	return outcome, &ProcessFailure{Err: waitErr, Diagnostics: outcome.Diagnostics, ExitCode: outcome.ExitCode}
}
