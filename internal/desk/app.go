// Package desk is the request/response boundary between the presentation
// layer and the tts-desk core.
//
// App combines the settings store, path validation, the voice model registry,
// the synthesis supervisor and text file intake behind the operations a
// front-end needs. Validation style calls return booleans or defaults and
// never fail; operations that run the synthesis executable return errors the
// caller has to branch on.
package desk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-desk/internal/core"
	"github.com/book-expert/tts-desk/internal/intake"
	"github.com/book-expert/tts-desk/internal/pathcheck"
	"github.com/book-expert/tts-desk/internal/settings"
	"github.com/book-expert/tts-desk/internal/tts"
	"github.com/book-expert/tts-desk/internal/voices"
)

// Capability reasons shown when a control is disabled.
const (
	reasonExecutable = "synthesis executable is missing or not executable"
	reasonNoModel    = "no voice model selected"
	reasonModel      = "selected voice model does not exist"
	reasonNoText     = "there is no text to speak"
	reasonBusy       = "a synthesis job is already running"
)

const (
	defaultWordsPerMinute = 160
	secondsPerMinute      = 60
)

// ErrNoDialogs is returned by the choose operations when no picker is attached.
var ErrNoDialogs = errors.New("no file dialog collaborator configured")

// Options configure an App.
type Options struct {
	PreviewText       string
	PreviewPath       string
	DefaultOutputPath string
	SizeLimit         int64
	WordsPerMinute    int
	JobTimeout        time.Duration
}

// LastSettings echoes the values used by the previous synthesis.
type LastSettings struct {
	LastModel  string `json:"lastModel"`
	LastOutput string `json:"lastOutput"`
	LastText   string `json:"lastText"`
}

// ResetResult reports the executable and model directory after a reset.
type ResetResult struct {
	ExecutablePath string `json:"executablePath"`
	ModelDirectory string `json:"modelDirectory"`
}

// Capabilities tells the presentation layer which controls to enable.
type Capabilities struct {
	Reason        string `json:"reason,omitempty"`
	CanSynthesize bool   `json:"canSynthesize"`
	CanPreview    bool   `json:"canPreview"`
	Busy          bool   `json:"busy"`
}

// App implements the operations offered to the presentation layer.
type App struct {
	store   *settings.Store
	synth   core.Synthesizer
	dialogs core.Dialogs
	options Options
	log     *logger.Logger
}

// New creates an App. dialogs may be nil for front-ends that pick paths
// themselves and use the Set* operations instead.
func New(
	store *settings.Store,
	synth core.Synthesizer,
	dialogs core.Dialogs,
	options Options,
	log *logger.Logger,
) *App {
	if options.SizeLimit <= 0 {
		options.SizeLimit = intake.DefaultSizeLimit
	}

	if options.WordsPerMinute <= 0 {
		options.WordsPerMinute = defaultWordsPerMinute
	}

	return &App{
		store:   store,
		synth:   synth,
		dialogs: dialogs,
		options: options,
		log:     log,
	}
}

// ChooseExecutablePath asks the user for the synthesis executable and stores
// the choice. It returns "" when the dialog was dismissed.
func (a *App) ChooseExecutablePath(ctx context.Context) (string, error) {
	if a.dialogs == nil {
		return "", ErrNoDialogs
	}

	path, err := a.dialogs.ChooseExecutable(ctx, a.ExecutablePath())
	if err != nil {
		return "", fmt.Errorf("executable picker failed: %w", err)
	}

	if path == "" {
		return "", nil
	}

	err = a.SetExecutablePath(path)
	if err != nil {
		return "", err
	}

	return path, nil
}

// SetExecutablePath stores the synthesis executable path.
func (a *App) SetExecutablePath(path string) error {
	err := a.store.Set(settings.KeyExecutablePath, path)
	if err != nil {
		return fmt.Errorf("failed to save executable path: %w", err)
	}

	if !pathcheck.ValidateExecutable(path) {
		a.log.Warn("Executable path '%s' is saved but not executable", path)
	}

	return nil
}

// ExecutablePath returns the configured executable, or "".
func (a *App) ExecutablePath() string {
	return a.store.Get(settings.KeyExecutablePath, "")
}

// ValidateExecutablePath reports whether the configured executable is usable.
func (a *App) ValidateExecutablePath() bool {
	return pathcheck.ValidateExecutable(a.ExecutablePath())
}

// ChooseModelDirectory asks the user for the voice model directory and stores
// the choice. It returns "" when the dialog was dismissed.
func (a *App) ChooseModelDirectory(ctx context.Context) (string, error) {
	if a.dialogs == nil {
		return "", ErrNoDialogs
	}

	dir, err := a.dialogs.ChooseDirectory(ctx, a.ModelDirectory())
	if err != nil {
		return "", fmt.Errorf("directory picker failed: %w", err)
	}

	if dir == "" {
		return "", nil
	}

	err = a.SetModelDirectory(dir)
	if err != nil {
		return "", err
	}

	return dir, nil
}

// SetModelDirectory stores the voice model directory.
func (a *App) SetModelDirectory(dir string) error {
	err := a.store.Set(settings.KeyModelDirectory, dir)
	if err != nil {
		return fmt.Errorf("failed to save model directory: %w", err)
	}

	return nil
}

// ModelDirectory returns the configured model directory, or "".
func (a *App) ModelDirectory() string {
	return a.store.Get(settings.KeyModelDirectory, "")
}

// Voices returns the usable models in the configured directory.
func (a *App) Voices() []voices.VoiceModel {
	return voices.ListModels(a.ModelDirectory())
}

// ListVoiceModels returns the paths of the usable models.
func (a *App) ListVoiceModels() []string {
	return voices.Paths(a.Voices())
}

// ValidateModelPath reports whether a model file exists at path.
func (a *App) ValidateModelPath(path string) bool {
	return pathcheck.ValidateModel(path)
}

// ChooseOutputFile asks the user where to save audio and remembers the choice.
// It returns "" when the dialog was dismissed.
func (a *App) ChooseOutputFile(ctx context.Context) (string, error) {
	if a.dialogs == nil {
		return "", ErrNoDialogs
	}

	suggested := a.store.Get(settings.KeyLastOutput, a.options.DefaultOutputPath)

	path, err := a.dialogs.ChooseSaveFile(ctx, suggested)
	if err != nil {
		return "", fmt.Errorf("save picker failed: %w", err)
	}

	if path == "" {
		return "", nil
	}

	err = a.SetOutputPath(path)
	if err != nil {
		return "", err
	}

	return path, nil
}

// SetOutputPath stores the audio output path.
func (a *App) SetOutputPath(path string) error {
	err := a.store.Set(settings.KeyLastOutput, path)
	if err != nil {
		return fmt.Errorf("failed to save output path: %w", err)
	}

	return nil
}

// RunSynthesis speaks text with the given model into outputPath. An empty
// outputPath falls back to the last output, then to the default output.
//
// The request is validated first, then the last text, model and output are
// persisted, and only then is the process spawned.
func (a *App) RunSynthesis(ctx context.Context, text, modelPath, outputPath string) (tts.Outcome, error) {
	req := tts.Request{
		Input:       nil,
		Text:        text,
		ModelPath:   modelPath,
		OutputPath:  a.resolveOutput(outputPath),
		BeforeSpawn: nil,
	}

	err := a.prepare(&req, func(cfg *settings.Configuration) {
		cfg.LastText = text
		cfg.LastModel = modelPath
		cfg.LastOutput = req.OutputPath
	})
	if err != nil {
		return tts.Outcome{}, err
	}

	return a.start(ctx, req)
}

// PreviewVoice speaks a fixed sample sentence with modelPath and returns the
// path of the preview audio. Settings are not touched.
func (a *App) PreviewVoice(ctx context.Context, modelPath string) (string, error) {
	req := tts.Request{
		Input:       nil,
		Text:        a.options.PreviewText,
		ModelPath:   modelPath,
		OutputPath:  a.options.PreviewPath,
		BeforeSpawn: nil,
	}

	err := a.prepare(&req, nil)
	if err != nil {
		return "", err
	}

	outcome, err := a.start(ctx, req)
	if err != nil {
		return "", err
	}

	return outcome.OutputPath, nil
}

// SynthesizeFromFile streams a text file into the executable without loading
// it into memory and returns the path of the audio it produced.
func (a *App) SynthesizeFromFile(ctx context.Context, filePath, modelPath, outputPath string) (string, error) {
	outcome, err := a.StreamFile(ctx, filePath, modelPath, outputPath)
	if err != nil {
		return "", err
	}

	return outcome.OutputPath, nil
}

// StreamFile is SynthesizeFromFile returning the whole job outcome. It is
// meant for files too large for the editor, so no size limit applies, but
// the file still has to pass the text validity rule.
func (a *App) StreamFile(ctx context.Context, filePath, modelPath, outputPath string) (tts.Outcome, error) {
	if !intake.IsTextFile(filePath) {
		return tts.Outcome{}, fmt.Errorf("%w: %s", intake.ErrUnsupportedFile, filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return tts.Outcome{}, fmt.Errorf("failed to open text file '%s': %w", filePath, err)
	}
	defer file.Close()

	req := tts.Request{
		Input:       file,
		Text:        "",
		ModelPath:   modelPath,
		OutputPath:  a.resolveOutput(outputPath),
		BeforeSpawn: nil,
	}

	err = a.prepare(&req, func(cfg *settings.Configuration) {
		cfg.LastModel = modelPath
		cfg.LastOutput = req.OutputPath
	})
	if err != nil {
		return tts.Outcome{}, err
	}

	a.log.Info("Streaming '%s' into synthesis", filePath)

	return a.start(ctx, req)
}

// CancelSynthesis stops the running job. It returns false when idle.
func (a *App) CancelSynthesis() bool {
	return a.synth.Cancel()
}

// State reports whether a synthesis job is running.
func (a *App) State() tts.State {
	return a.synth.State()
}

// LastSettings returns the values used by the previous synthesis.
func (a *App) LastSettings() LastSettings {
	snapshot := a.store.Snapshot()

	return LastSettings{
		LastModel:  snapshot.LastModel,
		LastOutput: snapshot.LastOutput,
		LastText:   snapshot.LastText,
	}
}

// ResetSettings restores the built-in defaults and reports the seeded paths.
func (a *App) ResetSettings() (ResetResult, error) {
	err := a.store.Clear()
	if err != nil {
		return ResetResult{}, fmt.Errorf("failed to reset settings: %w", err)
	}

	a.log.Info("Settings reset to defaults")

	return ResetResult{
		ExecutablePath: a.ExecutablePath(),
		ModelDirectory: a.ModelDirectory(),
	}, nil
}

// ReadTextFile asks the user for a text file and validates it. A nil result
// means the dialog was dismissed.
func (a *App) ReadTextFile(ctx context.Context) (*intake.Result, error) {
	if a.dialogs == nil {
		return nil, ErrNoDialogs
	}

	path, err := a.dialogs.ChooseTextFile(ctx)
	if err != nil {
		return nil, fmt.Errorf("text file picker failed: %w", err)
	}

	if path == "" {
		return nil, nil
	}

	result := a.LoadTextFile(path)

	return &result, nil
}

// LoadTextFile validates and reads the text file at path.
func (a *App) LoadTextFile(path string) intake.Result {
	return intake.Validate(path, a.options.SizeLimit)
}

// ValidateFileForDragDrop applies the text validity rule to a dropped file.
func (a *App) ValidateFileForDragDrop(name string) intake.DragDropResult {
	return intake.ValidateForDragDrop(name)
}

// Capabilities derives which synthesis controls should be enabled.
func (a *App) Capabilities(text, modelPath string) Capabilities {
	busy := a.synth.State() == tts.StateRunning
	modelValid := modelPath != "" && a.ValidateModelPath(modelPath)

	caps := Capabilities{
		Reason:        "",
		CanSynthesize: false,
		CanPreview:    modelValid && !busy,
		Busy:          busy,
	}

	switch {
	case busy:
		caps.Reason = reasonBusy
	case !a.ValidateExecutablePath():
		caps.Reason = reasonExecutable
	case modelPath == "":
		caps.Reason = reasonNoModel
	case !modelValid:
		caps.Reason = reasonModel
	case strings.TrimSpace(text) == "":
		caps.Reason = reasonNoText
	default:
		caps.CanSynthesize = true
	}

	return caps
}

// EstimateDuration estimates how long text takes to speak.
func (a *App) EstimateDuration(text string) time.Duration {
	words := len(strings.Fields(text))
	seconds := math.Ceil(float64(words) / float64(a.options.WordsPerMinute) * secondsPerMinute)

	return time.Duration(seconds) * time.Second
}

// WindowBounds returns the last saved window geometry.
func (a *App) WindowBounds() settings.WindowBounds {
	return a.store.WindowBounds()
}

// SaveWindowBounds persists the window geometry.
func (a *App) SaveWindowBounds(bounds settings.WindowBounds) error {
	return a.store.SetWindowBounds(bounds)
}

func (a *App) resolveOutput(outputPath string) string {
	if outputPath != "" {
		return outputPath
	}

	return a.store.Get(settings.KeyLastOutput, a.options.DefaultOutputPath)
}

// prepare validates req and rejects it early while a job runs. persist is
// attached as the request's BeforeSpawn hook, so the settings are written in
// one update only after the supervisor has reserved the job and before the
// process exists.
func (a *App) prepare(req *tts.Request, persist func(cfg *settings.Configuration)) error {
	validationErr := a.synth.Validate(*req)
	if validationErr != nil {
		return validationErr
	}

	if a.synth.State() == tts.StateRunning {
		return tts.ErrBusy
	}

	if persist == nil {
		return nil
	}

	req.BeforeSpawn = func() error {
		updateErr := a.store.Update(func(cfg *settings.Configuration) error {
			persist(cfg)

			return nil
		})
		if updateErr != nil {
			return fmt.Errorf("failed to save last settings: %w", updateErr)
		}

		return nil
	}

	return nil
}

func (a *App) start(ctx context.Context, req tts.Request) (tts.Outcome, error) {
	if a.options.JobTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, a.options.JobTimeout)
		defer cancel()
	}

	outcome, err := a.synth.Start(ctx, req)
	if err != nil && outcome.JobID == "" {
		return outcome, err
	}

	if err != nil {
		return outcome, fmt.Errorf("synthesis did not complete: %w", err)
	}

	return outcome, nil
}
