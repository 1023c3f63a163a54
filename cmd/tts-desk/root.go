package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-desk/internal/config"
	"github.com/book-expert/tts-desk/internal/core"
	"github.com/book-expert/tts-desk/internal/desk"
	"github.com/book-expert/tts-desk/internal/settings"
	"github.com/book-expert/tts-desk/internal/tts"
	"github.com/spf13/cobra"
)

// Flag names.
const (
	flagConfig   = "config"
	flagModel    = "model"
	flagOutput   = "output"
	flagFile     = "file"
	flagWatch    = "watch"
	flagCheck    = "check"
	flagEmbedded = "embedded"
	flagNATSURL  = "nats-url"
	flagPath     = "path"
	flagText     = "text"
	flagTimeout  = "timeout"
	flagAudioKey = "key"
)

// Flag descriptions.
const (
	flagConfigDesc   = "Path to a tts-desk TOML configuration file (defaults to the central configurator)"
	flagModelDesc    = "Voice model (.onnx); defaults to the last used model, then the first one found"
	flagOutputDesc   = "Output audio file (.wav); defaults to the last output"
	flagFileDesc     = "Stream this text file into the synthesizer instead of reading text"
	flagWatchDesc    = "Keep running and print the list again whenever the model directory changes"
	flagCheckDesc    = "Only report whether the file would be accepted by drag and drop"
	flagEmbeddedDesc = "Run an embedded NATS server instead of connecting to one"
	flagNATSURLDesc  = "NATS server URL, overriding the configuration"
	flagPathDesc     = "Path argument of the remote operation"
	flagTextDesc     = "Text argument of the remote operation"
	flagTimeoutDesc  = "How long to wait for the remote reply"
	flagAudioKeyDesc = "Archive key of the audio to fetch with getAudio"
)

// Messages.
const (
	msgNoFileSelected = "No file selected."
	msgNoVoices       = "No voice models found in '%s'.\n"
	msgGenerated      = "Generated: %s (%s)\n"
	msgEstimate       = "Estimated duration: %s\n"
	msgPreview        = "Preview written to %s\n"
)

var (
	errNoModel      = errors.New("no voice model available; use --model or add models to the model directory")
	errFileRejected = errors.New("text file rejected")
)

// rootOptions holds the persistent flag values shared by every command.
type rootOptions struct {
	configPath string
}

// environment is everything a command needs, built from the configuration.
type environment struct {
	cfg   *config.Config
	log   *logger.Logger
	store *settings.Store
	app   *desk.App
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{configPath: ""}

	root := &cobra.Command{
		Use:   "tts-desk",
		Short: "Desktop front-end core for the Piper speech synthesizer",
		Long: `tts-desk drives a local Piper executable: it remembers the executable,
the voice model directory and the last synthesis, lists the usable voice
models, validates text files and runs one synthesis job at a time.

The serve command exposes the same operations over NATS for a GUI process.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, flagConfig, "", flagConfigDesc)

	root.AddCommand(
		newSpeakCommand(opts),
		newPreviewCommand(opts),
		newVoicesCommand(opts),
		newLoadCommand(opts),
		newStatusCommand(opts),
		newSettingsCommand(opts),
		newServeCommand(opts),
		newRemoteCommand(opts),
	)

	return root
}

// loadConfig follows the service bootstrap: a temporary logger while the
// configuration is loaded, then the real one in the configured directory.
func (o *rootOptions) loadConfig() (*config.Config, *logger.Logger, error) {
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return nil, nil, err
	}

	defer func() { _ = bootstrapLog.Close() }()

	cfg, err := o.readConfig(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return nil, nil, fmt.Errorf("failed to create final logger: %w", err)
	}

	return cfg, finalLog, nil
}

func (o *rootOptions) readConfig(bootstrapLog *logger.Logger) (*config.Config, error) {
	if o.configPath != "" {
		return config.LoadFile(o.configPath)
	}

	cfg, err := config.Load(bootstrapLog)
	if err == nil {
		return cfg, nil
	}

	bootstrapLog.Warn("Central configuration unavailable, using defaults: %v", err)

	return config.FromEnv()
}

// open builds the environment for one command run.
func (o *rootOptions) open(cmd *cobra.Command) (*environment, error) {
	cfg, log, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	env, err := newEnvironment(cfg, log, newPromptDialogs(cmd.InOrStdin(), cmd.ErrOrStderr()))
	if err != nil {
		_ = log.Close()

		return nil, err
	}

	return env, nil
}

func newEnvironment(cfg *config.Config, log *logger.Logger, dialogs core.Dialogs) (*environment, error) {
	store, err := settings.Open(cfg.SettingsPath(), cfg.Seeds(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings: %w", err)
	}

	supervisorOptions, err := cfg.SupervisorOptions()
	if err != nil {
		return nil, err
	}

	supervisor := tts.New(func() string {
		return store.Get(settings.KeyExecutablePath, "")
	}, supervisorOptions, log)

	defaultOutput, err := filepath.Abs(cfg.Synthesis.DefaultOutputName)
	if err != nil {
		defaultOutput = cfg.Synthesis.DefaultOutputName
	}

	app := desk.New(store, supervisor, dialogs, desk.Options{
		PreviewText:       cfg.Synthesis.PreviewText,
		PreviewPath:       filepath.Join(cfg.Paths.CacheDir, cfg.Synthesis.PreviewFileName),
		DefaultOutputPath: defaultOutput,
		SizeLimit:         cfg.Intake.SizeLimitBytes,
		WordsPerMinute:    cfg.Synthesis.WordsPerMinute,
		JobTimeout:        cfg.JobTimeout(),
	}, log)

	log.Info("tts-desk initialized (settings: %s)", store.Path())

	return &environment{cfg: cfg, log: log, store: store, app: app}, nil
}

func (e *environment) close() {
	closeErr := e.log.Close()
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
	}
}

// resolveModel picks the model for a command: the flag, then the last used
// model, then the first model in the directory.
func (e *environment) resolveModel(model string) (string, error) {
	if model != "" {
		return model, nil
	}

	last := e.app.LastSettings().LastModel
	if last != "" && e.app.ValidateModelPath(last) {
		return last, nil
	}

	models := e.app.ListVoiceModels()
	if len(models) == 0 {
		return "", errNoModel
	}

	return models[0], nil
}
