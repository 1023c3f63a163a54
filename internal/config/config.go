// Package config provides the configuration structure for tts-desk.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/book-expert/tts-desk/internal/fsutil"
	"github.com/book-expert/tts-desk/internal/intake"
	"github.com/book-expert/tts-desk/internal/settings"
	"github.com/book-expert/tts-desk/internal/tts"
	"github.com/caarlos0/env/v11"
	"github.com/mattn/go-shellwords"
	"github.com/pelletier/go-toml/v2"
)

const defaultPreviewText = "Hello! This is a preview of the selected voice."

var (
	// ErrInvalidSizeLimit indicates a non-positive intake size limit.
	ErrInvalidSizeLimit = errors.New("intake size limit must be positive")
	// ErrInvalidTimeout indicates a negative timeout.
	ErrInvalidTimeout = errors.New("timeouts must be non-negative")
	// ErrSubjectPrefixEmpty indicates a missing NATS subject prefix.
	ErrSubjectPrefixEmpty = errors.New("nats subject prefix cannot be empty")
)

// SynthesisConfig holds how the synthesis executable is invoked.
type SynthesisConfig struct {
	ModelFlag            string `toml:"model_flag"              env:"MODEL_FLAG"`
	OutputFlag           string `toml:"output_flag"             env:"OUTPUT_FLAG"`
	ExtraArgs            string `toml:"extra_args"              env:"EXTRA_ARGS"`
	PreviewText          string `toml:"preview_text"            env:"PREVIEW_TEXT"`
	PreviewFileName      string `toml:"preview_file_name"       env:"PREVIEW_FILE_NAME"`
	DefaultOutputName    string `toml:"default_output_name"     env:"DEFAULT_OUTPUT_NAME"`
	DiagnosticsLimit     int    `toml:"diagnostics_limit"       env:"DIAGNOSTICS_LIMIT"`
	WaitDelaySeconds     int    `toml:"wait_delay_seconds"      env:"WAIT_DELAY_SECONDS"`
	JobTimeoutSeconds    int    `toml:"job_timeout_seconds"     env:"JOB_TIMEOUT_SECONDS"`
	WordsPerMinute       int    `toml:"words_per_minute"        env:"WORDS_PER_MINUTE"`
	ModelWatchDebounceMS int    `toml:"model_watch_debounce_ms" env:"MODEL_WATCH_DEBOUNCE_MS"`
}

// IntakeConfig holds the text file intake limits.
type IntakeConfig struct {
	SizeLimitBytes int64 `toml:"size_limit_bytes" env:"SIZE_LIMIT_BYTES"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir           string `toml:"base_logs_dir"           env:"BASE_LOGS_DIR"`
	DataDir               string `toml:"data_dir"                env:"DATA_DIR"`
	CacheDir              string `toml:"cache_dir"               env:"CACHE_DIR"`
	DefaultExecutablePath string `toml:"default_executable_path" env:"DEFAULT_EXECUTABLE_PATH"`
	DefaultModelDirectory string `toml:"default_model_directory" env:"DEFAULT_MODEL_DIRECTORY"`
}

// NATSConfig holds the configuration for the NATS request/reply endpoint.
type NATSConfig struct {
	URL                    string `toml:"url"                       env:"URL"`
	SubjectPrefix          string `toml:"subject_prefix"            env:"SUBJECT_PREFIX"`
	QueueGroup             string `toml:"queue_group"               env:"QUEUE_GROUP"`
	CompletionSubject      string `toml:"completion_subject"        env:"COMPLETION_SUBJECT"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket" env:"AUDIO_OBJECT_STORE_BUCKET"`
	Embedded               bool   `toml:"embedded"                  env:"EMBEDDED"`
	EmbeddedPort           int    `toml:"embedded_port"             env:"EMBEDDED_PORT"`
	EmbeddedStoreDir       string `toml:"embedded_store_dir"        env:"EMBEDDED_STORE_DIR"`
}

// Config is the root configuration structure.
type Config struct {
	Synthesis SynthesisConfig `toml:"synthesis" envPrefix:"SYNTHESIS_"`
	Intake    IntakeConfig    `toml:"intake"    envPrefix:"INTAKE_"`
	Paths     PathsConfig     `toml:"paths"     envPrefix:"PATHS_"`
	NATS      NATSConfig      `toml:"nats"      envPrefix:"NATS_"`
}

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TTSDESK_"

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Synthesis: SynthesisConfig{
			ModelFlag:            tts.DefaultModelFlag,
			OutputFlag:           tts.DefaultOutputFlag,
			ExtraArgs:            "",
			PreviewText:          defaultPreviewText,
			DiagnosticsLimit:     tts.DefaultDiagnosticsLimit,
			WaitDelaySeconds:     int(tts.DefaultWaitDelay / time.Second),
			DefaultOutputName:    "output.wav",
			WordsPerMinute:       160,
			JobTimeoutSeconds:    0,
			PreviewFileName:      "preview.wav",
			ModelWatchDebounceMS: 300,
		},
		Intake: IntakeConfig{
			SizeLimitBytes: intake.DefaultSizeLimit,
		},
		Paths: PathsConfig{
			BaseLogsDir:           filepath.Join(fsutil.CacheDir(), "logs"),
			DataDir:               fsutil.DataDir(),
			CacheDir:              fsutil.CacheDir(),
			DefaultExecutablePath: "./piper",
			DefaultModelDirectory: "./voices",
		},
		NATS: NATSConfig{
			URL:                    "nats://127.0.0.1:4222",
			SubjectPrefix:          "ttsdesk",
			QueueGroup:             "tts-desk",
			CompletionSubject:      "ttsdesk.events.audio",
			AudioObjectStoreBucket: "",
			Embedded:               false,
			EmbeddedPort:           4222,
			EmbeddedStoreDir:       "",
		},
	}
}

// Load loads the configuration through the central configurator, starting
// from the defaults and applying environment overrides.
func Load(log *logger.Logger) (*Config, error) {
	cfg := Default()

	err := configurator.Load(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(cfg)
}

// LoadFile loads a TOML configuration file on top of the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file '%s': %w", path, err)
	}

	err = toml.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file '%s': %w", path, err)
	}

	return finish(cfg)
}

// FromEnv returns the defaults with environment overrides applied.
func FromEnv() (*Config, error) {
	return finish(Default())
}

func finish(cfg *Config) (*Config, error) {
	err := cfg.ApplyEnv()
	if err != nil {
		return nil, err
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv overrides fields from TTSDESK_* environment variables.
func (c *Config) ApplyEnv() error {
	err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix})
	if err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	return nil
}

// Validate checks ranges and required values.
func (c *Config) Validate() error {
	if c.Intake.SizeLimitBytes <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSizeLimit, c.Intake.SizeLimitBytes)
	}

	if c.Synthesis.WaitDelaySeconds < 0 || c.Synthesis.JobTimeoutSeconds < 0 {
		return ErrInvalidTimeout
	}

	if c.NATS.SubjectPrefix == "" {
		return ErrSubjectPrefixEmpty
	}

	_, err := c.Synthesis.SplitExtraArgs()

	return err
}

// SplitExtraArgs splits the extra argument string the way a shell would.
func (s SynthesisConfig) SplitExtraArgs() ([]string, error) {
	if s.ExtraArgs == "" {
		return nil, nil
	}

	args, err := shellwords.Parse(s.ExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse extra synthesis arguments %q: %w", s.ExtraArgs, err)
	}

	return args, nil
}

// SupervisorOptions converts the synthesis section for the process supervisor.
func (c *Config) SupervisorOptions() (tts.Options, error) {
	extraArgs, err := c.Synthesis.SplitExtraArgs()
	if err != nil {
		return tts.Options{}, err
	}

	return tts.Options{
		ModelFlag:        c.Synthesis.ModelFlag,
		OutputFlag:       c.Synthesis.OutputFlag,
		ExtraArgs:        extraArgs,
		DiagnosticsLimit: c.Synthesis.DiagnosticsLimit,
		WaitDelay:        time.Duration(c.Synthesis.WaitDelaySeconds) * time.Second,
	}, nil
}

// SettingsPath returns the location of the persisted user settings.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.Paths.DataDir, settings.FileName)
}

// Seeds returns the default executable and model locations.
func (c *Config) Seeds() settings.Seeds {
	return settings.Seeds{
		ExecutablePath: c.Paths.DefaultExecutablePath,
		ModelDirectory: c.Paths.DefaultModelDirectory,
	}
}

// JobTimeout returns the per-job timeout, zero meaning none.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Synthesis.JobTimeoutSeconds) * time.Second
}

// ModelWatchDebounce returns the model directory watcher debounce.
func (c *Config) ModelWatchDebounce() time.Duration {
	return time.Duration(c.Synthesis.ModelWatchDebounceMS) * time.Millisecond
}
