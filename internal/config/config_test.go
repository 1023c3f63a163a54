// Package config_test tests the configuration loading for tts-desk.
package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/tts-desk/internal/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tomlData = `
[synthesis]
model_flag = "-m"
output_flag = "-f"
extra_args = "--length_scale 1.1 --speaker '3'"
preview_text = "Testing one two."
wait_delay_seconds = 5

[intake]
size_limit_bytes = 2048

[paths]
base_logs_dir = "/var/log/tts-desk"
default_executable_path = "/opt/piper/piper"
default_model_directory = "/opt/piper/voices"

[nats]
url = "nats://10.0.0.2:4222"
subject_prefix = "desk"
completion_subject = "desk.events.audio"
audio_object_store_bucket = "AUDIO_FILES"
`

func TestUnmarshalConfig(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "-m", cfg.Synthesis.ModelFlag)
	assert.Equal(t, "-f", cfg.Synthesis.OutputFlag)
	assert.Equal(t, "Testing one two.", cfg.Synthesis.PreviewText)
	assert.Equal(t, int64(2048), cfg.Intake.SizeLimitBytes)
	assert.Equal(t, "/var/log/tts-desk", cfg.Paths.BaseLogsDir)
	assert.Equal(t, "nats://10.0.0.2:4222", cfg.NATS.URL)
	assert.Equal(t, "desk", cfg.NATS.SubjectPrefix)
	assert.Equal(t, "AUDIO_FILES", cfg.NATS.AudioObjectStoreBucket)
}

func writeConfig(t *testing.T, data string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tts-desk.toml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	return path
}

func TestLoadFile_KeepsDefaultsForMissingKeys(t *testing.T) {
	path := writeConfig(t, tomlData)

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	defaults := config.Default()
	assert.Equal(t, defaults.Synthesis.DiagnosticsLimit, cfg.Synthesis.DiagnosticsLimit)
	assert.Equal(t, defaults.NATS.QueueGroup, cfg.NATS.QueueGroup)
	assert.Equal(t, "/opt/piper/piper", cfg.Seeds().ExecutablePath)
	assert.Equal(t, "/opt/piper/voices", cfg.Seeds().ModelDirectory)

	options, err := cfg.SupervisorOptions()
	require.NoError(t, err)
	assert.Equal(t, "-m", options.ModelFlag)
	assert.Equal(t, []string{"--length_scale", "1.1", "--speaker", "3"}, options.ExtraArgs)
	assert.Equal(t, 5*time.Second, options.WaitDelay)
}

func TestLoadFile_EnvironmentOverrides(t *testing.T) {
	t.Setenv("TTSDESK_NATS_URL", "nats://override:4222")
	t.Setenv("TTSDESK_INTAKE_SIZE_LIMIT_BYTES", "4096")
	t.Setenv("TTSDESK_SYNTHESIS_MODEL_FLAG", "--voice")

	cfg, err := config.LoadFile(writeConfig(t, tomlData))
	require.NoError(t, err)

	assert.Equal(t, "nats://override:4222", cfg.NATS.URL)
	assert.Equal(t, int64(4096), cfg.Intake.SizeLimitBytes)
	assert.Equal(t, "--voice", cfg.Synthesis.ModelFlag)
	assert.Equal(t, "desk", cfg.NATS.SubjectPrefix, "unset variables leave file values alone")
}

func TestLoadFile_Errors(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)

	_, err = config.LoadFile(writeConfig(t, "[intake]\nsize_limit_bytes = 0\n"))
	require.ErrorIs(t, err, config.ErrInvalidSizeLimit)

	_, err = config.LoadFile(writeConfig(t, "[synthesis]\nextra_args = \"'unterminated\"\n"))
	require.Error(t, err)

	_, err = config.LoadFile(writeConfig(t, "[nats]\nsubject_prefix = \"\"\n"))
	require.ErrorIs(t, err, config.ErrSubjectPrefixEmpty)
}

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()

	cfg := config.Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "settings.toml", filepath.Base(cfg.SettingsPath()))
	assert.Zero(t, cfg.JobTimeout())
	assert.Equal(t, 300*time.Millisecond, cfg.ModelWatchDebounce())
}
