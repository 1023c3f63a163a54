package settings_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-desk/internal/settings"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "settings-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func openStore(t *testing.T, path string, seeds settings.Seeds) *settings.Store {
	t.Helper()

	store, err := settings.Open(path, seeds, newTestLogger(t))
	require.NoError(t, err)

	return store
}

func TestOpen_FirstRunDefaults(t *testing.T) {
	t.Parallel()

	store := openStore(t, filepath.Join(t.TempDir(), settings.FileName), settings.Seeds{})

	snapshot := store.Snapshot()
	assert.Empty(t, snapshot.ExecutablePath)
	assert.Empty(t, snapshot.ModelDirectory)
	assert.Empty(t, snapshot.LastText)
	assert.Equal(t, settings.DefaultWindowWidth, snapshot.Window.Width)
	assert.Equal(t, settings.DefaultWindowHeight, snapshot.Window.Height)
	assert.Nil(t, snapshot.Window.X)
}

func TestGet_ReturnsDefaultForAbsentKeys(t *testing.T) {
	t.Parallel()

	store := openStore(t, filepath.Join(t.TempDir(), settings.FileName), settings.Seeds{})

	assert.Equal(t, "fallback", store.Get(settings.KeyLastModel, "fallback"))
	assert.Equal(t, "fallback", store.Get(settings.Key("noSuchKey"), "fallback"))
}

func TestGet_EmptyValueReadsAsUnset(t *testing.T) {
	t.Parallel()

	store := openStore(t, filepath.Join(t.TempDir(), settings.FileName), settings.Seeds{})

	require.NoError(t, store.Set(settings.KeyLastOutput, "/tmp/speech.wav"))
	require.NoError(t, store.Set(settings.KeyLastOutput, ""))

	assert.Equal(t, "fallback", store.Get(settings.KeyLastOutput, "fallback"),
		"a cleared value behaves like one that was never set")
	assert.Empty(t, store.Get(settings.KeyLastOutput, ""))
	assert.Empty(t, store.Snapshot().LastOutput)
}

func TestSet_RejectsUnknownKey(t *testing.T) {
	t.Parallel()

	store := openStore(t, filepath.Join(t.TempDir(), settings.FileName), settings.Seeds{})

	err := store.Set(settings.Key("noSuchKey"), "value")
	require.ErrorIs(t, err, settings.ErrUnknownKey)
}

func TestSetGet_RoundTripAcrossRestart(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), settings.FileName)
	dir := t.TempDir()

	values := map[settings.Key]string{
		settings.KeyExecutablePath: filepath.Join(dir, "piper"),
		settings.KeyModelDirectory: dir,
		settings.KeyLastModel:      filepath.Join(dir, "amy.onnx"),
		settings.KeyLastOutput:     filepath.Join(dir, "out.wav"),
		settings.KeyLastText:       "Hello, \"world\"\nsecond line",
	}

	// The executable has to exist or seeding would treat it as stale.
	require.NoError(t, os.WriteFile(values[settings.KeyExecutablePath], nil, 0o600))

	store := openStore(t, path, settings.Seeds{})
	for key, value := range values {
		require.NoError(t, store.Set(key, value))
		assert.Equal(t, value, store.Get(key, "default"))
	}

	reopened := openStore(t, path, settings.Seeds{})
	for key, value := range values {
		assert.Equal(t, value, reopened.Get(key, "default"), string(key))
	}
}

func TestSettingsFileIsValidTOMLAfterEveryWrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), settings.FileName)
	store := openStore(t, path, settings.Seeds{})

	for _, text := range []string{"one", "two = 'x'", "[section]", ""} {
		require.NoError(t, store.Set(settings.KeyLastText, text))

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var decoded settings.Configuration
		require.NoError(t, toml.Unmarshal(data, &decoded))
		assert.Equal(t, text, decoded.LastText)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestUpdate_WritesSeveralFieldsAtOnce(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), settings.FileName)
	store := openStore(t, path, settings.Seeds{})

	err := store.Update(func(cfg *settings.Configuration) error {
		cfg.LastText = "text"
		cfg.LastModel = "model.onnx"
		cfg.LastOutput = "out.wav"

		return nil
	})
	require.NoError(t, err)

	reopened := openStore(t, path, settings.Seeds{}).Snapshot()
	assert.Equal(t, "text", reopened.LastText)
	assert.Equal(t, "model.onnx", reopened.LastModel)
	assert.Equal(t, "out.wav", reopened.LastOutput)
}

func TestOpen_CorruptFileFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), settings.FileName)
	require.NoError(t, os.WriteFile(path, []byte("this is = = not toml"), 0o600))

	store := openStore(t, path, settings.Seeds{})

	assert.Equal(t, "d", store.Get(settings.KeyLastText, "d"))
	assert.Equal(t, settings.DefaultWindowWidth, store.WindowBounds().Width)
}

func TestSeeds_FillMissingPathsOnly(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	seedBinary := filepath.Join(base, "piper")
	seedVoices := filepath.Join(base, "voices")

	require.NoError(t, os.WriteFile(seedBinary, nil, 0o600))
	require.NoError(t, os.Mkdir(seedVoices, 0o750))

	seeds := settings.Seeds{ExecutablePath: seedBinary, ModelDirectory: seedVoices}
	path := filepath.Join(t.TempDir(), settings.FileName)

	store := openStore(t, path, seeds)
	assert.Equal(t, seedBinary, store.Get(settings.KeyExecutablePath, ""))
	assert.Equal(t, seedVoices, store.Get(settings.KeyModelDirectory, ""))

	userBinary := filepath.Join(t.TempDir(), "my-piper")
	require.NoError(t, os.WriteFile(userBinary, nil, 0o600))
	require.NoError(t, store.Set(settings.KeyExecutablePath, userBinary))

	reopened := openStore(t, path, seeds)
	assert.Equal(t, userBinary, reopened.Get(settings.KeyExecutablePath, ""), "valid user path is kept")

	require.NoError(t, reopened.Set(settings.KeyExecutablePath, filepath.Join(base, "gone")))

	stale := openStore(t, path, seeds)
	assert.Equal(t, seedBinary, stale.Get(settings.KeyExecutablePath, ""), "stale path is reseeded")
}

func TestSeeds_IgnoredWhenDefaultLocationMissing(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "absent")
	seeds := settings.Seeds{ExecutablePath: missing, ModelDirectory: missing}

	store := openStore(t, filepath.Join(t.TempDir(), settings.FileName), seeds)

	assert.Empty(t, store.Get(settings.KeyExecutablePath, ""))
	assert.Empty(t, store.Get(settings.KeyModelDirectory, ""))
}

func TestClear_RestoresSeededDefaults(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	seedVoices := filepath.Join(base, "voices")
	require.NoError(t, os.Mkdir(seedVoices, 0o750))

	seeds := settings.Seeds{ExecutablePath: filepath.Join(base, "piper"), ModelDirectory: seedVoices}
	store := openStore(t, filepath.Join(t.TempDir(), settings.FileName), seeds)

	require.NoError(t, store.Set(settings.KeyModelDirectory, t.TempDir()))
	require.NoError(t, store.Set(settings.KeyLastText, "keep me?"))

	require.NoError(t, store.Clear())

	snapshot := store.Snapshot()
	assert.Equal(t, seedVoices, snapshot.ModelDirectory)
	assert.Empty(t, snapshot.ExecutablePath, "seed binary does not exist")
	assert.Empty(t, snapshot.LastText)
	assert.Equal(t, settings.DefaultWindowWidth, snapshot.Window.Width)
}

func TestWindowBounds(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), settings.FileName)
	store := openStore(t, path, settings.Seeds{})

	x, y := 10, 20
	require.NoError(t, store.SetWindowBounds(settings.WindowBounds{X: &x, Y: &y, Width: 800, Height: 600}))

	err := store.SetWindowBounds(settings.WindowBounds{Width: 0, Height: 600})
	require.ErrorIs(t, err, settings.ErrInvalidBounds)

	bounds := openStore(t, path, settings.Seeds{}).WindowBounds()
	assert.Equal(t, 800, bounds.Width)
	assert.Equal(t, 600, bounds.Height)
	require.NotNil(t, bounds.X)
	require.NotNil(t, bounds.Y)
	assert.Equal(t, 10, *bounds.X)
	assert.Equal(t, 20, *bounds.Y)
}
