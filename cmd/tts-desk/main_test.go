package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-desk/internal/config"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const echoScript = `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output_file) out="$2"; shift ;;
  esac
  shift
done
cat > "$out"
`

const testConfigTemplate = `
[synthesis]
default_output_name = %q
preview_text = "Sample."

[paths]
base_logs_dir = %q
data_dir = %q
cache_dir = %q
default_executable_path = %q
default_model_directory = %q

[nats]
subject_prefix = "clitest"
completion_subject = "clitest.events.audio"
`

type cliFixture struct {
	dir        string
	configPath string
	executable string
	model      string
}

func newCLIFixture(t *testing.T) cliFixture {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("shell script executables are not available on windows")
	}

	dir := t.TempDir()
	voicesDir := filepath.Join(dir, "voices")
	model := filepath.Join(voicesDir, "en_US-ryan-high.onnx")
	executable := filepath.Join(dir, "piper")

	require.NoError(t, os.Mkdir(voicesDir, 0o750))
	require.NoError(t, os.WriteFile(model, []byte("onnx"), 0o600))
	require.NoError(t, os.WriteFile(model+".json", []byte("{}"), 0o600))
	require.NoError(t, os.WriteFile(executable, []byte(echoScript), 0o700))

	configPath := filepath.Join(dir, "tts-desk.toml")
	content := fmt.Sprintf(testConfigTemplate,
		filepath.Join(dir, "output.wav"),
		dir,
		filepath.Join(dir, "data"),
		filepath.Join(dir, "cache"),
		executable,
		voicesDir,
	)
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	return cliFixture{dir: dir, configPath: configPath, executable: executable, model: model}
}

func (f cliFixture) execute(ctx context.Context, stdin string, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer

	root := newRootCommand()
	root.SetArgs(append([]string{"--" + flagConfig, f.configPath}, args...))
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)

	err := root.ExecuteContext(ctx)

	return stdout.String(), stderr.String(), err
}

func TestSpeak_UsesSeededSettingsAndRemembersText(t *testing.T) {
	t.Parallel()

	fix := newCLIFixture(t)
	ctx := context.Background()

	stdout, _, err := fix.execute(ctx, "", "voices")
	require.NoError(t, err)
	assert.Contains(t, stdout, fix.model)

	output := filepath.Join(fix.dir, "hello.wav")

	stdout, stderr, err := fix.execute(ctx, "", "speak", "-o", output, "hello", "world")
	require.NoError(t, err)
	assert.Contains(t, stdout, output)
	assert.Contains(t, stderr, "Estimated duration")

	written, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(written))

	stdout, _, err = fix.execute(ctx, "", "settings", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "hello world")
	assert.Contains(t, stdout, fix.executable)

	stdout, _, err = fix.execute(ctx, "", "status")
	require.NoError(t, err)
	assert.Regexp(t, `Can synthesize:\s+true`, stdout)
}

func TestSpeak_ReadsStandardInputAndStreamsFiles(t *testing.T) {
	t.Parallel()

	fix := newCLIFixture(t)
	ctx := context.Background()

	_, _, err := fix.execute(ctx, "from stdin", "speak", "-m", fix.model)
	require.NoError(t, err)

	written, err := os.ReadFile(filepath.Join(fix.dir, "output.wav"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", string(written))

	source := filepath.Join(fix.dir, "chapter.txt")
	require.NoError(t, os.WriteFile(source, []byte("Chapter one."), 0o600))

	output := filepath.Join(fix.dir, "chapter.wav")

	_, stderr, err := fix.execute(ctx, "", "speak", "--file", source, "-o", output)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Streaming")

	written, err = os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "Chapter one.", string(written))
}

func TestPreview(t *testing.T) {
	t.Parallel()

	fix := newCLIFixture(t)

	stdout, _, err := fix.execute(context.Background(), "", "preview")
	require.NoError(t, err)

	preview := filepath.Join(fix.dir, "cache", "preview.wav")
	assert.Contains(t, stdout, preview)

	written, err := os.ReadFile(preview)
	require.NoError(t, err)
	assert.Equal(t, "Sample.", string(written))
}

func TestLoad(t *testing.T) {
	t.Parallel()

	fix := newCLIFixture(t)
	ctx := context.Background()

	notes := filepath.Join(fix.dir, "notes.md")
	require.NoError(t, os.WriteFile(notes, []byte("# Notes"), 0o600))

	stdout, _, err := fix.execute(ctx, "", "load", notes)
	require.NoError(t, err)
	assert.Equal(t, "# Notes", stdout)

	blob := filepath.Join(fix.dir, "blob.bin")
	require.NoError(t, os.WriteFile(blob, []byte{0x00, 0xFF}, 0o600))

	_, _, err = fix.execute(ctx, "", "load", blob)
	require.ErrorIs(t, err, errFileRejected)

	_, _, err = fix.execute(ctx, "", "load", "--check", filepath.Join(fix.dir, "missing.xyz"))
	require.ErrorIs(t, err, errFileRejected)

	stdout, _, err = fix.execute(ctx, "", "load", "--check", "chapter.txt")
	require.NoError(t, err)
	assert.Contains(t, stdout, "accepted")

	_, stderr, err := fix.execute(ctx, "\n", "load")
	require.NoError(t, err)
	assert.Contains(t, stderr, msgNoFileSelected)

	stdout, _, err = fix.execute(ctx, notes+"\n", "load")
	require.NoError(t, err)
	assert.Equal(t, "# Notes", stdout)
}

func TestSettings_ChooseSetAndReset(t *testing.T) {
	t.Parallel()

	fix := newCLIFixture(t)
	ctx := context.Background()

	chosen := filepath.Join(fix.dir, "chosen.wav")

	stdout, _, err := fix.execute(ctx, chosen+"\n", "settings", "choose-output")
	require.NoError(t, err)
	assert.Contains(t, stdout, chosen)

	stdout, _, err = fix.execute(ctx, "", "settings", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, chosen)

	other := t.TempDir()

	_, _, err = fix.execute(ctx, "", "settings", "set-models", other)
	require.NoError(t, err)

	stdout, _, err = fix.execute(ctx, "", "voices")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No voice models found")

	_, _, err = fix.execute(ctx, "", "speak", "text")
	require.ErrorIs(t, err, errNoModel)

	stdout, _, err = fix.execute(ctx, "", "settings", "reset")
	require.NoError(t, err)
	assert.Contains(t, stdout, fix.executable)
	assert.Contains(t, stdout, filepath.Join(fix.dir, "voices"))

	stdout, _, err = fix.execute(ctx, "", "settings", "show")
	require.NoError(t, err)
	assert.NotContains(t, stdout, chosen)
}

func TestServeAndRemote(t *testing.T) {
	t.Parallel()

	fix := newCLIFixture(t)

	cfg := config.Default()
	cfg.NATS.EmbeddedPort = -1
	cfg.NATS.EmbeddedStoreDir = t.TempDir()

	log, err := logger.New(t.TempDir(), "cli-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	natsServer, err := startEmbeddedServer(cfg, log)
	require.NoError(t, err)
	t.Cleanup(natsServer.Shutdown)

	url := natsServer.ClientURL()

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)

	go func() {
		_, _, serveErr := fix.execute(ctx, "", "serve", "--"+flagNATSURL, url)
		served <- serveErr
	}()

	var stdout string

	require.Eventually(t, func() bool {
		out, _, remoteErr := fix.execute(context.Background(), "", "remote", "listVoiceModels", "--"+flagNATSURL, url)
		stdout = out

		return remoteErr == nil
	}, 10*time.Second, 50*time.Millisecond)

	assert.Contains(t, stdout, fix.model)

	natsConnection, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(natsConnection.Close)

	completions, err := natsConnection.SubscribeSync("clitest.events.audio")
	require.NoError(t, err)
	require.NoError(t, natsConnection.Flush())

	output := filepath.Join(fix.dir, "remote.wav")

	stdout, _, err = fix.execute(context.Background(), "", "remote", "runSynthesis",
		"--"+flagNATSURL, url, "--"+flagText, "remote words", "-m", fix.model, "-o", output)
	require.NoError(t, err)
	assert.Contains(t, stdout, `"completed"`)

	_, err = completions.NextMsg(5 * time.Second)
	require.NoError(t, err)

	written, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "remote words", string(written))

	cancel()

	select {
	case serveErr := <-served:
		require.NoError(t, serveErr)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}
