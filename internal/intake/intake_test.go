package intake_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/tts-desk/internal/intake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

func TestValidate_ExtensionShortCircuitsContentSniff(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "doc.txt", []byte{0x00, 0xFF, 0xFE, 0x80})

	result := intake.Validate(path, intake.DefaultSizeLimit)

	assert.Equal(t, intake.StatusOK, result.Status)
	assert.Equal(t, path, result.Path)
	assert.Equal(t, string([]byte{0x00, 0xFF, 0xFE, 0x80}), result.Text)
}

func TestValidate_ExtensionIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "NOTES.MD", []byte("# heading"))

	assert.Equal(t, intake.StatusOK, intake.Validate(path, 0).Status)
}

func TestValidate_UnknownExtensionWithBinaryIsInvalid(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "blob.bin", []byte{0x00, 0xFF})

	result := intake.Validate(path, intake.DefaultSizeLimit)

	assert.Equal(t, intake.StatusInvalid, result.Status)
	assert.Empty(t, result.Text)
}

func TestValidate_UnknownExtensionWithASCIIIsAccepted(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "chapter.one", []byte("Call me Ishmael.\r\n\tSome years ago...\n"))

	result := intake.Validate(path, intake.DefaultSizeLimit)

	assert.Equal(t, intake.StatusOK, result.Status)
	assert.Contains(t, result.Text, "Ishmael")
}

func TestValidate_MultiByteUTF8FailsTheSniff(t *testing.T) {
	t.Parallel()

	// The sniff is ASCII only, so accented text needs a known extension.
	path := writeFile(t, "café.data", []byte("déjà vu"))

	assert.Equal(t, intake.StatusInvalid, intake.Validate(path, 0).Status)
}

func TestValidate_TooLarge(t *testing.T) {
	t.Parallel()

	const mebibyte = 1024 * 1024

	path := writeFile(t, "big.txt", bytes.Repeat([]byte("a"), 2*mebibyte))

	result := intake.Validate(path, mebibyte)

	assert.Equal(t, intake.StatusTooLarge, result.Status)
	assert.Equal(t, int64(2*mebibyte), result.Size)
	assert.Empty(t, result.Text)
	assert.Contains(t, result.Message(), "2.0 MiB")
}

func TestValidate_SniffOnlyLooksAtThePrefix(t *testing.T) {
	t.Parallel()

	data := append(bytes.Repeat([]byte("x"), intake.SniffLength), 0x00)
	path := writeFile(t, "tail.bin", data)

	assert.True(t, intake.IsProbablyText(path))
}

func TestValidate_MissingOrDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	assert.Equal(t, intake.StatusInvalid, intake.Validate(filepath.Join(dir, "gone.txt"), 0).Status)
	assert.Equal(t, intake.StatusInvalid, intake.Validate(dir, 0).Status)
	assert.False(t, intake.IsProbablyText(filepath.Join(dir, "gone")))
}

func TestValidate_EmptyFileIsText(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "empty", nil)

	result := intake.Validate(path, 0)

	assert.Equal(t, intake.StatusOK, result.Status)
	assert.Empty(t, result.Text)
}

func TestValidateForDragDrop(t *testing.T) {
	t.Parallel()

	asciiPath := writeFile(t, "script", []byte("plain words"))
	binaryPath := writeFile(t, "image.png", []byte{0x89, 'P', 'N', 'G', 0x00})

	tests := []struct {
		name  string
		file  string
		valid bool
	}{
		{name: "bare text name", file: "notes.txt", valid: true},
		{name: "bare upper case name", file: "README.MD", valid: true},
		{name: "bare unknown name", file: "photo.jpeg", valid: false},
		{name: "ascii file without extension", file: asciiPath, valid: true},
		{name: "binary file", file: binaryPath, valid: false},
		{name: "empty name", file: " ", valid: false},
		{name: "directory", file: t.TempDir(), valid: false},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			result := intake.ValidateForDragDrop(testCase.file)

			assert.Equal(t, testCase.valid, result.Valid)

			if testCase.valid {
				assert.Empty(t, result.Reason)
			} else {
				assert.NotEmpty(t, result.Reason)
			}
		})
	}
}

func TestResultMessage(t *testing.T) {
	t.Parallel()

	ok := intake.Result{Status: intake.StatusOK, Path: "/tmp/a.txt", Size: 1024}
	invalid := intake.Result{Status: intake.StatusInvalid, Path: "/tmp/a.bin"}

	assert.Equal(t, "loaded a.txt (1.0 KiB)", ok.Message())
	assert.Equal(t, "a.bin is not a supported text file", invalid.Message())
}
