// Package intake validates and reads user supplied text files.
//
// A file is accepted when its extension is on a fixed allow-list or when its
// first bytes look like plain ASCII text. The content sniff is a heuristic:
// it rejects UTF-8 text with multi-byte characters and accepts binary data
// that happens to stay in the printable range.
package intake

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/tts-desk/internal/fsutil"
)

// DefaultSizeLimit is the largest file loaded into memory as editor text.
const DefaultSizeLimit int64 = 1024 * 1024

// SniffLength is the number of leading bytes inspected by the content check.
const SniffLength = 512

// Printable ASCII range accepted by the content sniff.
const (
	minPrintable = 32
	maxPrintable = 126
)

// Status classifies a validated file.
type Status string

// Possible validation statuses.
const (
	StatusInvalid  Status = "invalid"
	StatusTooLarge Status = "too_large"
	StatusOK       Status = "ok"
)

// Drag-and-drop rejection reasons.
const (
	reasonNoFile          = "no file name given"
	reasonFmtUnsupported  = "%q is not a recognised text file"
	reasonFmtNotReadable  = "%q cannot be read"
	reasonFmtIsADirectory = "%q is a directory"
)

// ErrUnsupportedFile is returned by callers that refuse non-text input.
var ErrUnsupportedFile = errors.New("file is not a supported text file")

var textExtensions = map[string]struct{}{
	".adoc":     {},
	".cfg":      {},
	".conf":     {},
	".csv":      {},
	".htm":      {},
	".html":     {},
	".ini":      {},
	".json":     {},
	".log":      {},
	".markdown": {},
	".md":       {},
	".rst":      {},
	".rtf":      {},
	".srt":      {},
	".tex":      {},
	".text":     {},
	".txt":      {},
	".xml":      {},
	".yaml":     {},
	".yml":      {},
}

// Result is the outcome of Validate. Text is only set when Status is StatusOK.
type Result struct {
	Status Status `json:"status"`
	Path   string `json:"path"`
	Text   string `json:"text,omitempty"`
	Size   int64  `json:"size"`
}

// DragDropResult tells the presentation layer whether a dropped file is accepted.
type DragDropResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Message describes the result for a status line.
func (r Result) Message() string {
	switch r.Status {
	case StatusOK:
		return fmt.Sprintf("loaded %s (%s)", filepath.Base(r.Path), fsutil.FormatFileSize(r.Size))
	case StatusTooLarge:
		return fmt.Sprintf("%s is too large to edit (%s)", filepath.Base(r.Path), fsutil.FormatFileSize(r.Size))
	default:
		return fmt.Sprintf("%s is not a supported text file", filepath.Base(r.Path))
	}
}

// HasTextExtension reports whether name carries an allow-listed extension.
func HasTextExtension(name string) bool {
	_, ok := textExtensions[strings.ToLower(filepath.Ext(name))]

	return ok
}

// IsProbablyText sniffs the first SniffLength bytes of path. Every byte must
// be a tab, line feed, carriage return or printable ASCII. Read errors count
// as binary.
func IsProbablyText(path string) bool {
	file, openErr := os.Open(path)
	if openErr != nil {
		return false
	}
	defer file.Close()

	buf := make([]byte, SniffLength)

	n, readErr := io.ReadFull(file, buf)
	if readErr != nil && !errors.Is(readErr, io.ErrUnexpectedEOF) && !errors.Is(readErr, io.EOF) {
		return false
	}

	for _, b := range buf[:n] {
		if !isTextByte(b) {
			return false
		}
	}

	return true
}

func isTextByte(b byte) bool {
	switch b {
	case '\t', '\n', '\r':
		return true
	default:
		return b >= minPrintable && b <= maxPrintable
	}
}

// IsTextFile applies the extension rule, falling back to the content sniff.
func IsTextFile(path string) bool {
	return HasTextExtension(path) || IsProbablyText(path)
}

// Validate classifies the file at path and reads it when it is text of at
// most limit bytes. A non-positive limit selects DefaultSizeLimit.
func Validate(path string, limit int64) Result {
	if limit <= 0 {
		limit = DefaultSizeLimit
	}

	result := Result{Status: StatusInvalid, Path: path, Text: "", Size: 0}

	info, statErr := os.Stat(path)
	if statErr != nil || !info.Mode().IsRegular() {
		return result
	}

	if !IsTextFile(path) {
		return result
	}

	result.Size = info.Size()

	if info.Size() > limit {
		result.Status = StatusTooLarge

		return result
	}

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return result
	}

	result.Status = StatusOK
	result.Text = string(data)
	result.Size = int64(len(data))

	return result
}

// ValidateForDragDrop applies only the validity rule to a dropped file; the
// size check is left to the caller. name may be a bare file name, in which
// case only the extension rule can pass.
func ValidateForDragDrop(name string) DragDropResult {
	if strings.TrimSpace(name) == "" {
		return DragDropResult{Valid: false, Reason: reasonNoFile}
	}

	if HasTextExtension(name) {
		return DragDropResult{Valid: true, Reason: ""}
	}

	info, statErr := os.Stat(name)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return DragDropResult{Valid: false, Reason: fmt.Sprintf(reasonFmtUnsupported, filepath.Base(name))}
		}

		return DragDropResult{Valid: false, Reason: fmt.Sprintf(reasonFmtNotReadable, filepath.Base(name))}
	}

	if info.IsDir() {
		return DragDropResult{Valid: false, Reason: fmt.Sprintf(reasonFmtIsADirectory, filepath.Base(name))}
	}

	if IsProbablyText(name) {
		return DragDropResult{Valid: true, Reason: ""}
	}

	return DragDropResult{Valid: false, Reason: fmt.Sprintf(reasonFmtUnsupported, filepath.Base(name))}
}
