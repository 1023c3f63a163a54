package worker

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/book-expert/tts-desk/internal/intake"
	"github.com/book-expert/tts-desk/internal/settings"
	"github.com/book-expert/tts-desk/internal/tts"
	"github.com/nats-io/nats.go"
)

// Operations served by the worker. Each one is the last token of the
// request subject, e.g. "ttsdesk.runSynthesis".
const (
	OpGetExecutablePath       = "getExecutablePath"
	OpSetExecutablePath       = "setExecutablePath"
	OpValidateExecutablePath  = "validateExecutablePath"
	OpGetModelDirectory       = "getModelDirectory"
	OpSetModelDirectory       = "setModelDirectory"
	OpListVoiceModels         = "listVoiceModels"
	OpValidateModelPath       = "validateModelPath"
	OpSetOutputPath           = "setOutputPath"
	OpRunSynthesis            = "runSynthesis"
	OpPreviewVoice            = "previewVoice"
	OpCancelSynthesis         = "cancelSynthesis"
	OpGetLastSettings         = "getLastSettings"
	OpResetSettings           = "resetSettings"
	OpReadTextFile            = "readTextFile"
	OpSynthesizeFromFile      = "synthesizeFromFile"
	OpValidateFileForDragDrop = "validateFileForDragDrop"
	OpCapabilities            = "capabilities"
	OpEstimateDuration        = "estimateDuration"
	OpGetWindowBounds         = "getWindowBounds"
	OpSaveWindowBounds        = "saveWindowBounds"
	OpGetAudio                = "getAudio"
)

// ErrorKind classifies a failed request for the caller.
type ErrorKind string

// Error kinds carried in Reply.Kind.
const (
	KindConfiguration  ErrorKind = "configuration"
	KindProcess        ErrorKind = "process"
	KindBusy           ErrorKind = "busy"
	KindCancelled      ErrorKind = "cancelled"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindInternal       ErrorKind = "internal"
)

var (
	// ErrUnknownOperation is returned for a subject the worker does not serve.
	ErrUnknownOperation = errors.New("unknown operation")
	// ErrInvalidRequest is returned for a body that cannot be decoded.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrMissingField is returned when an operation's required field is empty.
	ErrMissingField = errors.New("required field is missing")
	// ErrNoArchive is returned by getAudio when the worker archives nothing.
	ErrNoArchive = errors.New("no audio archive is configured")
)

// Request is the JSON body of every operation. Each operation reads only
// the fields it needs.
type Request struct {
	Path       string                 `json:"path,omitempty"`
	Text       string                 `json:"text,omitempty"`
	ModelPath  string                 `json:"modelPath,omitempty"`
	OutputPath string                 `json:"outputPath,omitempty"`
	AudioKey   string                 `json:"audioKey,omitempty"`
	Bounds     *settings.WindowBounds `json:"bounds,omitempty"`
}

// Reply is the JSON envelope of every response. Data may be set on failed
// synthesis replies to carry the outcome and its diagnostics.
type Reply struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Kind  ErrorKind       `json:"kind,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SynthesisResult answers runSynthesis, previewVoice and synthesizeFromFile.
type SynthesisResult struct {
	Outcome  tts.Outcome `json:"outcome"`
	AudioKey string      `json:"audioKey,omitempty"`
}

// ArchivedAudio answers getAudio. Data is base64 in JSON.
type ArchivedAudio struct {
	AudioKey string `json:"audioKey"`
	Data     []byte `json:"data"`
}

// DurationEstimate answers estimateDuration.
type DurationEstimate struct {
	Seconds   float64 `json:"seconds"`
	Formatted string  `json:"formatted"`
}

// kindOf maps an operation error onto the reply taxonomy.
func kindOf(err error) ErrorKind {
	var (
		configErr  *tts.ConfigurationError
		processErr *tts.ProcessFailure
	)

	switch {
	case errors.As(err, &configErr):
		return KindConfiguration
	case errors.Is(err, tts.ErrBusy):
		return KindBusy
	case errors.Is(err, tts.ErrCancelled):
		return KindCancelled
	case errors.As(err, &processErr):
		return KindProcess
	case errors.Is(err, ErrUnknownOperation),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrMissingField),
		errors.Is(err, ErrNoArchive),
		errors.Is(err, nats.ErrObjectNotFound),
		errors.Is(err, intake.ErrUnsupportedFile),
		errors.Is(err, settings.ErrInvalidBounds):
		return KindInvalidRequest
	default:
		return KindInternal
	}
}

// RemoteError is a failed reply seen from the client side. It matches the
// local sentinels for busy and cancelled replies.
type RemoteError struct {
	Kind    ErrorKind
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is lets callers test remote failures with the tts sentinels.
func (e *RemoteError) Is(target error) bool {
	switch e.Kind {
	case KindBusy:
		return target == tts.ErrBusy
	case KindCancelled:
		return target == tts.ErrCancelled
	case KindConfiguration, KindProcess, KindInvalidRequest, KindInternal:
		return false
	default:
		return false
	}
}

func requireField(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s", ErrMissingField, name)
	}

	return nil
}
