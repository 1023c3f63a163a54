// Package core defines the contracts shared between the tts-desk components.
package core

import (
	"context"

	"github.com/book-expert/tts-desk/internal/tts"
)

// ObjectStore archives finished audio files and serves them back by key.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	UploadFile(ctx context.Context, key, path string) error
}

// Dialogs is the presentation layer's file picker. Every method returns an
// empty path when the user dismissed the dialog.
type Dialogs interface {
	ChooseExecutable(ctx context.Context, current string) (string, error)
	ChooseDirectory(ctx context.Context, current string) (string, error)
	ChooseSaveFile(ctx context.Context, suggested string) (string, error)
	ChooseTextFile(ctx context.Context) (string, error)
}

// Synthesizer runs the external synthesis executable one job at a time.
type Synthesizer interface {
	Validate(req tts.Request) error
	Start(ctx context.Context, req tts.Request) (tts.Outcome, error)
	Cancel() bool
	State() tts.State
}
