package voices

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce groups bursts of file events (a model copied together with
// its config) into one change notification.
const DefaultDebounce = 300 * time.Millisecond

// retryInterval is how often a directory that could not be watched is tried again.
const retryInterval = time.Second

// Watcher reports changes to the set of models in a directory. The directory
// can be switched while the watcher runs.
type Watcher struct {
	debounce time.Duration
	onChange func([]VoiceModel)
	log      *logger.Logger
	fsw      *fsnotify.Watcher
	retarget chan struct{}

	mu    sync.Mutex
	dir   string
	timer *time.Timer
}

// NewWatcher creates a watcher for dir. onChange receives the fresh model list.
func NewWatcher(dir string, debounce time.Duration, onChange func([]VoiceModel), log *logger.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create model directory watcher: %w", err)
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Watcher{
		debounce: debounce,
		onChange: onChange,
		log:      log,
		fsw:      fsw,
		retarget: make(chan struct{}, 1),
		mu:       sync.Mutex{},
		dir:      dir,
		timer:    nil,
	}, nil
}

// Dir returns the directory the watcher reports on.
func (w *Watcher) Dir() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.dir
}

// Retarget switches the watcher to dir. The running watcher reports the
// models of dir once and from then on only changes inside dir.
func (w *Watcher) Retarget(dir string) {
	w.mu.Lock()
	w.dir = dir
	w.mu.Unlock()

	select {
	case w.retarget <- struct{}{}:
	default:
	}
}

// Run watches until ctx is cancelled. A directory that does not exist is
// retried until it appears rather than failing the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stop()

	retry := time.NewTicker(retryInterval)
	defer retry.Stop()

	watched := w.watch("", w.Dir())

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-w.retarget:
			watched = w.watch(watched, w.Dir())
			w.schedule()

		case <-retry.C:
			if watched == "" && w.Dir() != "" {
				watched = w.watch("", w.Dir())
				if watched != "" {
					w.schedule()
				}
			}

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}

			if event.Name == watched && (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) {
				w.log.Warn("Model directory '%s' disappeared", watched)
				watched = w.watch(watched, "")
				w.schedule()

				continue
			}

			if relevant(event) {
				w.schedule()
			}

		case watchErr, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}

			w.log.Warn("Model directory watcher error: %v", watchErr)
		}
	}
}

// watch moves the registration from watched to dir. It returns the directory
// now watched, or "" when dir cannot be watched yet.
func (w *Watcher) watch(watched, dir string) string {
	if watched == dir {
		return watched
	}

	if watched != "" {
		removeErr := w.fsw.Remove(watched)
		if removeErr != nil && !errors.Is(removeErr, fsnotify.ErrNonExistentWatch) {
			w.log.Warn("Failed to stop watching model directory '%s': %v", watched, removeErr)
		}
	}

	if dir == "" {
		return ""
	}

	addErr := w.fsw.Add(dir)
	if addErr != nil {
		if !errors.Is(addErr, fs.ErrNotExist) {
			w.log.Warn("Cannot watch model directory '%s': %v", dir, addErr)
		}

		return ""
	}

	w.log.Info("Watching model directory '%s'", dir)

	return dir
}

func relevant(event fsnotify.Event) bool {
	if !strings.HasSuffix(event.Name, ModelSuffix) && !strings.HasSuffix(event.Name, ModelSuffix+".json") {
		return false
	}

	return event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) ||
		event.Has(fsnotify.Rename) || event.Has(fsnotify.Write)
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}

	w.timer = time.AfterFunc(w.debounce, func() {
		w.onChange(ListModels(w.Dir()))
	})
}

func (w *Watcher) stop() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	closeErr := w.fsw.Close()
	if closeErr != nil {
		w.log.Warn("Failed to close model directory watcher: %v", closeErr)
	}
}
