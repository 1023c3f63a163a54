// Package settings persists the user's tts-desk configuration across restarts.
//
// The Store holds a fixed Configuration record. It is read once on Open and
// rewritten in full on every change: the new content goes to a temporary file
// in the same directory which is then renamed over the old one, so a crash
// never leaves a half-written settings file behind.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-desk/internal/fsutil"
	"github.com/pelletier/go-toml/v2"
)

// FileName is the settings file name inside the application data directory.
const FileName = "settings.toml"

// Default window geometry used on first run and for invalid stored bounds.
const (
	DefaultWindowWidth  = 500
	DefaultWindowHeight = 400
)

const filePermissions = 0o600

// Key addresses a single string field of the Configuration.
type Key string

// Keys understood by Get and Set.
const (
	KeyExecutablePath Key = "executablePath"
	KeyModelDirectory Key = "modelDirectory"
	KeyLastModel      Key = "lastModel"
	KeyLastOutput     Key = "lastOutput"
	KeyLastText       Key = "lastText"
)

var (
	// ErrUnknownKey is returned by Set for keys outside the Configuration record.
	ErrUnknownKey = errors.New("unknown settings key")
	// ErrInvalidBounds is returned when window bounds have no usable size.
	ErrInvalidBounds = errors.New("window width and height must be positive")
)

// WindowBounds is the last known window geometry. X and Y are optional.
type WindowBounds struct {
	X      *int `toml:"x,omitempty" json:"x,omitempty"`
	Y      *int `toml:"y,omitempty" json:"y,omitempty"`
	Width  int  `toml:"width"       json:"width"`
	Height int  `toml:"height"      json:"height"`
}

// Configuration is the persisted settings record.
type Configuration struct {
	ExecutablePath string       `toml:"executable_path"`
	ModelDirectory string       `toml:"model_directory"`
	LastModel      string       `toml:"last_model"`
	LastOutput     string       `toml:"last_output"`
	LastText       string       `toml:"last_text"`
	Window         WindowBounds `toml:"window"`
}

// Seeds are the conventional co-located locations used when the stored
// executable path or model directory is unset or stale.
type Seeds struct {
	ExecutablePath string
	ModelDirectory string
}

// Defaults returns the built-in Configuration.
func Defaults() Configuration {
	return Configuration{
		ExecutablePath: "",
		ModelDirectory: "",
		LastModel:      "",
		LastOutput:     "",
		LastText:       "",
		Window: WindowBounds{
			X:      nil,
			Y:      nil,
			Width:  DefaultWindowWidth,
			Height: DefaultWindowHeight,
		},
	}
}

// Store is a durable, concurrency-safe view of the Configuration.
type Store struct {
	mu    sync.RWMutex
	path  string
	seeds Seeds
	cfg   Configuration
	log   *logger.Logger
}

// Open loads the settings file at path, applying defaults and seeds.
// A missing or unreadable file is not an error: the store starts from defaults.
func Open(path string, seeds Seeds, log *logger.Logger) (*Store, error) {
	dirErr := fsutil.EnsureDir(filepath.Dir(path))
	if dirErr != nil {
		return nil, fmt.Errorf("failed to prepare settings directory: %w", dirErr)
	}

	store := &Store{
		mu:    sync.RWMutex{},
		path:  path,
		seeds: seeds,
		cfg:   Defaults(),
		log:   log,
	}

	store.load()

	if store.applySeeds() {
		writeErr := store.writeLocked()
		if writeErr != nil {
			return nil, writeErr
		}
	}

	return store, nil
}

// Path returns the location of the settings file.
func (s *Store) Path() string {
	return s.path
}

// Get returns the value stored under key, or def when the key is unknown
// or the stored value is empty.
func (s *Store) Get(key Key, def string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	field := s.cfg.field(key)
	if field == nil || *field == "" {
		return def
	}

	return *field
}

// Set overwrites a single key and persists the record before returning.
func (s *Store) Set(key Key, value string) error {
	return s.Update(func(cfg *Configuration) error {
		field := cfg.field(key)
		if field == nil {
			return fmt.Errorf("%w: %q", ErrUnknownKey, key)
		}

		*field = value

		return nil
	})
}

// Update applies mutate to a copy of the record and persists the result in
// one write. If mutate or the write fails the in-memory record is unchanged.
func (s *Store) Update(mutate func(cfg *Configuration) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg.clone()

	mutateErr := mutate(&next)
	if mutateErr != nil {
		return mutateErr
	}

	previous := s.cfg
	s.cfg = next

	writeErr := s.writeLocked()
	if writeErr != nil {
		s.cfg = previous

		return writeErr
	}

	return nil
}

// Snapshot returns a copy of the current record.
func (s *Store) Snapshot() Configuration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cfg.clone()
}

// WindowBounds returns the stored window geometry.
func (s *Store) WindowBounds() WindowBounds {
	return s.Snapshot().Window
}

// SetWindowBounds persists the window geometry.
func (s *Store) SetWindowBounds(bounds WindowBounds) error {
	if bounds.Width <= 0 || bounds.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidBounds, bounds.Width, bounds.Height)
	}

	return s.Update(func(cfg *Configuration) error {
		cfg.Window = bounds.clone()

		return nil
	})
}

// Clear resets the record to the built-in defaults, then re-applies the seeds.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.cfg
	s.cfg = Defaults()
	s.applySeeds()

	writeErr := s.writeLocked()
	if writeErr != nil {
		s.cfg = previous

		return writeErr
	}

	return nil
}

func (s *Store) load() {
	data, readErr := os.ReadFile(s.path)
	if readErr != nil {
		if !os.IsNotExist(readErr) {
			s.log.Warn("Cannot read settings file '%s', using defaults: %v", s.path, readErr)
		}

		return
	}

	loaded := Defaults()

	decodeErr := toml.Unmarshal(data, &loaded)
	if decodeErr != nil {
		s.log.Warn("Settings file '%s' is corrupt, using defaults: %v", s.path, decodeErr)

		return
	}

	if loaded.Window.Width <= 0 || loaded.Window.Height <= 0 {
		loaded.Window = Defaults().Window
	}

	s.cfg = loaded
}

// applySeeds fills stale executable and model directory values from the
// seed locations. It reports whether anything changed.
func (s *Store) applySeeds() bool {
	changed := false

	if seeded, ok := s.seed(s.cfg.ExecutablePath, s.seeds.ExecutablePath); ok {
		s.cfg.ExecutablePath = seeded
		changed = true
	}

	if seeded, ok := s.seed(s.cfg.ModelDirectory, s.seeds.ModelDirectory); ok {
		s.cfg.ModelDirectory = seeded
		changed = true
	}

	return changed
}

func (s *Store) seed(current, candidate string) (string, bool) {
	if fsutil.Exists(current) {
		return "", false
	}

	resolved, found, err := fsutil.ResolveExisting(candidate)
	if err != nil {
		s.log.Warn("Cannot check default location '%s': %v", candidate, err)

		return "", false
	}

	if !found || resolved == current {
		return "", false
	}

	return resolved, true
}

func (s *Store) writeLocked() error {
	data, marshalErr := toml.Marshal(s.cfg)
	if marshalErr != nil {
		return fmt.Errorf("failed to encode settings: %w", marshalErr)
	}

	tempFile, createErr := os.CreateTemp(filepath.Dir(s.path), ".settings-*.toml")
	if createErr != nil {
		return fmt.Errorf("failed to create temporary settings file: %w", createErr)
	}

	tempName := tempFile.Name()

	_, writeErr := tempFile.Write(data)
	if writeErr == nil {
		writeErr = tempFile.Sync()
	}

	closeErr := tempFile.Close()
	if writeErr == nil {
		writeErr = closeErr
	}

	if writeErr == nil {
		writeErr = os.Chmod(tempName, filePermissions)
	}

	if writeErr != nil {
		_ = os.Remove(tempName)

		return fmt.Errorf("failed to write settings file: %w", writeErr)
	}

	renameErr := os.Rename(tempName, s.path)
	if renameErr != nil {
		_ = os.Remove(tempName)

		return fmt.Errorf("failed to replace settings file '%s': %w", s.path, renameErr)
	}

	return nil
}

func (c *Configuration) field(key Key) *string {
	switch key {
	case KeyExecutablePath:
		return &c.ExecutablePath
	case KeyModelDirectory:
		return &c.ModelDirectory
	case KeyLastModel:
		return &c.LastModel
	case KeyLastOutput:
		return &c.LastOutput
	case KeyLastText:
		return &c.LastText
	default:
		return nil
	}
}

func (c Configuration) clone() Configuration {
	c.Window = c.Window.clone()

	return c
}

func (b WindowBounds) clone() WindowBounds {
	if b.X != nil {
		x := *b.X
		b.X = &x
	}

	if b.Y != nil {
		y := *b.Y
		b.Y = &y
	}

	return b
}
