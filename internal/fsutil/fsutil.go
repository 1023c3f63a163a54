// Package fsutil provides file and path utility functions for tts-desk.
//
// It resolves the per-user data and cache locations, creates directories
// with consistent permissions and formats durations and sizes for display.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// Environment variable names used for path resolution.
const (
	envCacheDir = "TTSDESK_CACHE_DIR"
	envDataDir  = "TTSDESK_DATA_DIR"
)

// Common application directory and path constants.
const (
	// AppName names the per-user data and cache directories.
	AppName               = "tts-desk"
	dotCache              = ".cache"
	dotConfig             = ".config"
	defaultDirPermissions = 0o750
)

// Time formatting constants.
const (
	secondsInMinute = 60
	secondsInHour   = 3600
	formatSeconds   = "%.1fs"
	formatMinutes   = "%dm %.1fs"
	formatHours     = "%dh %dm"
)

// Error message and format string constants.
const (
	errFmtFailedToCreateDir           = "failed to create directory %s: %w"
	errFmtCouldNotResolveAbsolutePath = "could not resolve absolute path for %q: %w"
	errFmtErrorCheckingPath           = "error checking path %q: %w"
)

// ErrEmptyPath is returned when an empty path is passed where one is required.
var ErrEmptyPath = errors.New("path cannot be empty")

// CacheDir returns the application's cache directory, respecting an environment
// variable override and falling back to the user cache directory.
func CacheDir() string {
	if cacheDir := os.Getenv(envCacheDir); cacheDir != "" {
		return cacheDir
	}

	userCache, err := os.UserCacheDir()
	if err == nil {
		return filepath.Join(userCache, AppName)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), AppName, "cache")
	}

	return filepath.Join(homeDir, dotCache, AppName)
}

// DataDir returns the platform-conventional directory holding persisted
// settings, respecting an environment variable override.
func DataDir() string {
	if dataDir := os.Getenv(envDataDir); dataDir != "" {
		return dataDir
	}

	userConfig, err := os.UserConfigDir()
	if err == nil {
		return filepath.Join(userConfig, AppName)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), AppName, "data")
	}

	return filepath.Join(homeDir, dotConfig, AppName)
}

// EnsureDir ensures a directory exists at the given path, creating it if it doesn't.
func EnsureDir(path string) error {
	if path == "" {
		return ErrEmptyPath
	}

	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		mkdirErr := os.MkdirAll(path, defaultDirPermissions)
		if mkdirErr != nil {
			return fmt.Errorf(errFmtFailedToCreateDir, path, mkdirErr)
		}
	}

	return nil
}

// ResolveExisting checks if something exists at path.
// If it exists, it returns the absolute path and found=true.
// If it doesn't exist, it returns found=false and no error.
// Any other file system error is returned.
func ResolveExisting(path string) (resolvedPath string, found bool, err error) {
	if path == "" {
		return "", false, nil
	}

	_, statErr := os.Stat(path)
	if statErr == nil {
		absPath, errAbs := filepath.Abs(path)
		if errAbs != nil {
			return "", false, fmt.Errorf(errFmtCouldNotResolveAbsolutePath, path, errAbs)
		}

		return absPath, true, nil
	} else if !os.IsNotExist(statErr) {
		return "", false, fmt.Errorf(errFmtErrorCheckingPath, path, statErr)
	}

	return "", false, nil
}

// Exists reports whether anything exists at path. Errors count as absent.
func Exists(path string) bool {
	if path == "" {
		return false
	}

	_, err := os.Stat(path)

	return err == nil
}

// FormatDuration formats a duration in a human-readable string (e.g., "1h 15m", "5m
// 30.5s", "45.2s").
func FormatDuration(seconds float64) string {
	if seconds < secondsInMinute {
		return fmt.Sprintf(formatSeconds, seconds)
	}

	if seconds < secondsInHour {
		minutes := int(seconds / secondsInMinute)
		remainingSeconds := seconds - float64(minutes*secondsInMinute)

		return fmt.Sprintf(formatMinutes, minutes, remainingSeconds)
	}

	hours := int(seconds / secondsInHour)
	remainingSeconds := seconds - float64(hours*secondsInHour)
	remainingMinutes := int(remainingSeconds / secondsInMinute)

	return fmt.Sprintf(formatHours, hours, remainingMinutes)
}

// FormatFileSize formats a file size in IEC units (e.g., "1.0 MiB").
func FormatFileSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}

	return humanize.IBytes(uint64(bytes))
}
