// Package pathcheck answers whether configured executable and model paths are usable.
//
// Every check reports a plain boolean. Filesystem errors of any kind are
// treated as "not usable" so callers can always derive a consistent
// enabled/disabled state from the result.
package pathcheck

import (
	"os"
)

// ModelConfigSuffix is appended to a model path to locate its JSON config.
const ModelConfigSuffix = ".json"

// ValidateExecutable reports whether path names an existing regular file
// that the current user may execute.
func ValidateExecutable(path string) bool {
	if path == "" {
		return false
	}

	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	if !info.Mode().IsRegular() {
		return false
	}

	return isExecutable(path, info)
}

// ValidateModel reports whether something exists at path.
func ValidateModel(path string) bool {
	if path == "" {
		return false
	}

	_, err := os.Stat(path)

	return err == nil
}

// ValidateModelPair reports whether both the model and its sibling config exist.
func ValidateModelPair(path string) bool {
	return ValidateModel(path) && ValidateModel(ConfigPath(path))
}

// ConfigPath returns the config file path belonging to a model path.
func ConfigPath(modelPath string) string {
	return modelPath + ModelConfigSuffix
}
