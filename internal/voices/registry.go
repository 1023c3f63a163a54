// Package voices discovers Piper voice models on disk.
package voices

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/tts-desk/internal/pathcheck"
)

// ModelSuffix is the file extension of a voice model's binary asset.
const ModelSuffix = ".onnx"

// VoiceModel is a model file paired with its JSON config.
type VoiceModel struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	ConfigPath string `json:"configPath"`
}

// ListModels returns every model in dir that has a sibling config file, in
// directory enumeration order. A missing or unreadable directory yields an
// empty list.
func ListModels(dir string) []VoiceModel {
	models := make([]VoiceModel, 0)

	if dir == "" {
		return models
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return models
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ModelSuffix) {
			continue
		}

		modelPath := filepath.Join(dir, name)
		configPath := pathcheck.ConfigPath(modelPath)

		if !pathcheck.ValidateModel(configPath) {
			continue
		}

		models = append(models, VoiceModel{
			Name:       strings.TrimSuffix(name, ModelSuffix),
			Path:       modelPath,
			ConfigPath: configPath,
		})
	}

	return models
}

// Paths flattens models to their model file paths.
func Paths(models []VoiceModel) []string {
	paths := make([]string, 0, len(models))
	for _, model := range models {
		paths = append(paths, model.Path)
	}

	return paths
}
