package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	ErrModelNotFound = errors.New("model file not found")
	ErrNotGGUF       = errors.New("model file must have a .gguf extension")
)

// ModelFile is a GGUF file found on disk.
type ModelFile struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// SizeGB reports the size in gigabytes (1024^3).
func (m ModelFile) SizeGB() float64 {
	return float64(m.Size) / (1024 * 1024 * 1024)
}

// ValidateModelPath checks that path names an existing regular file with a
// .gguf extension (case-insensitive) and returns its absolute path.
func ValidateModelPath(path string) (string, error) {
	path = ExpandHome(strings.TrimSpace(path))
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a file", ErrModelNotFound, path)
	}
	if !strings.HasSuffix(strings.ToLower(path), ".gguf") {
		return "", fmt.Errorf("%w: %s", ErrNotGGUF, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}

// FindModels lists the *.gguf files directly inside dir, sorted by name.
func FindModels(dir string) ([]ModelFile, error) {
	entries, err := os.ReadDir(ExpandHome(dir))
	if err != nil {
		return nil, err
	}
	var models []ModelFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".gguf") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		models = append(models, ModelFile{Name: e.Name(), Path: p, Size: info.Size()})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models, nil
}

// ModelStatus describes the configured model file for display.
type ModelStatus struct {
	Path       string  `json:"model_path"`
	NCtx       int     `json:"n_ctx"`
	GPULayers  int     `json:"n_gpu_layers"`
	FileExists bool    `json:"file_exists"`
	SizeGB     float64 `json:"size_gb,omitempty"`
}

// Status reports whether the configured model exists and how large it is.
func (m ModelConfig) Status() ModelStatus {
	st := ModelStatus{Path: m.Path, NCtx: m.ContextSize, GPULayers: m.GPULayers}
	if info, err := os.Stat(ExpandHome(m.Path)); err == nil && info.Mode().IsRegular() {
		st.FileExists = true
		st.SizeGB = float64(int(ModelFile{Size: info.Size()}.SizeGB()*100+0.5)) / 100
	}
	return st
}
