package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"modelhost/internal/common/fsutil"
	"modelhost/pkg/types"
)

// Scanner discovers models in a directory.
type Scanner interface {
	Scan(dir string) ([]types.Model, error)
}

// onnxScanner lists *.onnx files. Partial downloads (*.onnx.part) never match.
type onnxScanner struct{}

// NewONNXScanner returns a Scanner for ONNX model files.
func NewONNXScanner() Scanner { return onnxScanner{} }

func (onnxScanner) Scan(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.EqualFold(filepath.Ext(name), ".onnx") {
			continue
		}
		id := strings.TrimSuffix(name, filepath.Ext(name))
		mdl := types.Model{
			ID:    id,
			Name:  name,
			Path:  filepath.Join(abs, name),
			Quant: QuantFromName(name),
			Kind:  KindFromName(name),
		}
		if fi, err := e.Info(); err == nil {
			mdl.SizeBytes = fi.Size()
		}
		models = append(models, mdl)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// LoadDir scans a directory for *.onnx files and builds a registry from filenames.
// ID is the file stem; Path is the absolute file path.
// A missing directory yields an empty registry.
func LoadDir(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	if !fsutil.PathExists(base) {
		return nil, nil
	}
	return NewONNXScanner().Scan(base)
}

// QuantFromName guesses the quantization from a file name.
func QuantFromName(name string) string {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "q4f16"):
		return "q4f16"
	case strings.Contains(n, "int4"), strings.Contains(n, "4bit"):
		return "int4"
	case strings.Contains(n, "int8"), strings.Contains(n, "8bit"):
		return "int8"
	case strings.Contains(n, "fp16"), strings.Contains(n, "half"):
		return "fp16"
	default:
		return "fp32"
	}
}

// KindFromName guesses a coarse model kind from a file name.
func KindFromName(name string) string {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "code"), strings.Contains(n, "programming"):
		return "code"
	case strings.Contains(n, "chat"), strings.Contains(n, "instruct"):
		return "chat"
	case strings.Contains(n, "vision"), strings.Contains(n, "multimodal"):
		return "multimodal"
	default:
		return "language"
	}
}
