package manager

import (
	"path/filepath"
	"runtime"
	"strings"

	"modelhost/pkg/types"
)

// Helper: find model in registry by id.
func (m *Manager) getModelByID(id string) (types.Model, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mdl := range m.registry {
		if mdl.ID == id {
			return mdl, true
		}
	}
	return types.Model{}, false
}

// ResolveModelPath maps a registry id to its path. Empty id selects the
// default model.
func (m *Manager) ResolveModelPath(id string) (string, error) {
	if id == "" {
		id = m.defaultModel
	}
	if id == "" {
		return "", ErrModelNotFound("(unspecified)")
	}
	mdl, ok := m.getModelByID(id)
	if !ok {
		return "", ErrModelNotFound(id)
	}
	return mdl.Path, nil
}

// modelIDFromPath is the file stem, matching registry ids.
func modelIDFromPath(p string) string {
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func intraOpThreads() int {
	n := runtime.NumCPU()
	if n > maxIntraOpThreads {
		return maxIntraOpThreads
	}
	if n < 1 {
		return 1
	}
	return n
}

// withDefaults fills empty fields of cfg from the configured defaults.
func (m *Manager) withDefaults(cfg types.LoadConfig) types.LoadConfig {
	d := m.defaultLoad
	if cfg.Backend == "" {
		cfg.Backend = d.Backend
	}
	if cfg.Backend == "" {
		cfg.Backend = types.BackendCPU
	}
	if !cfg.PreferAccelerator {
		cfg.PreferAccelerator = d.PreferAccelerator
	}
	if cfg.EnableFallback == nil {
		cfg.EnableFallback = d.EnableFallback
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = d.MaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = d.Temperature
	}
	if cfg.TopP == 0 {
		cfg.TopP = d.TopP
	}
	return cfg
}
