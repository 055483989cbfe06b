package manager

import (
	"context"

	"modelhost/internal/common/fsutil"
	"modelhost/internal/ort"
	"modelhost/pkg/types"
)

// SanityReport describes runtime checks for external dependencies.
type SanityReport struct {
	Runtime        string          `json:"runtime"`
	NativeBuilt    bool            `json:"native_built"`
	Available      bool            `json:"available"`
	RuntimeLibrary string          `json:"runtime_library,omitempty"`
	LibraryFound   bool            `json:"library_found"`
	Backends       []types.Backend `json:"backends"`
	Error          string          `json:"error,omitempty"`
}

// SanityCheck reports whether sessions can be built and which backends were
// detected. It does not mutate state and is safe to call at any time.
func (m *Manager) SanityCheck(ctx context.Context) SanityReport {
	r := SanityReport{
		Runtime:        m.runtime.Name(),
		NativeBuilt:    ort.Built(),
		RuntimeLibrary: m.runtimeLibrary,
		Backends:       m.detector.Cached(ctx),
	}
	if m.runtimeLibrary != "" {
		if p, err := fsutil.ExpandHome(m.runtimeLibrary); err == nil {
			r.LibraryFound = fsutil.IsRegularFile(p)
		}
	}
	if err := m.runtime.Available(); err != nil {
		r.Error = err.Error()
		return r
	}
	r.Available = true
	return r
}
