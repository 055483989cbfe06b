package manager

import (
	"modelhost/internal/backends"
	"modelhost/pkg/types"
)

// fallbackOrder follows the requested backend when fallback is enabled. QNN
// and NNAPI only appear when requested or promoted.
var fallbackOrder = []types.Backend{
	types.BackendCUDA,
	types.BackendDirectML,
	types.BackendOpenVINO,
	types.BackendCoreML,
	types.BackendCPU,
}

// candidates builds the ordered attempt list: promoted accelerator, the
// requested backend, then the fallback order. It always contains CPU.
func candidates(cfg types.LoadConfig, detected []types.Backend) []types.Backend {
	requested := cfg.Backend
	if requested == "" {
		requested = types.BackendCPU
	}
	var order []types.Backend
	if cfg.PreferAccelerator {
		if acc, ok := backends.Accelerator(detected); ok {
			order = append(order, acc)
		}
	}
	order = append(order, requested)
	if cfg.FallbackEnabled() {
		order = append(order, fallbackOrder...)
	}
	order = append(order, types.BackendCPU)

	seen := make(map[types.Backend]bool, len(order))
	out := make([]types.Backend, 0, len(order))
	for _, b := range order {
		if seen[b] {
			continue
		}
		seen[b] = true
		out = append(out, b)
	}
	return out
}
