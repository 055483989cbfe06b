package manager

import "modelhost/pkg/types"

// State is the loader lifecycle state.
type State string

const (
	StateUnloaded   State = "unloaded"
	StateValidating State = "validating"
	StateAttempting State = "attempting"
	StateLoaded     State = "loaded"
	StateFailed     State = "failed"
)

// ModelInfo is a minimal view of the current model.
type ModelInfo struct {
	ID      string
	Path    string
	Backend types.Backend
}

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State        State
	CurrentModel *ModelInfo
	Signature    *types.ModelSignature
	Probe        *types.ProbeResult
	Err          string
}

// LoadResult is delivered once on the channel returned by LoadAsync.
type LoadResult struct {
	Outcome types.LoadOutcome
	Err     error
}
