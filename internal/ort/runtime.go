// Package ort is the seam between the loader and the native ONNX runtime.
//
// Build tags and runtimes:
//
//   - onnx: binds github.com/yalue/onnxruntime_go (CGO, needs the shared
//     library at run time). Files: onnx.go, onnx_test.go. Check it with
//     `go vet -tags onnx ./internal/ort/`.
//   - default: a stub whose runtime reports ErrUnavailable so default builds
//     and CI stay CGO-free. Files: onnx_stub.go.
//
// Tests use the scriptable runtime in package orttest.
package ort

import (
	"errors"

	"modelhost/pkg/types"
)

// ErrUnavailable is returned by the stub runtime.
var ErrUnavailable = errors.New("onnx runtime support not built (missing 'onnx' build tag)")

// OptimizationLevel mirrors the runtime's graph optimization levels.
type OptimizationLevel int

const (
	OptDisabled OptimizationLevel = iota
	OptBasic
	OptExtended
	OptAll
)

// CommitOptions are applied when a builder commits a model.
type CommitOptions struct {
	OptimizationLevel OptimizationLevel
	IntraOpThreads    int
}

// Runtime creates session builders.
type Runtime interface {
	// Name identifies the implementation ("onnxruntime", "stub", ...).
	Name() string
	// Available reports nil when sessions can be built.
	Available() error
	// NewBuilder returns a fresh builder with no backend registered.
	NewBuilder() (Builder, error)
}

// Builder accumulates session configuration. A builder is used for exactly
// one attempt; Close is safe after Commit.
type Builder interface {
	// RegisterBackend appends an execution backend. CPU needs no registration.
	RegisterBackend(b types.Backend) error
	// Commit builds a session for modelPath.
	Commit(modelPath string, opts CommitOptions) (Session, error)
	Close() error
}

// Session is a loaded model. It is owned by one caller and never shared.
type Session interface {
	// Inputs lists declared input names in graph order.
	Inputs() []string
	// Outputs lists declared output names in graph order.
	Outputs() []string
	// Run executes one forward pass with exactly the given inputs.
	Run(inputs []NamedTensor) ([]types.OutputTensor, error)
	Close() error
}

// Tensor is an int64 tensor in row-major order.
type Tensor struct {
	Shape []int64
	Data  []int64
}

// NamedTensor binds a tensor to a graph input name.
type NamedTensor struct {
	Name   string
	Tensor Tensor
}

// Names returns the input names of ts in order.
func Names(ts []NamedTensor) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Name
	}
	return out
}
