//go:build onnx

package ort

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	onnx "github.com/yalue/onnxruntime_go"

	"modelhost/pkg/types"
)

// Built reports whether this binary carries the real runtime.
func Built() bool { return true }

type onnxRuntime struct {
	libPath string
	once    sync.Once
	initErr error
}

// New returns a runtime bound to the shared library at libPath. An empty
// path uses the library's platform default name.
func New(libPath string) Runtime { return &onnxRuntime{libPath: libPath} }

func (r *onnxRuntime) Name() string { return "onnxruntime" }

func (r *onnxRuntime) init() error {
	r.once.Do(func() {
		if r.libPath != "" {
			onnx.SetSharedLibraryPath(r.libPath)
		}
		if !onnx.IsInitialized() {
			r.initErr = onnx.InitializeEnvironment()
		}
	})
	return r.initErr
}

func (r *onnxRuntime) Available() error { return r.init() }

func (r *onnxRuntime) NewBuilder() (Builder, error) {
	if err := r.init(); err != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", err)
	}
	opts, err := onnx.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	return &onnxBuilder{opts: opts}, nil
}

type onnxBuilder struct {
	opts *onnx.SessionOptions
}

// unboundProvider reports a provider the Go binding has no append call for.
func unboundProvider(be types.Backend) error {
	return fmt.Errorf("%s execution provider is not exposed by the onnxruntime_go binding", be)
}

func (b *onnxBuilder) RegisterBackend(be types.Backend) error {
	switch be {
	case types.BackendQNN, types.BackendNNAPI:
		return unboundProvider(be)
	}
	if b.opts == nil {
		return errors.New("builder already committed")
	}
	switch be {
	case types.BackendCPU:
		return nil
	case types.BackendCUDA:
		cuda, err := onnx.NewCUDAProviderOptions()
		if err != nil {
			return err
		}
		defer cuda.Destroy()
		return b.opts.AppendExecutionProviderCUDA(cuda)
	case types.BackendDirectML:
		return b.opts.AppendExecutionProviderDirectML(0)
	case types.BackendCoreML:
		return b.opts.AppendExecutionProviderCoreML(0)
	case types.BackendOpenVINO:
		return b.opts.AppendExecutionProviderOpenVINO(map[string]string{})
	default:
		return fmt.Errorf("unsupported backend %q", be)
	}
}

func graphLevel(l OptimizationLevel) onnx.GraphOptimizationLevel {
	switch l {
	case OptDisabled:
		return onnx.GraphOptimizationLevelDisableAll
	case OptBasic:
		return onnx.GraphOptimizationLevelEnableBasic
	case OptExtended:
		return onnx.GraphOptimizationLevelEnableExtended
	default:
		return onnx.GraphOptimizationLevelEnableAll
	}
}

func (b *onnxBuilder) Commit(modelPath string, opts CommitOptions) (Session, error) {
	if b.opts == nil {
		return nil, errors.New("builder already committed")
	}
	if err := b.opts.SetGraphOptimizationLevel(graphLevel(opts.OptimizationLevel)); err != nil {
		return nil, fmt.Errorf("set optimization level: %w", err)
	}
	if opts.IntraOpThreads > 0 {
		if err := b.opts.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("set intra-op threads: %w", err)
		}
	}
	ins, outs, err := onnx.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, err
	}
	s := &onnxSession{
		path: modelPath,
		opts: b.opts,
		subs: make(map[string]*onnx.DynamicAdvancedSession),
	}
	for _, in := range ins {
		s.inputs = append(s.inputs, in.Name)
	}
	for _, out := range outs {
		s.outputs = append(s.outputs, out.Name)
	}
	// Building the full-input session is what exercises the backend.
	if _, err := s.sessionFor(s.inputs); err != nil {
		return nil, err
	}
	b.opts = nil // the session owns the options now
	return s, nil
}

func (b *onnxBuilder) Close() error {
	if b.opts == nil {
		return nil
	}
	err := b.opts.Destroy()
	b.opts = nil
	return err
}

// onnxSession caches one native session per input-name combination because
// the dynamic session API binds input names at creation.
type onnxSession struct {
	path    string
	opts    *onnx.SessionOptions
	inputs  []string
	outputs []string

	mu   sync.Mutex
	subs map[string]*onnx.DynamicAdvancedSession
}

func (s *onnxSession) Inputs() []string  { return append([]string(nil), s.inputs...) }
func (s *onnxSession) Outputs() []string { return append([]string(nil), s.outputs...) }

func (s *onnxSession) sessionFor(names []string) (*onnx.DynamicAdvancedSession, error) {
	key := strings.Join(names, "\x00")
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[key]; ok {
		return sub, nil
	}
	sub, err := onnx.NewDynamicAdvancedSession(s.path, names, s.outputs, s.opts)
	if err != nil {
		return nil, err
	}
	s.subs[key] = sub
	return sub, nil
}

func (s *onnxSession) Run(inputs []NamedTensor) ([]types.OutputTensor, error) {
	sub, err := s.sessionFor(Names(inputs))
	if err != nil {
		return nil, err
	}
	values := make([]onnx.Value, 0, len(inputs))
	defer func() {
		for _, v := range values {
			_ = v.Destroy()
		}
	}()
	for _, in := range inputs {
		t, err := onnx.NewTensor(onnx.NewShape(in.Tensor.Shape...), in.Tensor.Data)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", in.Name, err)
		}
		values = append(values, t)
	}
	outs := make([]onnx.Value, len(s.outputs))
	if err := sub.Run(values, outs); err != nil {
		return nil, err
	}
	result := make([]types.OutputTensor, 0, len(outs))
	for i, v := range outs {
		if v == nil {
			continue
		}
		o := types.OutputTensor{Name: s.outputs[i], Shape: []int64(v.GetShape())}
		if ft, ok := v.(*onnx.Tensor[float32]); ok {
			o.Data = append([]float32(nil), ft.GetData()...)
		}
		_ = v.Destroy()
		result = append(result, o)
	}
	return result, nil
}

func (s *onnxSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for k, sub := range s.subs {
		if err := sub.Destroy(); err != nil {
			errs = append(errs, err)
		}
		delete(s.subs, k)
	}
	if s.opts != nil {
		if err := s.opts.Destroy(); err != nil {
			errs = append(errs, err)
		}
		s.opts = nil
	}
	return errors.Join(errs...)
}
