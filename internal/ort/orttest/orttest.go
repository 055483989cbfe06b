// Package orttest provides a scriptable in-memory runtime for tests.
package orttest

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"modelhost/internal/ort"
	"modelhost/pkg/types"
)

// CommitRecord captures one Commit call.
type CommitRecord struct {
	Backends []types.Backend
	Path     string
	Options  ort.CommitOptions
}

// Runtime is a fake ort.Runtime. Zero maps mean "succeed".
type Runtime struct {
	// Unavailable makes Available and NewBuilder fail.
	Unavailable error
	// RegisterErr fails RegisterBackend for a backend.
	RegisterErr map[types.Backend]error
	// CommitErr fails Commit when the last registered backend matches.
	CommitErr map[types.Backend]error
	// CommitPanic panics inside Commit with the given value.
	CommitPanic map[types.Backend]any
	// CommitDelay sleeps inside Commit.
	CommitDelay map[types.Backend]time.Duration

	// Inputs and Outputs are the declared graph names of every session.
	Inputs  []string
	Outputs []string
	// Accept decides whether Run with these input names succeeds. Nil accepts
	// exactly the declared input set.
	Accept func(names []string) error

	mu       sync.Mutex
	builders int
	commits  []CommitRecord
	sessions []*Session
}

// New returns a runtime whose sessions declare inputs.
func New(inputs ...string) *Runtime {
	return &Runtime{Inputs: inputs, Outputs: []string{"logits"}}
}

// AcceptExactly accepts a Run only when its input names equal names, in any order.
func AcceptExactly(names ...string) func([]string) error {
	want := sortedKey(names)
	return func(got []string) error {
		if sortedKey(got) != want {
			return fmt.Errorf("invalid input name set: %v", got)
		}
		return nil
	}
}

func sortedKey(names []string) string {
	cp := append([]string(nil), names...)
	sort.Strings(cp)
	return strings.Join(cp, ",")
}

func (r *Runtime) Name() string { return "fake" }

func (r *Runtime) Available() error { return r.Unavailable }

func (r *Runtime) NewBuilder() (ort.Builder, error) {
	if r.Unavailable != nil {
		return nil, r.Unavailable
	}
	r.mu.Lock()
	r.builders++
	r.mu.Unlock()
	return &Builder{rt: r}, nil
}

// Builders counts NewBuilder calls.
func (r *Runtime) Builders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.builders
}

// Commits returns every Commit call in order, successful or not.
func (r *Runtime) Commits() []CommitRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CommitRecord(nil), r.commits...)
}

// Sessions returns every session created.
func (r *Runtime) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Session(nil), r.sessions...)
}

// Builder is a fake ort.Builder.
type Builder struct {
	rt       *Runtime
	backends []types.Backend
	closed   bool
}

func (b *Builder) RegisterBackend(be types.Backend) error {
	if err := b.rt.RegisterErr[be]; err != nil {
		return err
	}
	b.backends = append(b.backends, be)
	return nil
}

func (b *Builder) last() types.Backend {
	if len(b.backends) == 0 {
		return types.BackendCPU
	}
	return b.backends[len(b.backends)-1]
}

func (b *Builder) Commit(modelPath string, opts ort.CommitOptions) (ort.Session, error) {
	be := b.last()
	b.rt.mu.Lock()
	b.rt.commits = append(b.rt.commits, CommitRecord{Backends: append([]types.Backend(nil), b.backends...), Path: modelPath, Options: opts})
	b.rt.mu.Unlock()
	if d := b.rt.CommitDelay[be]; d > 0 {
		time.Sleep(d)
	}
	if v, ok := b.rt.CommitPanic[be]; ok {
		panic(v)
	}
	if err := b.rt.CommitErr[be]; err != nil {
		return nil, err
	}
	s := &Session{rt: b.rt, Backend: be}
	b.rt.mu.Lock()
	b.rt.sessions = append(b.rt.sessions, s)
	b.rt.mu.Unlock()
	return s, nil
}

func (b *Builder) Close() error {
	b.closed = true
	return nil
}

// Session is a fake ort.Session.
type Session struct {
	rt      *Runtime
	Backend types.Backend

	mu     sync.Mutex
	runs   [][]string
	closed bool
}

func (s *Session) Inputs() []string  { return append([]string(nil), s.rt.Inputs...) }
func (s *Session) Outputs() []string { return append([]string(nil), s.rt.Outputs...) }

func (s *Session) Run(inputs []ort.NamedTensor) ([]types.OutputTensor, error) {
	names := ort.Names(inputs)
	s.mu.Lock()
	closed := s.closed
	s.runs = append(s.runs, names)
	s.mu.Unlock()
	if closed {
		return nil, errors.New("session closed")
	}
	accept := s.rt.Accept
	if accept == nil {
		accept = AcceptExactly(s.rt.Inputs...)
	}
	if err := accept(names); err != nil {
		return nil, err
	}
	var n int64
	if len(inputs) > 0 && len(inputs[0].Tensor.Shape) == 2 {
		n = inputs[0].Tensor.Shape[1]
	}
	out := make([]types.OutputTensor, 0, len(s.rt.Outputs))
	for _, name := range s.rt.Outputs {
		out = append(out, types.OutputTensor{Name: name, Shape: []int64{1, n}, Data: make([]float32, n)})
	}
	return out, nil
}

// Runs returns the input-name sets of every Run call.
func (s *Session) Runs() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.runs...)
}

func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
