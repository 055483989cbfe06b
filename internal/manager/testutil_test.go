package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"modelhost/internal/ort"
	"modelhost/internal/ort/orttest"
	"modelhost/pkg/types"
)

// createModelFile writes a small placeholder model and returns its path.
func createModelFile(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("onnx-placeholder"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return p
}

// newTestManager builds a Manager over rt with a CPU-only detector.
func newTestManager(t *testing.T, rt *orttest.Runtime, mut ...func(*ManagerConfig)) *Manager {
	t.Helper()
	cfg := ManagerConfig{
		Runtime:      rt,
		Detector:     staticDetector{types.BackendCPU},
		DrainTimeout: 200 * time.Millisecond,
		MaxWait:      200 * time.Millisecond,
	}
	for _, f := range mut {
		f(&cfg)
	}
	m := NewWithConfig(cfg)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// cpuOnly makes every non-CPU backend fail registration.
func cpuOnly(rt *orttest.Runtime) {
	rt.RegisterErr = map[types.Backend]error{}
	for _, b := range types.AllBackends {
		if b != types.BackendCPU {
			rt.RegisterErr[b] = errors.New(string(b) + " execution provider not found in this build")
		}
	}
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

type stubFallback struct{ reply string }

func (s stubFallback) Respond(context.Context, []int64) (string, error) { return s.reply, nil }

type scriptedIsolator struct {
	fail  map[types.Backend]error
	calls []types.Backend
}

func (s *scriptedIsolator) Check(_ context.Context, be types.Backend, _ string) error {
	s.calls = append(s.calls, be)
	return s.fail[be]
}

func ortDefaults() ort.CommitOptions { return ort.CommitOptions{OptimizationLevel: ort.OptAll} }
