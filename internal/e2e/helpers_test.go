package e2e

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"modelhost/internal/httpapi"
	"modelhost/internal/manager"
	"modelhost/internal/ort/orttest"
	"modelhost/internal/registry"
	"modelhost/pkg/types"
)

// createTempModelsDir creates a temporary directory populated with placeholder
// .onnx files and returns the directory path and the model IDs (file stems).
func createTempModelsDir(t *testing.T, names ...string) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	ids := make([]string, 0, len(names))
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, []byte("onnx"), 0o644); err != nil {
			t.Fatalf("write temp model %s: %v", p, err)
		}
		ids = append(ids, n[:len(n)-len(filepath.Ext(n))])
	}
	return dir, ids
}

// cpuOnlyRuntime fails registration of every backend but CPU.
func cpuOnlyRuntime(inputs ...string) *orttest.Runtime {
	rt := orttest.New(inputs...)
	rt.RegisterErr = map[types.Backend]error{}
	for _, b := range types.AllBackends {
		if b != types.BackendCPU {
			rt.RegisterErr[b] = errors.New(string(b) + " execution provider is not available")
		}
	}
	return rt
}

// newServerForDirWithConfig scans modelsDir into the registry and serves a
// manager built from cfg.
func newServerForDirWithConfig(t *testing.T, modelsDir string, cfg manager.ManagerConfig) (*httptest.Server, *manager.Manager) {
	t.Helper()
	reg, err := registry.LoadDir(modelsDir)
	if err != nil {
		t.Fatalf("scan models: %v", err)
	}
	cfg.Registry = reg
	cfg.ModelsDir = modelsDir
	mgr := manager.NewWithConfig(cfg)
	t.Cleanup(func() { _ = mgr.Close() })
	srv := httptest.NewServer(httpapi.NewMux(mgr))
	t.Cleanup(srv.Close)
	return srv, mgr
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}
