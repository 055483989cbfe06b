package config

import (
	"testing"

	"modelhost/pkg/types"
)

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}.ApplyDefaults()
	if cfg.Addr != DefaultAddr || cfg.ModelsDir != DefaultModelsDir {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Load.Backend != types.BackendCPU || cfg.Load.EnableFallback == nil || !*cfg.Load.EnableFallback {
		t.Fatalf("unexpected load defaults: %+v", cfg.Load)
	}
	if cfg.Download.ChunkSizeBytes != DefaultChunkSizeBytes || cfg.Download.ProgressIntervalMs != DefaultProgressIntervalMs {
		t.Fatalf("unexpected download defaults: %+v", cfg.Download)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	off := false
	cfg := Config{Addr: ":1", Load: LoadSettings{EnableFallback: &off, Backend: types.BackendCUDA}}.ApplyDefaults()
	if cfg.Addr != ":1" || *cfg.Load.EnableFallback || cfg.Load.Backend != types.BackendCUDA {
		t.Fatalf("explicit values overwritten: %+v", cfg)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]Config{
		"temperature": {Load: LoadSettings{Temperature: 2.5}},
		"top_p":       {Load: LoadSettings{TopP: 1.5}},
		"max_tokens":  {Load: LoadSettings{MaxTokens: -1}},
		"isolation":   {Load: LoadSettings{Isolation: "container"}},
		"log_format":  {LogFormat: "xml"},
		"catalog_url": {Catalog: []types.RemoteModel{{Name: "x", URL: "not a url"}}},
		"catalog_sha": {Catalog: []types.RemoteModel{{Name: "x", URL: "https://e.com/x.onnx", SHA256: "abc"}}},
	}
	for name, c := range cases {
		if err := c.ApplyDefaults().Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadConfigProjection(t *testing.T) {
	cfg := Config{}.ApplyDefaults()
	lc := cfg.LoadConfig("/m/x.onnx")
	if lc.ModelPath != "/m/x.onnx" || lc.Backend != types.BackendCPU || !lc.FallbackEnabled() {
		t.Fatalf("unexpected load config: %+v", lc)
	}
	if err := lc.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
