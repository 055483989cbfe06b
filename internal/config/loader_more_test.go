package config

import (
	"strings"
	"testing"

	"modelhost/pkg/types"
)

func TestLoad_MalformedFiles(t *testing.T) {
	d := t.TempDir()
	cases := []struct {
		name, content string
	}{
		{"bad.yaml", "addr: :8080\n: broken\n"},
		{"bad.json", `{ "addr": ":8080", "models_dir": }`},
		{"bad.toml", "addr=:8080\nmodels_dir\n"},
		{"config.ini", "addr=:8080\n"},
	}
	for _, c := range cases {
		p := writeTempFile(t, d, c.name, c.content)
		if _, err := Load(p); err == nil {
			t.Fatalf("%s: expected error", c.name)
		}
	}
	if _, err := Load("/definitely/not/a/real/file-12345.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent file")
	}
}

func TestLoad_CatalogAndDownloadSectionsTOML(t *testing.T) {
	p := writeTempFile(t, t.TempDir(), "c.toml", `
models_dir = "/srv/models"
auto_load_downloads = true

[download]
chunk_size_bytes = 65536
progress_interval_ms = 250
user_agent = "modelhost-test"
retries = 4

[[catalog]]
name = "tiny"
url = "https://models.example.com/tiny-int8.onnx"
sha256 = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
size_bytes = 1024
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.AutoLoadDownloads || cfg.Download.ChunkSizeBytes != 65536 || cfg.Download.ProgressIntervalMs != 250 ||
		cfg.Download.UserAgent != "modelhost-test" || cfg.Download.Retries != 4 {
		t.Fatalf("download section = %+v", cfg.Download)
	}
	if len(cfg.Catalog) != 1 || cfg.Catalog[0].Name != "tiny" || cfg.Catalog[0].SizeBytes != 1024 {
		t.Fatalf("catalog = %+v", cfg.Catalog)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoad_BackendNamesAreCaseInsensitive(t *testing.T) {
	d := t.TempDir()
	files := map[string]string{
		"c.yaml": "load:\n  backend: CUDA\n",
		"c.json": `{"load": {"backend": "Cuda"}}`,
		"c.toml": "[load]\nbackend = \"cUDA\"\n",
	}
	for name, content := range files {
		cfg, err := Load(writeTempFile(t, d, name, content))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if cfg.Load.Backend != types.BackendCUDA {
			t.Fatalf("%s: backend = %q", name, cfg.Load.Backend)
		}
	}
	if _, err := Load(writeTempFile(t, d, "bad.yaml", "load:\n  backend: tpu\n")); err == nil {
		t.Fatalf("expected unknown backend to fail")
	}
}

func TestValidate_SectionErrors(t *testing.T) {
	cases := []struct {
		name  string
		yaml  string
		field string
	}{
		{"catalog url", "catalog:\n  - name: tiny\n    url: not a url\n", "URL"},
		{"catalog sha", "catalog:\n  - name: tiny\n    url: https://x.example/t.onnx\n    sha256: abc\n", "SHA256"},
		{"catalog name", "catalog:\n  - url: https://x.example/t.onnx\n", "Name"},
		{"download retries", "download:\n  retries: 50\n", "Retries"},
		{"download chunk", "download:\n  chunk_size_bytes: -1\n", "ChunkSizeBytes"},
		{"isolation", "load:\n  isolation: container\n", "Isolation"},
		{"top_p", "load:\n  top_p: 1.5\n", "TopP"},
		{"log format", "log_format: xml\n", "LogFormat"},
	}
	d := t.TempDir()
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg, err := Load(writeTempFile(t, d, strings.ReplaceAll(c.name, " ", "_")+".yaml", c.yaml))
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			err = cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), c.field) {
				t.Fatalf("validate = %v, want mention of %s", err, c.field)
			}
		})
	}
}
