package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"modelhost/pkg/types"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr           string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir      string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	DefaultModel   string `json:"default_model" yaml:"default_model" toml:"default_model"`
	LogLevel       string `json:"log_level" yaml:"log_level" toml:"log_level" validate:"omitempty,oneof=trace debug info warn error disabled"`
	LogFormat      string `json:"log_format" yaml:"log_format" toml:"log_format" validate:"omitempty,oneof=console json"`
	RuntimeLibrary string `json:"runtime_library" yaml:"runtime_library" toml:"runtime_library"`
	MaxBodyBytes   int64  `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes" validate:"gte=0"`
	MaxQueueDepth  int    `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth" validate:"gte=0"`
	MaxWaitSeconds int    `json:"max_wait_seconds" yaml:"max_wait_seconds" toml:"max_wait_seconds" validate:"gte=0"`

	Load     LoadSettings     `json:"load" yaml:"load" toml:"load"`
	Download DownloadSettings `json:"download" yaml:"download" toml:"download"`
	CORS     CORSSettings     `json:"cors" yaml:"cors" toml:"cors"`

	// Catalog lists remote models that can be pulled by name.
	Catalog []types.RemoteModel `json:"catalog" yaml:"catalog" toml:"catalog" validate:"dive"`
	// AutoLoadDownloads loads a model as soon as its download completes.
	AutoLoadDownloads bool `json:"auto_load_downloads" yaml:"auto_load_downloads" toml:"auto_load_downloads"`
}

// LoadSettings controls backend negotiation.
type LoadSettings struct {
	Backend               types.Backend `json:"backend" yaml:"backend" toml:"backend" validate:"omitempty,backend"`
	PreferAccelerator     bool          `json:"prefer_accelerator" yaml:"prefer_accelerator" toml:"prefer_accelerator"`
	EnableFallback        *bool         `json:"enable_fallback" yaml:"enable_fallback" toml:"enable_fallback"`
	AttemptTimeoutSeconds int           `json:"attempt_timeout_seconds" yaml:"attempt_timeout_seconds" toml:"attempt_timeout_seconds" validate:"gte=0"`
	// Isolation selects how native attempts are contained: "none" or "process".
	Isolation string `json:"isolation" yaml:"isolation" toml:"isolation" validate:"omitempty,oneof=none process"`
	// Generation parameters forwarded to hosts.
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens" validate:"omitempty,gt=0"`
	Temperature float64 `json:"temperature" yaml:"temperature" toml:"temperature" validate:"gte=0,lte=2"`
	TopP        float64 `json:"top_p" yaml:"top_p" toml:"top_p" validate:"gte=0,lte=1"`
}

// DownloadSettings tunes the resumable downloader.
type DownloadSettings struct {
	ChunkSizeBytes     int    `json:"chunk_size_bytes" yaml:"chunk_size_bytes" toml:"chunk_size_bytes" validate:"gte=0"`
	ProgressIntervalMs int    `json:"progress_interval_ms" yaml:"progress_interval_ms" toml:"progress_interval_ms" validate:"gte=0"`
	UserAgent          string `json:"user_agent" yaml:"user_agent" toml:"user_agent"`
	Retries            int    `json:"retries" yaml:"retries" toml:"retries" validate:"gte=0,lte=20"`
}

// CORSSettings mirrors httpapi.SetCORSOptions.
type CORSSettings struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Validate checks field ranges and catalog entries.
func (c Config) Validate() error {
	if err := types.ValidateStruct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadConfig projects the load settings onto a types.LoadConfig for modelPath.
func (c Config) LoadConfig(modelPath string) types.LoadConfig {
	return types.LoadConfig{
		ModelPath:         modelPath,
		Backend:           c.Load.Backend,
		PreferAccelerator: c.Load.PreferAccelerator,
		EnableFallback:    c.Load.EnableFallback,
		MaxTokens:         c.Load.MaxTokens,
		Temperature:       c.Load.Temperature,
		TopP:              c.Load.TopP,
	}
}
