package config

import "modelhost/pkg/types"

// Defaults applied by ApplyDefaults when fields are unset.
const (
	DefaultAddr                  = ":8080"
	DefaultModelsDir             = "~/models/onnx"
	DefaultLogLevel              = "info"
	DefaultLogFormat             = "console"
	DefaultMaxBodyBytes          = 1 << 20
	DefaultAttemptTimeoutSeconds = 120
	DefaultIsolation             = "none"
	DefaultChunkSizeBytes        = 64 << 10
	DefaultProgressIntervalMs    = 100
	DefaultRetries               = 3
	DefaultMaxTokens             = 256
	DefaultTemperature           = 0.7
	DefaultTopP                  = 0.9
)

// ApplyDefaults returns a copy of c with every unset field filled in.
func (c Config) ApplyDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ModelsDir == "" {
		c.ModelsDir = DefaultModelsDir
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Load.Backend == "" {
		c.Load.Backend = types.BackendCPU
	}
	if c.Load.EnableFallback == nil {
		on := true
		c.Load.EnableFallback = &on
	}
	if c.Load.AttemptTimeoutSeconds == 0 {
		c.Load.AttemptTimeoutSeconds = DefaultAttemptTimeoutSeconds
	}
	if c.Load.Isolation == "" {
		c.Load.Isolation = DefaultIsolation
	}
	if c.Load.MaxTokens == 0 {
		c.Load.MaxTokens = DefaultMaxTokens
	}
	if c.Load.Temperature == 0 {
		c.Load.Temperature = DefaultTemperature
	}
	if c.Load.TopP == 0 {
		c.Load.TopP = DefaultTopP
	}
	if c.Download.ChunkSizeBytes == 0 {
		c.Download.ChunkSizeBytes = DefaultChunkSizeBytes
	}
	if c.Download.ProgressIntervalMs == 0 {
		c.Download.ProgressIntervalMs = DefaultProgressIntervalMs
	}
	if c.Download.Retries == 0 {
		c.Download.Retries = DefaultRetries
	}
	return c
}
