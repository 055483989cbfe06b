package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"modelhost/internal/config"
)

// exitError ends the process with a specific code without printing.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// globalOpts are the persistent flags shared by every subcommand.
type globalOpts struct {
	configPath     string
	addr           string
	modelsDir      string
	defaultModel   string
	logLevel       string
	logFormat      string
	runtimeLibrary string
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOpts{}
	root := &cobra.Command{
		Use:           "modelhost",
		Short:         "Load ONNX models with backend negotiation and serve them over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", envStr("MODELHOST_CONFIG", ""), "Config file (.yaml, .yml, .json, .toml)")
	pf.StringVar(&opts.addr, "addr", envStr("MODELHOST_ADDR", ""), "HTTP listen address, e.g. :8080")
	pf.StringVar(&opts.modelsDir, "models-dir", "", "Directory to scan for *.onnx model files")
	pf.StringVar(&opts.defaultModel, "default-model", "", "Model id used when a request omits one")
	pf.StringVar(&opts.logLevel, "log-level", envStr("MODELHOST_LOG_LEVEL", ""), "Log level: trace|debug|info|warn|error|disabled")
	pf.StringVar(&opts.logFormat, "log-format", "", "Log format: console|json")
	pf.StringVar(&opts.runtimeLibrary, "runtime-library", envStr("ONNXRUNTIME_LIB", ""), "Path to the onnxruntime shared library")

	root.AddCommand(
		newServeCmd(opts),
		newPullCmd(opts),
		newLoadCmd(opts),
		newBackendsCmd(opts),
		newAttemptCmd(opts),
	)
	return root
}

// resolveConfig loads the config file (if any), applies flag overrides and
// defaults, and validates the result.
func (o *globalOpts) resolveConfig() (config.Config, error) {
	var cfg config.Config
	if o.configPath != "" {
		c, err := config.Load(o.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	}
	if o.addr != "" {
		cfg.Addr = o.addr
	}
	if o.modelsDir != "" {
		cfg.ModelsDir = o.modelsDir
	}
	if o.defaultModel != "" {
		cfg.DefaultModel = o.defaultModel
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.LogFormat = o.logFormat
	}
	if o.runtimeLibrary != "" {
		cfg.RuntimeLibrary = o.runtimeLibrary
	}
	cfg = cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// newLogger builds the process logger. Console output goes to w with
// human-readable timestamps; json writes one object per line.
func newLogger(level, format string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("svc", "modelhost").Logger(), nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// splitCSV splits a comma-separated list, trimming blanks and dropping empties.
func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
