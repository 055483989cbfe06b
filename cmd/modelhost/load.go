package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"modelhost/internal/backends"
	"modelhost/internal/manager"
	"modelhost/pkg/types"
)

func newLoadCmd(opts *globalOpts) *cobra.Command {
	var (
		backend    string
		preferNPU  bool
		noFallback bool
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "load <model-id|path.onnx>",
		Short: "Load a model once and print the negotiation outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolveConfig()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
			if err != nil {
				return err
			}
			mgr, err := buildManager(cfg, log, nil, nil)
			if err != nil {
				return err
			}
			defer mgr.Close()

			lc := cfg.LoadConfig("")
			if backend != "" {
				if lc.Backend, err = types.ParseBackend(backend); err != nil {
					return err
				}
			}
			if preferNPU {
				lc.PreferAccelerator = true
			}
			if noFallback {
				off := false
				lc.EnableFallback = &off
			}
			id := args[0]
			if strings.HasSuffix(strings.ToLower(id), ".onnx") || strings.ContainsRune(id, os.PathSeparator) {
				lc.ModelPath, id = id, ""
			}
			out, loadErr := mgr.LoadModel(cmd.Context(), id, lc)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				_ = enc.Encode(out)
			} else {
				printOutcome(cmd.OutOrStdout(), out)
			}
			if loadErr != nil {
				if le, ok := manager.AsLoadError(loadErr); ok {
					return fmt.Errorf("%w (hint: %s)", loadErr, le.Hint())
				}
				return loadErr
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "Requested backend: cpu|cuda|directml|coreml|openvino|qnn|nnapi")
	cmd.Flags().BoolVar(&preferNPU, "prefer-accelerator", false, "Try a detected NPU-class backend first")
	cmd.Flags().BoolVar(&noFallback, "no-fallback", false, "Only try the requested backend and cpu")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the outcome as JSON")
	return cmd
}

func printOutcome(w io.Writer, out types.LoadOutcome) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BACKEND\tRESULT\tKIND\tDURATION\tMESSAGE")
	for _, a := range out.Attempts {
		result := "ok"
		if !a.Success {
			result = "failed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%dms\t%s\n", a.Backend, result, a.Kind, a.DurationMs, a.Message)
	}
	_ = tw.Flush()
	if !out.Succeeded {
		fmt.Fprintf(w, "load failed (requested %s): %s\n", out.Requested, out.LastError)
		return
	}
	fmt.Fprintf(w, "loaded on %s (requested %s)\n", out.BackendUsed, out.Requested)
	if out.Signature != nil {
		for _, in := range out.Signature.Inputs {
			fmt.Fprintf(w, "  input  %-24s %s\n", in.Name, in.Role)
		}
	}
	if out.Probe != nil {
		if out.Probe.Confirmed {
			fmt.Fprintf(w, "probe confirmed %v after %d tries\n", out.Probe.Inputs, out.Probe.Tried)
		} else {
			fmt.Fprintf(w, "probe unconfirmed after %d tries: %s\n", out.Probe.Tried, out.Probe.Error)
		}
	}
}

func newBackendsCmd(opts *globalOpts) *cobra.Command {
	var sanity bool
	cmd := &cobra.Command{
		Use:   "backends",
		Short: "List execution backends detected on this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolveConfig()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
			if err != nil {
				return err
			}
			if sanity {
				mgr, err := buildManager(cfg, log, nil, nil)
				if err != nil {
					return err
				}
				defer mgr.Close()
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(mgr.SanityCheck(cmd.Context()))
			}
			detected := backends.NewDetector(backends.WithLogger(log)).Detect(cmd.Context())
			for _, b := range detected {
				fmt.Fprintln(cmd.OutOrStdout(), b)
			}
			if acc, ok := backends.Accelerator(detected); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "accelerator: %s\n", acc)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&sanity, "sanity", false, "Also check the runtime library and print a JSON report")
	return cmd
}

func backendStrings(bs []types.Backend) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = string(b)
	}
	return out
}
