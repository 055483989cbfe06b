package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"modelhost/internal/backends"
	"modelhost/internal/common/fsutil"
	"modelhost/internal/config"
	"modelhost/internal/download"
	"modelhost/internal/httpapi"
	"modelhost/internal/manager"
	"modelhost/internal/registry"
)

// staticFallback answers every fallback request with one fixed reply.
type staticFallback string

func (f staticFallback) Respond(context.Context, []int64) (string, error) { return string(f), nil }

func newDownloader(cfg config.Config, log zerolog.Logger) *download.Downloader {
	return download.New(
		download.WithLogger(log),
		download.WithChunkSize(cfg.Download.ChunkSizeBytes),
		download.WithProgressInterval(time.Duration(cfg.Download.ProgressIntervalMs)*time.Millisecond),
		download.WithUserAgent(cfg.Download.UserAgent),
	)
}

// buildManager wires registry, catalog, detector, downloader and isolation
// from cfg.
func buildManager(cfg config.Config, log zerolog.Logger, fallback manager.Fallback, pub manager.EventPublisher) (*manager.Manager, error) {
	dir, err := fsutil.ExpandHome(cfg.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("models dir: %w", err)
	}
	reg, err := registry.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan models: %w", err)
	}
	catalog, err := registry.NewCatalog(cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	attemptTimeout := time.Duration(cfg.Load.AttemptTimeoutSeconds) * time.Second

	var isolator manager.Isolator
	if cfg.Load.Isolation == "process" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable for isolation: %w", err)
		}
		command := []string{exe, "attempt"}
		if cfg.RuntimeLibrary != "" {
			command = append(command, "--runtime-library", cfg.RuntimeLibrary)
		}
		isolator = &manager.ProcessIsolator{Command: command, Timeout: attemptTimeout, Logger: &log}
	}

	mcfg := manager.ManagerConfig{
		Registry:          reg,
		ModelsDir:         dir,
		DefaultModel:      cfg.DefaultModel,
		MaxQueueDepth:     cfg.MaxQueueDepth,
		MaxWait:           time.Duration(cfg.MaxWaitSeconds) * time.Second,
		AttemptTimeout:    attemptTimeout,
		DefaultLoad:       cfg.LoadConfig(""),
		RuntimeLibrary:    cfg.RuntimeLibrary,
		Detector:          backends.NewDetector(backends.WithLogger(log)),
		Isolator:          isolator,
		Fallback:          fallback,
		Catalog:           catalog,
		Downloader:        newDownloader(cfg, log),
		AutoLoadDownloads: cfg.AutoLoadDownloads,
		Publisher:         pub,
		Logger:            &log,
	}
	return manager.NewWithConfig(mcfg), nil
}

func newServeCmd(opts *globalOpts) *cobra.Command {
	var (
		fallbackReply string
		loadOnStart   bool
		inferTimeout  int64
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolveConfig()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
			if err != nil {
				return err
			}
			var fb manager.Fallback
			if fallbackReply != "" {
				fb = staticFallback(fallbackReply)
			}
			mgr, err := buildManager(cfg, log, fb, httpapi.MetricsPublisher{})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			httpapi.SetLogger(log)
			httpapi.SetBaseContext(ctx)
			httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
			httpapi.SetInferTimeoutSeconds(inferTimeout)
			httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.Origins, cfg.CORS.Methods, cfg.CORS.Headers)

			report := mgr.SanityCheck(ctx)
			log.Info().Str("runtime", report.Runtime).Bool("available", report.Available).
				Strs("backends", backendStrings(report.Backends)).Str("models_dir", cfg.ModelsDir).
				Msg("event=startup")

			if loadOnStart {
				go func() {
					if _, err := mgr.LoadModel(ctx, "", cfg.LoadConfig("")); err != nil {
						log.Warn().Err(err).Msg("event=startup_load_failed")
					}
				}()
			}

			srv := &http.Server{
				Addr:              cfg.Addr,
				Handler:           httpapi.NewMux(mgr),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.Addr).Msg("event=listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("event=shutdown_error")
			}
			if err := mgr.Close(); err != nil {
				log.Warn().Err(err).Msg("event=release_error")
			}
			log.Info().Msg("event=stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&fallbackReply, "fallback-reply", "", "Reply returned by /infer when the model's inputs could not be confirmed")
	cmd.Flags().BoolVar(&loadOnStart, "load", false, "Load the default model at startup")
	cmd.Flags().Int64Var(&inferTimeout, "infer-timeout", 0, "Seconds before /load and /infer requests are canceled (0 disables)")
	return cmd
}
