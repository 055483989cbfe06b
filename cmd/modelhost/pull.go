package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/docker/go-units"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"modelhost/internal/common/fsutil"
	"modelhost/internal/download"
	"modelhost/internal/registry"
)

func newPullCmd(opts *globalOpts) *cobra.Command {
	var (
		sha256  string
		destDir string
		retries int
	)
	cmd := &cobra.Command{
		Use:   "pull <name|url>",
		Short: "Download a model from the catalog or a direct URL",
		Example: "  modelhost pull phi-3-mini-int4\n" +
			"  modelhost pull https://example.com/models/tiny.onnx --sha256 <hex>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolveConfig()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
			if err != nil {
				return err
			}
			catalog, err := registry.NewCatalog(cfg.Catalog)
			if err != nil {
				return fmt.Errorf("catalog: %w", err)
			}
			rm, err := catalog.Resolve(args[0])
			if err != nil {
				return err
			}
			if sha256 == "" {
				sha256 = rm.SHA256
			}
			if destDir == "" {
				destDir = cfg.ModelsDir
			}
			dir, err := fsutil.ExpandHome(destDir)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("retries") {
				retries = cfg.Download.Retries
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			dest := filepath.Join(dir, registry.FileName(rm))
			path, err := pullWithRetry(ctx, newDownloader(cfg, log), log, rm.URL, dest, sha256, retries, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&sha256, "sha256", "", "Expected SHA-256 of the file (overrides the catalog digest)")
	cmd.Flags().StringVar(&destDir, "dest", "", "Destination directory (defaults to the models dir)")
	cmd.Flags().IntVar(&retries, "retries", 0, "Retries after a failed transfer (defaults to download.retries)")
	return cmd
}

// pullWithRetry resumes an interrupted transfer from its part file with
// exponential backoff. Checksum failures and client errors are final.
func pullWithRetry(ctx context.Context, d *download.Downloader, log zerolog.Logger, url, dest, sha256 string, retries int, out io.Writer) (string, error) {
	var path string
	op := func() error {
		p, err := d.Download(ctx, url, dest, sha256, func(p download.Progress) {
			printProgress(out, p)
		})
		if err == nil {
			path = p
			return nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(retries)), ctx)
	notify := func(err error, wait time.Duration) {
		fmt.Fprintln(out)
		log.Warn().Err(err).Dur("retry_in", wait).Msg("event=download_retry")
	}
	err := backoff.RetryNotify(op, bo, notify)
	fmt.Fprintln(out)
	return path, err
}

func retryable(err error) bool {
	if errors.Is(err, download.ErrChecksumMismatch) {
		return false
	}
	var se *download.StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests || se.Code == http.StatusRequestTimeout
	}
	return true
}

func printProgress(out io.Writer, p download.Progress) {
	if p.Total > 0 {
		fmt.Fprintf(out, "\r%s / %s (%s/s)   ", units.HumanSize(float64(p.Downloaded)), units.HumanSize(float64(p.Total)), units.HumanSize(p.Speed))
		return
	}
	fmt.Fprintf(out, "\r%s (%s/s)   ", units.HumanSize(float64(p.Downloaded)), units.HumanSize(p.Speed))
}
