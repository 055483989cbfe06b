// Package download fetches model files over HTTP with resume support and
// SHA-256 verification.
//
// Partial data lives next to the destination as "<dest>.part". Its length is
// the resume checkpoint: the next attempt asks for "Range: bytes=<len>-". The
// destination path only appears after the whole part file verified.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"modelhost/internal/common/fsutil"
)

const (
	defaultChunkSize        = 64 << 10
	defaultProgressInterval = 100 * time.Millisecond
)

// HTTPClient is the subset of *http.Client the downloader needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Progress is one progress report.
type Progress struct {
	// Downloaded counts bytes on disk, resumed bytes included.
	Downloaded int64
	// Total is the expected final size; 0 when the server did not say.
	Total int64
	// Speed is bytes per second since this transfer started.
	Speed float64
}

// ProgressFunc receives progress reports. It runs on the downloading goroutine.
type ProgressFunc func(Progress)

// Downloader performs resumable, verified downloads.
type Downloader struct {
	client           HTTPClient
	log              zerolog.Logger
	chunkSize        int
	progressInterval time.Duration
	userAgent        string
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c HTTPClient) Option {
	return func(d *Downloader) {
		if c != nil {
			d.client = c
		}
	}
}

// WithLogger installs a structured logger.
func WithLogger(l zerolog.Logger) Option { return func(d *Downloader) { d.log = l } }

// WithChunkSize sets the read buffer size.
func WithChunkSize(n int) Option {
	return func(d *Downloader) {
		if n > 0 {
			d.chunkSize = n
		}
	}
}

// WithProgressInterval sets the minimum spacing between progress reports.
func WithProgressInterval(iv time.Duration) Option {
	return func(d *Downloader) {
		if iv > 0 {
			d.progressInterval = iv
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option { return func(d *Downloader) { d.userAgent = ua } }

// New constructs a Downloader.
func New(opts ...Option) *Downloader {
	d := &Downloader{
		// No client timeout: transfers are bounded by the caller's context.
		client:           &http.Client{Timeout: 0},
		log:              zerolog.Nop(),
		chunkSize:        defaultChunkSize,
		progressInterval: defaultProgressInterval,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// PartPath returns the resume file used for dest.
func PartPath(dest string) string { return dest + ".part" }

// Download fetches url into dest, resuming from dest's part file when present.
// When expectedSHA256 is non-empty the complete part file is verified before
// it is renamed to dest; on mismatch the part file is deleted.
// It returns the final path.
func (d *Downloader) Download(ctx context.Context, url, dest, expectedSHA256 string, progress ProgressFunc) (string, error) {
	if err := fsutil.EnsureParentDir(dest); err != nil {
		return "", fmt.Errorf("%w: create parent dir: %v", ErrIO, err)
	}
	part := PartPath(dest)
	offset, err := fsutil.FileSize(part)
	if err != nil {
		return "", fmt.Errorf("%w: stat part file: %v", ErrIO, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrNetwork, err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	d.log.Info().Str("url", url).Str("dest", dest).Int64("offset", offset).Msg("download start")

	resp, err := d.client.Do(req)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return "", fmt.Errorf("download cancelled: %w", cerr)
		}
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	var total int64
	switch {
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		start, size, ok := parseContentRange(resp.Header.Get("Content-Range"))
		if ok && start != offset {
			return "", fmt.Errorf("%w: content-range starts at %d, want %d", ErrHTTPStatus, start, offset)
		}
		total = size
		if total <= 0 && resp.ContentLength > 0 {
			total = offset + resp.ContentLength
		}
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent:
		if offset > 0 {
			// Range was ignored: the body starts at byte 0.
			d.log.Warn().Str("url", url).Int64("discarded", offset).Msg("server ignored range; restarting")
			offset = 0
		}
		if resp.ContentLength > 0 {
			total = resp.ContentLength
		}
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0:
		size, ok := parseUnsatisfiedRange(resp.Header.Get("Content-Range"))
		if !ok || size != offset {
			d.log.Warn().Str("url", url).Int64("part", offset).Int64("remote", size).Msg("part file does not match remote size; restarting")
			_ = resp.Body.Close()
			if err := os.Remove(part); err != nil && !errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("%w: remove stale part file: %v", ErrIO, err)
			}
			return d.Download(ctx, url, dest, expectedSHA256, progress)
		}
		// Nothing left to fetch.
		d.log.Info().Str("url", url).Str("size", units.HumanSize(float64(offset))).Msg("part file already complete")
		if progress != nil {
			progress(Progress{Downloaded: offset, Total: offset})
		}
		return d.finalize(part, dest, expectedSHA256)
	default:
		return "", &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(part, flags, 0o644)
	if err != nil {
		return "", fmt.Errorf("%w: open part file: %v", ErrIO, err)
	}

	downloaded := offset
	started := time.Now()
	report := func() {
		if progress == nil {
			return
		}
		var speed float64
		if el := time.Since(started).Seconds(); el > 0 {
			speed = float64(downloaded-offset) / el
		}
		progress(Progress{Downloaded: downloaded, Total: total, Speed: speed})
	}
	pacer := &rate.Sometimes{Interval: d.progressInterval}

	buf := make([]byte, d.chunkSize)
	for {
		if cerr := ctx.Err(); cerr != nil {
			_ = f.Close()
			return "", fmt.Errorf("download cancelled: %w", cerr)
		}
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				_ = f.Close()
				return "", fmt.Errorf("%w: write part file: %v", ErrIO, werr)
			}
			downloaded += int64(n)
			pacer.Do(report)
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			_ = f.Close()
			if cerr := ctx.Err(); cerr != nil {
				return "", fmt.Errorf("download cancelled: %w", cerr)
			}
			return "", fmt.Errorf("%w: read body: %v", ErrNetwork, rerr)
		}
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: close part file: %v", ErrIO, err)
	}
	report()
	d.log.Info().Str("url", url).
		Str("size", units.HumanSize(float64(downloaded))).
		Dur("dur", time.Since(started)).
		Msg("download transferred")

	return d.finalize(part, dest, expectedSHA256)
}

func (d *Downloader) finalize(part, dest, expectedSHA256 string) (string, error) {
	if strings.TrimSpace(expectedSHA256) != "" {
		if err := VerifyFile(part, expectedSHA256); err != nil {
			if errors.Is(err, ErrChecksumMismatch) {
				// A corrupt part must not be resumed.
				if rmErr := os.Remove(part); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
					d.log.Warn().Err(rmErr).Str("part", part).Msg("remove corrupt part file")
				}
				d.log.Warn().Err(err).Str("dest", dest).Msg("download verification failed")
			}
			return "", err
		}
	}
	if err := os.Rename(part, dest); err != nil {
		return "", fmt.Errorf("%w: finalize: %v", ErrIO, err)
	}
	d.log.Info().Str("dest", dest).Bool("verified", expectedSHA256 != "").Msg("download complete")
	return dest, nil
}

// parseContentRange parses "bytes <start>-<end>/<size>". size is 0 when "*".
// parseUnsatisfiedRange parses the "bytes */N" form sent with a 416.
func parseUnsatisfiedRange(v string) (size int64, ok bool) {
	v = strings.TrimSpace(v)
	sz, found := strings.CutPrefix(v, "bytes */")
	if !found {
		return 0, false
	}
	n, err := strconv.ParseInt(sz, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func parseContentRange(v string) (start, size int64, ok bool) {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "bytes ") {
		return 0, 0, false
	}
	v = strings.TrimPrefix(v, "bytes ")
	rng, sz, found := strings.Cut(v, "/")
	if !found {
		return 0, 0, false
	}
	first, _, found := strings.Cut(rng, "-")
	if !found {
		return 0, 0, false
	}
	s, err := strconv.ParseInt(first, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if sz != "*" {
		if n, err := strconv.ParseInt(sz, 10, 64); err == nil {
			size = n
		}
	}
	return s, size, true
}
