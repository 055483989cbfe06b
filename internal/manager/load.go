package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modelhost/pkg/types"
)

// Load negotiates a backend for cfg.ModelPath, introspects and probes the
// session, and makes it current. Only one load runs at a time; a concurrent
// call returns ErrLoadInProgress. When every backend fails the returned error
// is the last classified *LoadError and the Manager stays retryable. A failed
// probe does not fail the load: see Infer and Generate.
func (m *Manager) Load(ctx context.Context, cfg types.LoadConfig) (types.LoadOutcome, error) {
	select {
	case m.loadSlot <- struct{}{}:
	default:
		return types.LoadOutcome{}, ErrLoadInProgress
	}
	defer func() { <-m.loadSlot }()
	return m.load(ctx, cfg)
}

// LoadAsync runs Load on its own goroutine. The channel yields exactly one
// result and is then closed.
func (m *Manager) LoadAsync(ctx context.Context, cfg types.LoadConfig) <-chan LoadResult {
	ch := make(chan LoadResult, 1)
	select {
	case m.loadSlot <- struct{}{}:
	default:
		ch <- LoadResult{Err: ErrLoadInProgress}
		close(ch)
		return ch
	}
	go func() {
		defer close(ch)
		defer func() { <-m.loadSlot }()
		out, err := m.load(ctx, cfg)
		ch <- LoadResult{Outcome: out, Err: err}
	}()
	return ch
}

// LoadModel resolves a registry id (empty selects the default model) and loads it.
func (m *Manager) LoadModel(ctx context.Context, id string, cfg types.LoadConfig) (types.LoadOutcome, error) {
	if cfg.ModelPath == "" {
		p, err := m.ResolveModelPath(id)
		if err != nil {
			return types.LoadOutcome{}, err
		}
		cfg.ModelPath = p
	}
	return m.Load(ctx, cfg)
}

// validatePath rejects inputs before any runtime call.
func validatePath(p string) *LoadError {
	if strings.TrimSpace(p) == "" {
		return newLoadError(types.KindEmptyPath, "", "model path is empty", nil)
	}
	fi, err := os.Stat(p)
	if err != nil {
		return newLoadError(types.KindFileMissing, "", fmt.Sprintf("model file not found: %s", p), err)
	}
	if fi.IsDir() {
		return newLoadError(types.KindFileMissing, "", fmt.Sprintf("model path is a directory: %s", p), nil)
	}
	if !strings.EqualFold(filepath.Ext(p), ".onnx") {
		return newLoadError(types.KindNotOnnxFile, "", fmt.Sprintf("not an .onnx file: %s", filepath.Base(p)), nil)
	}
	return nil
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) load(ctx context.Context, cfg types.LoadConfig) (types.LoadOutcome, error) {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return types.LoadOutcome{}, ErrClosed
	}
	cfg = m.withDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return types.LoadOutcome{}, invalidRequestError{msg: "invalid load config: " + err.Error()}
	}
	modelID := modelIDFromPath(cfg.ModelPath)
	outcome := types.LoadOutcome{Requested: cfg.Backend, Attempts: []types.AttemptRecord{}}
	start := time.Now()
	log := m.log.With().Str("model", modelID).Logger()

	// The previous session is released before a new one is built.
	m.drainAndRelease(modelID)

	m.mu.Lock()
	m.state = StateValidating
	m.err = nil
	m.attempts = nil
	m.lastLoad = cfg
	m.mu.Unlock()
	m.publish("load_start", modelID, map[string]any{
		"path":               cfg.ModelPath,
		"backend":            string(cfg.Backend),
		"prefer_accelerator": cfg.PreferAccelerator,
		"fallback":           cfg.FallbackEnabled(),
	})
	log.Info().Str("backend", string(cfg.Backend)).Msg("event=load_start")

	fail := func(le *LoadError) (types.LoadOutcome, error) {
		m.mu.Lock()
		m.state = StateFailed
		m.err = le
		m.attempts = outcome.Attempts
		m.mu.Unlock()
		m.publish("load_failed", modelID, map[string]any{"kind": string(le.Kind), "error": le.Msg, "dur_ms": time.Since(start).Milliseconds()})
		log.Warn().Str("kind", string(le.Kind)).Str("error", le.Msg).Msg("event=load_failed")
		return outcome, le
	}

	m.publish("load_phase", modelID, map[string]any{"phase": "validate"})
	if le := validatePath(cfg.ModelPath); le != nil {
		return fail(le)
	}
	if err := m.runtime.Available(); err != nil {
		return fail(newLoadError(types.KindIo, "", "native runtime unavailable: "+err.Error(),
			ErrDependencyUnavailable(err.Error())))
	}

	list := candidates(cfg, m.detector.Cached(ctx))
	m.setState(StateAttempting)
	m.publish("load_phase", modelID, map[string]any{"phase": "attempt", "candidates": backendNames(list)})

	var last *LoadError
	for _, be := range list {
		if err := ctx.Err(); err != nil {
			m.mu.Lock()
			m.state = StateUnloaded
			m.attempts = outcome.Attempts
			m.mu.Unlock()
			m.publish("load_cancelled", modelID, map[string]any{"attempts": len(outcome.Attempts)})
			log.Info().Msg("event=load_cancelled")
			return outcome, fmt.Errorf("load cancelled: %w", err)
		}
		m.publish("load_attempt", modelID, map[string]any{"backend": string(be)})
		t0 := time.Now()
		sess, lerr := m.attempt(ctx, be, cfg.ModelPath)
		var (
			sig  types.ModelSignature
			pr   types.ProbeResult
			perr error
		)
		if lerr == nil {
			m.publish("load_phase", modelID, map[string]any{"phase": "probe"})
			sig, pr, perr, lerr = inspect(sess, be, warmupTokens)
			if lerr != nil {
				_ = sess.Close()
			}
		}
		rec := types.AttemptRecord{Backend: be, Success: lerr == nil, DurationMs: time.Since(t0).Milliseconds()}
		if lerr != nil {
			rec.Kind, rec.Message = lerr.Kind, lerr.Msg
			last = lerr
			outcome.LastError = lerr.Msg
		}
		outcome.Attempts = append(outcome.Attempts, rec)
		m.publish("load_attempt_result", modelID, map[string]any{
			"backend": string(be), "success": rec.Success, "kind": string(rec.Kind), "message": rec.Message, "dur_ms": rec.DurationMs,
		})
		if lerr != nil {
			log.Warn().Str("backend", string(be)).Str("kind", string(lerr.Kind)).Str("error", lerr.Msg).Msg("event=load_attempt_failed")
			continue
		}

		outcome.Succeeded = true
		outcome.BackendUsed = be
		outcome.Signature = &sig
		outcome.Probe = &pr
		m.publish("probe_result", modelID, map[string]any{"confirmed": pr.Confirmed, "inputs": pr.Inputs, "tried": pr.Tried})
		if perr != nil {
			log.Warn().Str("error", pr.Error).Msg("event=probe_failed")
		}

		m.mu.Lock()
		if m.closed {
			outcome.Succeeded = false
			m.state = StateUnloaded
			m.attempts = outcome.Attempts
			m.mu.Unlock()
			_ = sess.Close()
			log.Info().Str("backend", string(be)).Msg("event=load_discarded_after_close")
			return outcome, ErrClosed
		}
		m.session = sess
		m.signature = &sig
		m.probe = &pr
		m.probeInputs = pr.Inputs
		m.attempts = outcome.Attempts
		m.err = last
		m.cur = &ModelInfo{ID: modelID, Path: cfg.ModelPath, Backend: be}
		m.state = StateLoaded
		m.loadsTotal++
		m.mu.Unlock()
		m.publish("load_ready", modelID, map[string]any{"backend": string(be), "dur_ms": time.Since(start).Milliseconds()})
		log.Info().Str("backend", string(be)).Int("attempts", len(outcome.Attempts)).Dur("dur", time.Since(start)).Msg("event=load_ready")
		return outcome, nil
	}
	return fail(last)
}

func backendNames(bs []types.Backend) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = string(b)
	}
	return out
}
