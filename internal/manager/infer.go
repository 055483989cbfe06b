package manager

import (
	"context"
	"errors"
	"fmt"

	"modelhost/pkg/types"
)

// ErrEmptyInput is returned by Infer for an empty token sequence.
var ErrEmptyInput = errors.New("no input tokens")

// GenerateResult is either model outputs or a fallback reply.
type GenerateResult struct {
	Response *types.InferResponse
	// Fallback holds the fallback reply when the model could not be used.
	Fallback string
	// Reason is the probe failure that routed the request to the fallback.
	Reason string
}

// Infer runs one forward pass with the input combination the probe accepted.
// Calls are serialized by the admission gate. When the probe never confirmed a
// combination the error satisfies IsProbeFailure.
func (m *Manager) Infer(ctx context.Context, ids []int64) (types.InferResponse, error) {
	if len(ids) == 0 {
		return types.InferResponse{}, ErrEmptyInput
	}
	release, err := m.beginGeneration(ctx)
	if err != nil {
		return types.InferResponse{}, err
	}
	defer release()

	m.mu.RLock()
	sess, sig, probe, inputs := m.session, m.signature, m.probe, m.probeInputs
	var backend types.Backend
	if m.cur != nil {
		backend = m.cur.Backend
	}
	m.mu.RUnlock()
	if sess == nil || sig == nil {
		return types.InferResponse{}, ErrNotLoaded
	}
	if probe == nil || !probe.Confirmed {
		msg := "input naming convention not confirmed"
		if probe != nil && probe.Error != "" {
			msg = probe.Error
		}
		return types.InferResponse{}, newLoadError(types.KindProbeFailed, backend, msg, nil)
	}
	outs, err := sess.Run(buildInputs(inputs, *sig, ids))
	if err != nil {
		return types.InferResponse{}, fmt.Errorf("inference on %s: %w", backend, err)
	}
	return types.InferResponse{Backend: backend, Inputs: append([]string(nil), inputs...), Outputs: outs}, nil
}

// Reprobe probes the current session with ids and records the result. A
// confirmed combination replaces the previous one.
func (m *Manager) Reprobe(ctx context.Context, ids []int64) (types.ProbeResult, error) {
	release, err := m.beginGeneration(ctx)
	if err != nil {
		return types.ProbeResult{}, err
	}
	defer release()

	m.mu.RLock()
	sess, sig := m.session, m.signature
	var (
		modelID string
		backend types.Backend
	)
	if m.cur != nil {
		modelID, backend = m.cur.ID, m.cur.Backend
	}
	m.mu.RUnlock()
	if sess == nil || sig == nil {
		return types.ProbeResult{}, ErrNotLoaded
	}
	_, pr, perr, crash := inspect(sess, backend, ids)
	if crash != nil {
		m.log.Error().Str("model", modelID).Str("error", crash.Msg).Msg("event=probe_crashed")
		return pr, crash
	}
	if perr == nil {
		m.mu.Lock()
		if m.session == sess {
			m.probe = &pr
			m.probeInputs = pr.Inputs
		}
		m.mu.Unlock()
	}
	m.publish("probe_result", modelID, map[string]any{"confirmed": pr.Confirmed, "inputs": pr.Inputs, "tried": pr.Tried})
	return pr, perr
}

// Generate runs Infer. When the probe is unconfirmed it re-probes with ids
// and, if that fails too, routes to the configured Fallback.
func (m *Manager) Generate(ctx context.Context, ids []int64) (GenerateResult, error) {
	resp, err := m.Infer(ctx, ids)
	if err == nil {
		return GenerateResult{Response: &resp}, nil
	}
	if !IsProbeFailure(err) {
		return GenerateResult{}, err
	}
	if _, perr := m.Reprobe(ctx, ids); perr == nil {
		if resp, err = m.Infer(ctx, ids); err == nil {
			return GenerateResult{Response: &resp}, nil
		}
	}
	if m.fallback == nil {
		return GenerateResult{}, err
	}
	text, ferr := m.fallback.Respond(ctx, ids)
	if ferr != nil {
		return GenerateResult{}, fmt.Errorf("fallback: %w", ferr)
	}
	m.log.Debug().Str("reason", err.Error()).Msg("event=generate_fallback")
	return GenerateResult{Fallback: text, Reason: err.Error()}, nil
}
