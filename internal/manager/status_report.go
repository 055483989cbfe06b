package manager

import (
	"time"

	"modelhost/pkg/types"
)

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{State: m.state, Signature: m.signature, Probe: m.probe}
	if m.cur != nil {
		cur := *m.cur
		s.CurrentModel = &cur
	}
	if m.err != nil {
		s.Err = m.err.Error()
	}
	return s
}

// State returns the loader state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	resp := types.StatusResponse{
		State:          string(m.state),
		Signature:      m.signature,
		Probe:          m.probe,
		Attempts:       append([]types.AttemptRecord(nil), m.attempts...),
		QueueLen:       len(m.queueCh),
		Inflight:       len(m.genCh),
		MaxQueueDepth:  cap(m.queueCh),
		LoadsTotal:     m.loadsTotal,
		UptimeSeconds:  int64(time.Since(m.startTime).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	}
	if m.cur != nil {
		resp.ModelID = m.cur.ID
		resp.ModelPath = m.cur.Path
		resp.Backend = m.cur.Backend
	}
	if m.err != nil {
		resp.LastError = m.err.Msg
		resp.LastErrorKind = m.err.Kind
	}
	m.mu.RUnlock()
	resp.Downloads = m.tasks.Snapshots()
	return resp
}
