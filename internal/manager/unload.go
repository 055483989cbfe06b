package manager

import (
	"time"
)

// Unload drains in-flight and queued inference, then closes the session.
// - Sets draining to reject new enqueues.
// - Waits up to drainTimeout for in-flight and queued requests to finish.
// - Closes the session and drops the cached signature.
// Unloading with nothing loaded is a no-op. It fails with ErrLoadInProgress
// while a load runs.
func (m *Manager) Unload() error {
	select {
	case m.loadSlot <- struct{}{}:
	default:
		return ErrLoadInProgress
	}
	defer func() { <-m.loadSlot }()

	m.mu.RLock()
	loaded := m.session != nil
	modelID := ""
	if m.cur != nil {
		modelID = m.cur.ID
	}
	m.mu.RUnlock()
	if !loaded {
		m.setState(StateUnloaded)
		return nil
	}
	m.publish("unload_start", modelID, nil)
	err := m.drainAndRelease(modelID)
	m.publish("unload_done", modelID, nil)
	m.log.Info().Str("model", modelID).Msg("event=unload_done")
	return err
}

// drainAndRelease waits for admitted work, then closes the current session
// while holding the in-flight slot. Callers hold loadSlot.
func (m *Manager) drainAndRelease(modelID string) error {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return nil
	}
	m.draining = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.draining = false
		m.mu.Unlock()
	}()

	deadline := time.Now().Add(m.drainTimeout)
	for {
		qlen := len(m.queueCh)
		inflight := len(m.genCh)
		if inflight == 0 && qlen == 0 {
			break
		}
		if time.Now().After(deadline) {
			m.publish("unload_timeout", modelID, map[string]any{"inflight": inflight, "queue": qlen})
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The in-flight slot guarantees no Run is using the session while it closes.
	m.genCh <- struct{}{}
	m.mu.Lock()
	sess := m.session
	m.session = nil
	m.signature = nil
	m.probe = nil
	m.probeInputs = nil
	m.cur = nil
	m.state = StateUnloaded
	m.mu.Unlock()
	<-m.genCh
	return sess.Close()
}
