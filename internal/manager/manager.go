package manager

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"modelhost/internal/download"
	"modelhost/internal/ort"
	"modelhost/internal/registry"
	"modelhost/pkg/types"
)

type Manager struct {
	mu           sync.RWMutex
	state        State
	cur          *ModelInfo
	err          *LoadError
	registry     []types.Model
	modelsDir    string
	defaultModel string
	defaultLoad  types.LoadConfig
	lastLoad     types.LoadConfig

	// Session ownership. Only the goroutine holding genCh touches session.
	session     ort.Session
	signature   *types.ModelSignature
	probe       *types.ProbeResult
	probeInputs []string
	attempts    []types.AttemptRecord
	loadsTotal  uint64

	runtime        ort.Runtime
	runtimeLibrary string
	detector       BackendDetector
	isolator       Isolator
	fallback       Fallback
	attemptTimeout time.Duration
	loadSlot       chan struct{} // size 1: single load in flight
	closed         bool

	scanner    registry.Scanner
	catalog    *registry.Catalog
	downloader *download.Downloader
	tasks      *download.Tasks
	autoLoad   bool

	// Queue config
	genCh         chan struct{} // size 1: single in-flight inference
	queueCh       chan struct{} // buffered: queue slots
	maxQueueDepth int
	maxWait       time.Duration
	drainTimeout  time.Duration
	draining      bool

	publisher EventPublisher
	log       zerolog.Logger
	startTime time.Time
}

// New constructs a Manager over reg using rt as the native runtime.
func New(reg []types.Model, rt ort.Runtime, defaultModel string) *Manager {
	// Delegate to NewWithConfig to centralize defaults and option parsing
	return NewWithConfig(ManagerConfig{
		Registry:     reg,
		Runtime:      rt,
		DefaultModel: defaultModel,
	})
}

// SetEventPublisher replaces the event sink. Nil restores the no-op sink.
func (m *Manager) SetEventPublisher(p EventPublisher) {
	if p == nil {
		p = noopPublisher{}
	}
	m.mu.Lock()
	m.publisher = p
	m.mu.Unlock()
}

func (m *Manager) publish(name, modelID string, fields map[string]any) {
	m.mu.RLock()
	p := m.publisher
	m.mu.RUnlock()
	if fields == nil {
		fields = map[string]any{}
	}
	p.Publish(Event{Name: name, ModelID: modelID, Fields: fields})
}

// Ready reports whether a session is loaded.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateLoaded && m.session != nil
}

func (m *Manager) ListModels() []types.Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// return a shallow copy to avoid external mutation
	out := make([]types.Model, len(m.registry))
	copy(out, m.registry)
	return out
}

// Catalog returns the remote catalog entries.
func (m *Manager) Catalog() []types.RemoteModel {
	if m.catalog == nil {
		return nil
	}
	return m.catalog.Entries()
}

// Backends returns the detected backends.
func (m *Manager) Backends(ctx context.Context) []types.Backend {
	return m.detector.Cached(ctx)
}

// Downloads exposes the background download registry.
func (m *Manager) Downloads() *download.Tasks { return m.tasks }

// Close releases the session and cancels running downloads. It waits for a
// running load up to one attempt timeout plus the drain timeout; a load that
// finishes later closes its own session instead of installing it.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	for _, s := range m.tasks.Snapshots() {
		if t, ok := m.tasks.Get(s.ID); ok {
			t.Cancel()
		}
	}
	timer := time.NewTimer(m.attemptTimeout + m.drainTimeout)
	defer timer.Stop()
	select {
	case m.loadSlot <- struct{}{}:
		defer func() { <-m.loadSlot }()
	case <-timer.C:
		m.log.Warn().Msg("event=close_load_timeout")
	}
	m.mu.RLock()
	modelID := ""
	if m.cur != nil {
		modelID = m.cur.ID
	}
	m.mu.RUnlock()
	return m.drainAndRelease(modelID)
}
