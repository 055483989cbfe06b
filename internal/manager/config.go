package manager

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"modelhost/internal/download"
	"modelhost/internal/ort"
	"modelhost/internal/registry"
	"modelhost/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth  = 32
	defaultMaxWait        = 30 * time.Second
	defaultDrainTimeout   = 5 * time.Second
	defaultAttemptTimeout = 2 * time.Minute
	maxIntraOpThreads     = 4
)

// BackendDetector reports the backends present on this machine.
// *backends.Detector satisfies it.
type BackendDetector interface {
	Cached(ctx context.Context) []types.Backend
}

// Fallback answers generation requests when the loaded model's input
// convention could not be confirmed.
type Fallback interface {
	Respond(ctx context.Context, ids []int64) (string, error)
}

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Registry      []types.Model
	ModelsDir     string
	DefaultModel  string
	MaxQueueDepth int
	MaxWait       time.Duration
	DrainTimeout  time.Duration
	// AttemptTimeout bounds one backend attempt.
	AttemptTimeout time.Duration
	// DefaultLoad seeds LoadConfig fields a caller leaves empty and is used
	// for auto-loading pulled models.
	DefaultLoad types.LoadConfig

	Runtime        ort.Runtime
	RuntimeLibrary string
	Detector       BackendDetector
	Isolator       Isolator
	Fallback       Fallback

	Scanner           registry.Scanner
	Catalog           *registry.Catalog
	Downloader        *download.Downloader
	AutoLoadDownloads bool

	Publisher EventPublisher
	Logger    *zerolog.Logger
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		state:          StateUnloaded,
		registry:       cfg.Registry,
		modelsDir:      cfg.ModelsDir,
		defaultModel:   cfg.DefaultModel,
		defaultLoad:    cfg.DefaultLoad,
		runtime:        cfg.Runtime,
		runtimeLibrary: cfg.RuntimeLibrary,
		detector:       cfg.Detector,
		isolator:       cfg.Isolator,
		fallback:       cfg.Fallback,
		scanner:        cfg.Scanner,
		catalog:        cfg.Catalog,
		downloader:     cfg.Downloader,
		tasks:          download.NewTasks(),
		autoLoad:       cfg.AutoLoadDownloads,
		publisher:      cfg.Publisher,
		loadSlot:       make(chan struct{}, 1),
		startTime:      time.Now(),
	}
	// Apply defaults if unset
	if cfg.MaxQueueDepth <= 0 {
		m.maxQueueDepth = defaultMaxQueueDepth
	} else {
		m.maxQueueDepth = cfg.MaxQueueDepth
	}
	if cfg.MaxWait <= 0 {
		m.maxWait = defaultMaxWait
	} else {
		m.maxWait = cfg.MaxWait
	}
	if cfg.DrainTimeout <= 0 {
		m.drainTimeout = defaultDrainTimeout
	} else {
		m.drainTimeout = cfg.DrainTimeout
	}
	if cfg.AttemptTimeout <= 0 {
		m.attemptTimeout = defaultAttemptTimeout
	} else {
		m.attemptTimeout = cfg.AttemptTimeout
	}
	if m.runtime == nil {
		m.runtime = ort.New(cfg.RuntimeLibrary)
	}
	if m.detector == nil {
		m.detector = staticDetector{types.BackendCPU}
	}
	if m.scanner == nil {
		m.scanner = registry.NewONNXScanner()
	}
	if m.downloader == nil {
		m.downloader = download.New()
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	if cfg.Logger != nil {
		m.log = *cfg.Logger
	} else {
		m.log = zerolog.Nop()
	}
	m.genCh = make(chan struct{}, 1)
	m.queueCh = make(chan struct{}, m.maxQueueDepth)
	return m
}

// staticDetector reports a fixed backend list.
type staticDetector []types.Backend

func (s staticDetector) Cached(context.Context) []types.Backend { return s }
