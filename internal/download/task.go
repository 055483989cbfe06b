package download

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"modelhost/internal/common/fsutil"
	"modelhost/pkg/types"
)

// Status is the lifecycle state of a background download.
type Status string

const (
	StatusStarting    Status = "starting"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// progressBuffer bounds the per-task progress channel.
const progressBuffer = 16

// Request describes a background download.
type Request struct {
	URL    string
	Dest   string
	SHA256 string
}

// Task is a download running on its own goroutine.
type Task struct {
	ID   string
	URL  string
	Dest string

	mu           sync.RWMutex
	status       Status
	resumeOffset int64
	downloaded   int64
	total        int64
	speed        float64
	path         string
	err          error

	progress chan Progress
	done     chan struct{}
	cancel   context.CancelFunc
}

// Start launches req in the background. The task ends when the download
// finishes, fails, or ctx (or Cancel) stops it.
func (d *Downloader) Start(ctx context.Context, req Request) *Task {
	tctx, cancel := context.WithCancel(ctx)
	t := &Task{
		ID:       uuid.NewString(),
		URL:      req.URL,
		Dest:     req.Dest,
		status:   StatusStarting,
		progress: make(chan Progress, progressBuffer),
		done:     make(chan struct{}),
		cancel:   cancel,
	}
	// downloaded is left to the first report: a server that ignores Range
	// restarts the transfer from zero.
	if off, err := fsutil.FileSize(PartPath(req.Dest)); err == nil {
		t.resumeOffset = off
	}
	go func() {
		defer close(t.done)
		defer close(t.progress)
		defer cancel()
		path, err := d.Download(tctx, req.URL, req.Dest, req.SHA256, t.report)
		t.finish(path, err)
	}()
	return t
}

func (t *Task) report(p Progress) {
	t.mu.Lock()
	t.status = StatusDownloading
	t.downloaded = p.Downloaded
	t.total = p.Total
	t.speed = p.Speed
	t.mu.Unlock()
	// Reports are monotonic; when the buffer is full the oldest is dropped.
	for {
		select {
		case t.progress <- p:
			return
		default:
		}
		select {
		case <-t.progress:
		default:
		}
	}
}

func (t *Task) finish(path string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.path = path
	t.err = err
	switch {
	case err == nil:
		t.status = StatusCompleted
		if t.total > 0 {
			t.downloaded = t.total
		}
	case errors.Is(err, context.Canceled):
		t.status = StatusCancelled
	default:
		t.status = StatusFailed
	}
}

// Progress returns the bounded progress stream. It is closed when the task ends.
func (t *Task) Progress() <-chan Progress { return t.progress }

// Done is closed when the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} { return t.done }

// Cancel stops the transfer between chunks; the part file is kept.
func (t *Task) Cancel() { t.cancel() }

// Wait blocks until the task ends or ctx is done and returns the final path.
func (t *Task) Wait(ctx context.Context) (string, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.path, t.err
}

// Status returns the current lifecycle state.
func (t *Task) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// ResumeOffset is the part-file length found when the task started.
func (t *Task) ResumeOffset() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.resumeOffset
}

// Snapshot returns an API view of the task.
func (t *Task) Snapshot() types.DownloadStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := types.DownloadStatus{
		ID:         t.ID,
		URL:        t.URL,
		Dest:       t.Dest,
		Status:     string(t.status),
		Downloaded: t.downloaded,
		Total:      t.total,
		Speed:      t.speed,
	}
	if t.err != nil && t.status == StatusFailed {
		s.Error = t.err.Error()
	}
	return s
}

// Tasks tracks background downloads by id.
type Tasks struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	order []string
}

// NewTasks returns an empty task set.
func NewTasks() *Tasks { return &Tasks{tasks: make(map[string]*Task)} }

// Add registers t.
func (s *Tasks) Add(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(t)
}

func (s *Tasks) add(t *Task) {
	if _, ok := s.tasks[t.ID]; !ok {
		s.order = append(s.order, t.ID)
	}
	s.tasks[t.ID] = t
}

// StartOrGet returns the non-terminal task targeting dest, or registers the
// task returned by start. The check and the insert share one lock so a part
// file is owned by a single task. started reports whether start ran.
func (s *Tasks) StartOrGet(dest string, start func() *Task) (t *Task, started bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.activeLocked(dest); ok {
		return t, false
	}
	t = start()
	s.add(t)
	return t, true
}

// Get finds a task by id.
func (s *Tasks) Get(id string) (*Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	return t, ok
}

// Active reports whether a non-terminal task already targets dest.
func (s *Tasks) Active(dest string) (*Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeLocked(dest)
}

func (s *Tasks) activeLocked(dest string) (*Task, bool) {
	for _, t := range s.tasks {
		if t.Dest == dest && !t.Status().Terminal() {
			return t, true
		}
	}
	return nil, false
}

// Snapshots lists every task in start order.
func (s *Tasks) Snapshots() []types.DownloadStatus {
	s.mu.RLock()
	ids := append([]string(nil), s.order...)
	s.mu.RUnlock()
	out := make([]types.DownloadStatus, 0, len(ids))
	for _, id := range ids {
		if t, ok := s.Get(id); ok {
			out = append(out, t.Snapshot())
		}
	}
	return out
}
