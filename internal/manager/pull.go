package manager

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"modelhost/internal/common/fsutil"
	"modelhost/internal/download"
	"modelhost/internal/registry"
	"modelhost/pkg/types"
)

// PullOptions override catalog values for one pull.
type PullOptions struct {
	SHA256   string
	FileName string
}

// Pull resolves source (catalog name or http(s) URL) and downloads it into
// the models directory in the background. ctx bounds the transfer. A pull of
// a destination already downloading returns the running task. When the task
// completes the registry is rescanned and, with AutoLoadDownloads, the model
// is loaded using the last load configuration.
func (m *Manager) Pull(ctx context.Context, source string, opts PullOptions) (*download.Task, error) {
	rm, err := m.resolveRemote(source)
	if err != nil {
		return nil, invalidRequestError{msg: err.Error()}
	}
	if opts.SHA256 != "" {
		rm.SHA256 = opts.SHA256
	}
	name := opts.FileName
	if name == "" {
		name = registry.FileName(rm)
	}
	name = filepath.Base(name)
	if !strings.EqualFold(filepath.Ext(name), ".onnx") {
		return nil, invalidRequestError{msg: fmt.Sprintf("destination %q is not an .onnx file", name)}
	}
	if m.modelsDir == "" {
		return nil, errors.New("models directory not configured")
	}
	dir, err := fsutil.ExpandHome(m.modelsDir)
	if err != nil {
		return nil, err
	}
	dest := filepath.Join(dir, name)
	task, started := m.tasks.StartOrGet(dest, func() *download.Task {
		return m.downloader.Start(ctx, download.Request{URL: rm.URL, Dest: dest, SHA256: rm.SHA256})
	})
	if !started {
		return task, nil
	}
	modelID := modelIDFromPath(dest)
	m.publish("download_start", modelID, map[string]any{"id": task.ID, "url": rm.URL, "dest": dest, "resume_offset": task.ResumeOffset()})
	go m.watchDownload(ctx, task, modelID)
	return task, nil
}

func (m *Manager) resolveRemote(source string) (types.RemoteModel, error) {
	if m.catalog != nil {
		return m.catalog.Resolve(source)
	}
	empty, err := registry.NewCatalog(nil)
	if err != nil {
		return types.RemoteModel{}, err
	}
	return empty.Resolve(source)
}

// watchDownload forwards progress as events and finishes the pull.
func (m *Manager) watchDownload(ctx context.Context, task *download.Task, modelID string) {
	for p := range task.Progress() {
		m.publish("download_progress", modelID, map[string]any{"id": task.ID, "downloaded": p.Downloaded, "total": p.Total, "speed_bps": p.Speed})
	}
	path, err := task.Wait(context.Background())
	if err != nil {
		m.publish("download_failed", modelID, map[string]any{"id": task.ID, "status": string(task.Status()), "error": err.Error()})
		m.log.Warn().Str("model", modelID).Str("id", task.ID).Err(err).Msg("event=download_failed")
		return
	}
	size, _ := fsutil.FileSize(path)
	m.publish("download_done", modelID, map[string]any{"id": task.ID, "path": path, "bytes": size})
	m.log.Info().Str("model", modelID).Str("path", path).Msg("event=download_done")
	if err := m.Rescan(); err != nil {
		m.log.Warn().Err(err).Msg("event=rescan_failed")
	}
	if !m.autoLoad {
		return
	}
	m.mu.RLock()
	cfg := m.lastLoad
	m.mu.RUnlock()
	cfg.ModelPath = path
	res := <-m.LoadAsync(ctx, cfg)
	if res.Err != nil {
		m.log.Warn().Str("model", modelID).Err(res.Err).Msg("event=auto_load_failed")
	}
}

// Rescan rebuilds the registry from the models directory.
func (m *Manager) Rescan() error {
	if m.modelsDir == "" {
		return nil
	}
	dir, err := fsutil.ExpandHome(m.modelsDir)
	if err != nil {
		return err
	}
	if !fsutil.PathExists(dir) {
		return nil
	}
	models, err := m.scanner.Scan(dir)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.registry = models
	m.mu.Unlock()
	return nil
}

// StartDownload is Pull for API hosts.
func (m *Manager) StartDownload(ctx context.Context, req types.DownloadRequest) (types.DownloadStatus, error) {
	t, err := m.Pull(ctx, req.Source, PullOptions{SHA256: req.SHA256, FileName: req.FileName})
	if err != nil {
		return types.DownloadStatus{}, err
	}
	return t.Snapshot(), nil
}

// DownloadStatus reports a background download by id.
func (m *Manager) DownloadStatus(id string) (types.DownloadStatus, bool) {
	t, ok := m.tasks.Get(id)
	if !ok {
		return types.DownloadStatus{}, false
	}
	return t.Snapshot(), true
}

// CancelDownload stops a background download; its part file is kept.
func (m *Manager) CancelDownload(id string) bool {
	t, ok := m.tasks.Get(id)
	if !ok {
		return false
	}
	t.Cancel()
	return true
}
