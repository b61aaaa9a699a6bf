// Package httpworker implements a DownloadWorker backed by
// github.com/cavaliergopher/grab/v3 for plain HTTP(S) multipart transfer.
package httpworker

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cavaliergopher/grab/v3"
	"github.com/haldane-labs/torrentrunner/internal/logger"
	"github.com/haldane-labs/torrentrunner/pkg/runner"
	"github.com/haldane-labs/torrentrunner/pkg/store"
	"github.com/rs/zerolog"
)

// ProgressUpdater is the narrow slice of store.Store a Worker needs to
// report byte progress from its own goroutine, outside the tick's thread
// of control.
type ProgressUpdater interface {
	UpdateDownloadProgress(downloadID string, bytesDone, bytesTotal int64) error
}

const progressInterval = 2 * time.Second

// Worker drives one file through grab's connection-pooled downloader.
type Worker struct {
	downloadID string
	url        string
	destDir    string
	filename   string
	progress   ProgressUpdater

	client *grab.Client
	logger zerolog.Logger

	mu       sync.Mutex
	resp     *grab.Response
	finished bool
	errMsg   string
}

// Factory builds Workers for the http backend, implementing
// runner.DownloadWorkerFactory.
type Factory struct {
	Client   *grab.Client
	Progress ProgressUpdater
}

// NewFactory builds a Factory with a shared grab.Client.
func NewFactory(progress ProgressUpdater) *Factory {
	return &Factory{Client: grab.NewClient(), Progress: progress}
}

// NewDownloadWorker implements runner.DownloadWorkerFactory.
func (f *Factory) NewDownloadWorker(d *store.Download, t *store.Torrent, downloadPath string) (runner.DownloadWorker, error) {
	if d.Link == nil {
		return nil, fmt.Errorf("download %s has no unrestricted link", d.ID)
	}
	return &Worker{
		downloadID: d.ID,
		url:        *d.Link,
		destDir:    downloadPath,
		filename:   d.Filename,
		progress:   f.Progress,
		client:     f.Client,
		logger:     logger.New("httpworker"),
	}, nil
}

// Start begins the transfer. It returns once grab has accepted the request
// and begun the background transfer; Finished/Error report asynchronously
// from there on.
func (w *Worker) Start() (string, error) {
	if err := os.MkdirAll(w.destDir, 0o755); err != nil {
		return "", fmt.Errorf("creating download directory: %w", err)
	}

	dest := filepath.Join(w.destDir, w.filename)
	req, err := grab.NewRequest(dest, w.url)
	if err != nil {
		return "", fmt.Errorf("building grab request: %w", err)
	}

	resp := w.client.Do(req)

	w.mu.Lock()
	w.resp = resp
	w.mu.Unlock()

	go w.watch()

	return dest, nil
}

// watch polls grab's progress and persists it until the transfer completes.
func (w *Worker) watch() {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.resp.Done:
			w.finish()
			return
		case <-ticker.C:
			if w.progress != nil {
				_ = w.progress.UpdateDownloadProgress(w.downloadID, w.resp.BytesComplete(), w.resp.Size())
			}
		}
	}
}

func (w *Worker) finish() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.finished = true
	if err := w.resp.Err(); err != nil {
		w.errMsg = err.Error()
		w.logger.Warn().Err(err).Str("download", w.downloadID).Msg("http download failed")
		return
	}
	if w.progress != nil {
		_ = w.progress.UpdateDownloadProgress(w.downloadID, w.resp.BytesComplete(), w.resp.Size())
	}
}

// Finished reports whether the transfer has terminated, successfully or
// otherwise.
func (w *Worker) Finished() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finished
}

// Error returns the terminal error message, or "" on a clean finish.
func (w *Worker) Error() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.errMsg
}
