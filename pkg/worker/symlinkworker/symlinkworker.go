// Package symlinkworker implements the symlink-mode DownloadWorker: it
// materializes a file as a symlink into an already-mounted remote
// filesystem (e.g. an rclone mount of the debrid provider) instead of
// transferring bytes. No unpack worker ever runs against it — the
// WorkStarter rejects .rar/.zip downloads on this backend before one would
// be constructed.
package symlinkworker

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/haldane-labs/torrentrunner/pkg/runner"
	"github.com/haldane-labs/torrentrunner/pkg/store"
)

// Worker creates a single symlink and reports itself finished immediately;
// there is no byte transfer to wait on.
type Worker struct {
	sourcePath string
	destPath   string

	mu       sync.Mutex
	finished bool
	errMsg   string
}

// Factory builds Workers that symlink into mountPath, implementing
// runner.DownloadWorkerFactory.
type Factory struct {
	MountPath string
}

// NewFactory builds a Factory rooted at the rclone mount path.
func NewFactory(mountPath string) *Factory {
	return &Factory{MountPath: mountPath}
}

// NewDownloadWorker implements runner.DownloadWorkerFactory. d.Filename is
// resolved under the torrent's own directory (t.Filename) beneath the mount
// root; real deployments mirror the provider's own directory layout under
// the mount.
func (f *Factory) NewDownloadWorker(d *store.Download, t *store.Torrent, downloadPath string) (runner.DownloadWorker, error) {
	return &Worker{
		sourcePath: filepath.Join(f.MountPath, t.Filename, d.Filename),
		destPath:   filepath.Join(downloadPath, d.Filename),
	}, nil
}

// Start creates the symlink and reports done. There is no remote id for a
// symlink transfer, so it returns "".
func (w *Worker) Start() (string, error) {
	if err := os.MkdirAll(filepath.Dir(w.destPath), 0o755); err != nil {
		w.setErr(err)
		return "", err
	}

	if _, err := os.Lstat(w.destPath); err == nil {
		_ = os.Remove(w.destPath)
	}

	if err := os.Symlink(w.sourcePath, w.destPath); err != nil {
		err = fmt.Errorf("symlinking %s -> %s: %w", w.destPath, w.sourcePath, err)
		w.setErr(err)
		return "", err
	}

	w.mu.Lock()
	w.finished = true
	w.mu.Unlock()
	return "", nil
}

func (w *Worker) setErr(err error) {
	w.mu.Lock()
	w.finished = true
	w.errMsg = err.Error()
	w.mu.Unlock()
}

// Finished always reports true once Start has returned: symlinking is
// synchronous.
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
