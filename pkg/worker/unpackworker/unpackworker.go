// Package unpackworker implements an UnpackWorker backed by
// github.com/mholt/archives, extracting a finished .rar/.zip download in
// place next to the archive.
package unpackworker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/haldane-labs/torrentrunner/internal/logger"
	"github.com/haldane-labs/torrentrunner/pkg/runner"
	"github.com/haldane-labs/torrentrunner/pkg/store"
	"github.com/mholt/archives"
	"github.com/rs/zerolog"
)

// Worker extracts one archive.
type Worker struct {
	archivePath string
	destDir     string

	mu       sync.Mutex
	finished bool
	errMsg   string
	logger   zerolog.Logger
}

// Factory builds Workers for finished downloads, implementing
// runner.UnpackWorkerFactory.
type Factory struct {
	downloadPath func(t *store.Torrent) string
}

// NewFactory builds a Factory. downloadPath computes the per-torrent
// destination directory the same way WorkStarter does (downloadPath/category).
func NewFactory(downloadPath func(t *store.Torrent) string) *Factory {
	return &Factory{downloadPath: downloadPath}
}

// NewUnpackWorker implements runner.UnpackWorkerFactory.
func (f *Factory) NewUnpackWorker(d *store.Download, t *store.Torrent) (runner.UnpackWorker, error) {
	destDir := f.downloadPath(t)
	return &Worker{
		archivePath: filepath.Join(destDir, d.Filename),
		destDir:     destDir,
		logger:      logger.New("unpackworker"),
	}, nil
}

// Start extracts the archive synchronously within its own goroutine
// (WorkStarter launches Start in a goroutine and only observes Finished);
// it runs to completion and records the outcome before returning.
func (w *Worker) Start() error {
	err := w.extract()

	w.mu.Lock()
	w.finished = true
	if err != nil {
		w.errMsg = err.Error()
	}
	w.mu.Unlock()

	return err
}

func (w *Worker) extract() error {
	ctx := context.Background()

	f, err := os.Open(w.archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	format, reader, err := archives.Identify(ctx, w.archivePath, f)
	if err != nil {
		return fmt.Errorf("identifying archive format: %w", err)
	}

	extractor, ok := format.(archives.Extractor)
	if !ok {
		return fmt.Errorf("format %T does not support extraction", format)
	}

	return extractor.Extract(ctx, reader, func(ctx context.Context, fi archives.FileInfo) error {
		if fi.IsDir() {
			return nil
		}

		target := filepath.Join(w.destDir, filepath.Clean(fi.NameInArchive))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		src, err := fi.Open()
		if err != nil {
			return err
		}
		defer src.Close()

		dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fi.Mode())
		if err != nil {
			return err
		}
		defer dst.Close()

		if _, err := dst.ReadFrom(src); err != nil {
			return fmt.Errorf("writing %s: %w", target, err)
		}
		return nil
	})
}

// Finished reports whether extraction has terminated, successfully or
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
