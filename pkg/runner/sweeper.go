package runner

import (
	"github.com/haldane-labs/torrentrunner/internal/logger"
	"github.com/haldane-labs/torrentrunner/pkg/store"
	"github.com/rs/zerolog"
)

// sweeper.go promotes finished workers to their next lifecycle step,
// applying the download-phase retry policy. No retry policy applies to
// unpack.

// CompletionSweeper drains finished workers out of the registries.
type CompletionSweeper struct {
	downloads DownloadsFacade
	store     *store.Store
	registry  *ActiveWorkerRegistry
	logger    zerolog.Logger
}

// NewCompletionSweeper builds a sweeper.
func NewCompletionSweeper(downloads DownloadsFacade, st *store.Store, registry *ActiveWorkerRegistry) *CompletionSweeper {
	return &CompletionSweeper{downloads: downloads, store: st, registry: registry, logger: logger.New("sweeper")}
}

// SweepDownloads drains every finished download worker, retrying up to the
// parent torrent's downloadRetryAttempts before recording a terminal error.
func (s *CompletionSweeper) SweepDownloads() error {
	for id, w := range s.registry.SnapshotDownloads() {
		if !w.Finished() {
			continue
		}

		d, err := s.store.GetDownload(id)
		if err != nil {
			// Row gone: drop the registry entry and move on.
			s.registry.RemoveDownload(id)
			continue
		}

		t, err := s.store.GetTorrent(d.TorrentID)
		if err != nil {
			s.registry.RemoveDownload(id)
			continue
		}

		if errMsg := w.Error(); errMsg != "" {
			if d.RetryCount < t.DownloadRetryAttempts {
				if resetErr := s.downloads.Reset(id); resetErr != nil {
					return resetErr
				}
				if cErr := s.downloads.UpdateRetryCount(id, d.RetryCount+1); cErr != nil {
					return cErr
				}
				s.logger.Debug().Str("download", id).Int("retry", d.RetryCount+1).Msg("Download reset for retry")
			} else {
				if cErr := s.downloads.UpdateError(id, errMsg); cErr != nil {
					return cErr
				}
				if cErr := s.downloads.UpdateCompleted(id); cErr != nil {
					return cErr
				}
				s.logger.Warn().Str("download", id).Str("error", errMsg).Msg("Download terminal after retry budget exhausted")
			}
		} else {
			if err := s.downloads.UpdateDownloadFinishedAndQueued(id); err != nil {
				return err
			}
		}

		s.registry.RemoveDownload(id)
	}

	return nil
}

// SweepUnpacks drains every finished unpack worker. There is no retry: a
// failure is immediately terminal.
func (s *CompletionSweeper) SweepUnpacks() error {
	for id, w := range s.registry.SnapshotUnpacks() {
		if !w.Finished() {
			continue
		}

		if errMsg := w.Error(); errMsg != "" {
			if err := s.downloads.UpdateError(id, errMsg); err != nil {
				return err
			}
			if err := s.downloads.UpdateCompleted(id); err != nil {
				return err
			}
		} else {
			if err := s.downloads.UpdateUnpackingFinished(id); err != nil {
				return err
			}
			if err := s.downloads.UpdateCompleted(id); err != nil {
				return err
			}
		}

		s.registry.RemoveUnpack(id)
	}

	return nil
}
