package runner

import (
	"errors"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/haldane-labs/torrentrunner/internal/config"
	"github.com/haldane-labs/torrentrunner/internal/logger"
	"github.com/haldane-labs/torrentrunner/pkg/store"
	"github.com/rs/zerolog"
)

// workstarter.go starts new download and unpack workers while respecting
// the global concurrency caps. Executed per torrent, between download
// creation and the completion roll-up.

const interStartDelay = 100 * time.Millisecond

// WorkStarter launches DownloadWorker and UnpackWorker instances.
type WorkStarter struct {
	torrents     TorrentsFacade
	downloads    DownloadsFacade
	registry     *ActiveWorkerRegistry
	downloadFact DownloadWorkerFactory
	unpackFact   UnpackWorkerFactory
	cfg          *config.Config
	logger       zerolog.Logger
}

// NewWorkStarter builds a WorkStarter.
func NewWorkStarter(torrents TorrentsFacade, downloads DownloadsFacade, registry *ActiveWorkerRegistry, downloadFact DownloadWorkerFactory, unpackFact UnpackWorkerFactory, cfg *config.Config) *WorkStarter {
	return &WorkStarter{
		torrents:     torrents,
		downloads:    downloads,
		registry:     registry,
		downloadFact: downloadFact,
		unpackFact:   unpackFact,
		cfg:          cfg,
		logger:       logger.New("workstarter"),
	}
}

func queuedEligibleDownloads(t *store.Torrent) []*store.Download {
	var eligible []*store.Download
	for i := range t.Downloads {
		d := &t.Downloads[i]
		if d.Completed == nil && d.DownloadQueued != nil && d.DownloadStarted == nil && d.Error == nil {
			eligible = append(eligible, d)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].DownloadQueued.Before(*eligible[j].DownloadQueued)
	})
	return eligible
}

func queuedEligibleUnpacks(t *store.Torrent) []*store.Download {
	var eligible []*store.Download
	for i := range t.Downloads {
		d := &t.Downloads[i]
		if d.Completed == nil && d.UnpackingQueued != nil && d.UnpackingStarted == nil && d.Error == nil {
			eligible = append(eligible, d)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].DownloadQueued.Before(*eligible[j].DownloadQueued)
	})
	return eligible
}

// StartDownloads dispatches new download workers for t, honoring
// cfg.DownloadLimit. Starts within this torrent are spaced by at least
// interStartDelay; their Start() calls run concurrently and are joined
// before returning so a single batch update can be applied.
func (ws *WorkStarter) StartDownloads(t *store.Torrent) error {
	eligible := queuedEligibleDownloads(t)
	if len(eligible) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	remoteIDs := make(map[string]string)
	errs := make(map[string]string)

	for i, d := range eligible {
		if ws.registry.DownloadCount() >= ws.cfg.DownloadLimit {
			break
		}
		if ws.registry.HasDownload(d.ID) {
			break
		}

		if d.Link == nil {
			link, size, err := ws.torrents.UnrestrictLink(d.ID)
			if err != nil {
				if errors.Is(err, ErrLinkUnavailable) {
					// Transient provider outage: leave the download
					// queued and stop hammering the link API this tick.
					ws.logger.Warn().Err(err).Str("download", d.ID).Msg("Link not available yet, deferring to next tick")
					break
				}
				if uerr := ws.downloads.UpdateError(d.ID, err.Error()); uerr != nil {
					return uerr
				}
				if uerr := ws.downloads.UpdateCompleted(d.ID); uerr != nil {
					return uerr
				}
				break
			}
			d.Link = &link
			d.BytesTotal = size
		}

		if err := ws.downloads.UpdateDownloadStarted(d.ID); err != nil {
			return err
		}

		downloadPath := ws.cfg.DownloadPath
		if cat := strings.ToLower(t.Category); cat != "" {
			downloadPath = filepath.Join(downloadPath, cat)
		}

		worker, err := ws.downloadFact.NewDownloadWorker(d, t, downloadPath)
		if err != nil {
			return err
		}

		ws.registry.PutDownload(d.ID, worker)

		wg.Add(1)
		go func(d *store.Download, w DownloadWorker) {
			defer wg.Done()
			remoteID, startErr := w.Start()
			mu.Lock()
			defer mu.Unlock()
			if startErr != nil {
				errs[d.ID] = startErr.Error()
			} else if remoteID != "" {
				remoteIDs[d.ID] = remoteID
			}
		}(d, worker)

		if i < len(eligible)-1 {
			time.Sleep(interStartDelay)
		}
	}

	wg.Wait()

	if err := ws.downloads.UpdateRemoteIDRange(remoteIDs); err != nil {
		return err
	}
	return ws.downloads.UpdateErrorInRange(errs)
}

// StartUnpacks dispatches new unpack workers for t. Unlike StartDownloads,
// hitting the cap does not stop the loop early, it only skips the
// individual download: a later download in the batch may still need the
// no-archive fast path even when an earlier one can't get a worker slot.
func (ws *WorkStarter) StartUnpacks(t *store.Torrent) error {
	eligible := queuedEligibleUnpacks(t)

	for _, d := range eligible {
		if d.Link == nil {
			if err := ws.downloads.UpdateError(d.ID, "Download Link cannot be null"); err != nil {
				return err
			}
			if err := ws.downloads.UpdateCompleted(d.ID); err != nil {
				return err
			}
			continue
		}

		ext := extensionFromLink(*d.Link)
		if ext != ".rar" && ext != ".zip" {
			if err := ws.downloads.UpdateUnpackSkipComplete(d.ID); err != nil {
				return err
			}
			continue
		}

		if ws.cfg.IsSymlinkBackend() {
			if err := ws.downloads.UpdateError(d.ID, "Will not unzip with SymlinkDownloader!"); err != nil {
				return err
			}
			if err := ws.downloads.UpdateCompleted(d.ID); err != nil {
				return err
			}
			continue
		}

		if ws.registry.UnpackCount() >= ws.cfg.UnpackLimit {
			continue
		}
		if ws.registry.HasUnpack(d.ID) {
			continue
		}

		if err := ws.downloads.UpdateUnpackingStarted(d.ID); err != nil {
			return err
		}

		worker, err := ws.unpackFact.NewUnpackWorker(d, t)
		if err != nil {
			return err
		}

		ws.registry.PutUnpack(d.ID, worker)
		go func(w UnpackWorker, downloadID string) {
			if err := w.Start(); err != nil {
				ws.logger.Warn().Err(err).Str("download", downloadID).Msg("Unpack worker failed to start")
			}
		}(worker, d.ID)
	}

	return nil
}

// extensionFromLink extracts the lowercased file extension from a download
// URL's last path segment, after URL-decoding it.
func extensionFromLink(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return strings.ToLower(filepath.Ext(link))
	}
	decoded, err := url.QueryUnescape(parsed.Path)
	if err != nil {
		decoded = parsed.Path
	}
	segments := strings.Split(decoded, "/")
	last := segments[len(segments)-1]
	return strings.ToLower(filepath.Ext(last))
}
