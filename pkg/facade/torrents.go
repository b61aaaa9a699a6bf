// Package facade adapts the store and the Real-Debrid client into the
// TorrentsFacade and DownloadsFacade shapes pkg/runner consumes. This is
// the seam between the reconciliation core and its external collaborators:
// the core never imports realdebrid or gorm directly.
package facade

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/haldane-labs/torrentrunner/internal/config"
	"github.com/haldane-labs/torrentrunner/internal/logger"
	"github.com/haldane-labs/torrentrunner/pkg/realdebrid"
	"github.com/haldane-labs/torrentrunner/pkg/repair"
	"github.com/haldane-labs/torrentrunner/pkg/runner"
	"github.com/haldane-labs/torrentrunner/pkg/store"
	"github.com/haldane-labs/torrentrunner/pkg/worker"
	"github.com/rs/zerolog"
)

// statusRefreshConcurrency bounds how many remote GetTorrentInfo calls Get
// fans out at once; refreshing dozens of active torrents serially would
// make the status read the slowest part of a tick.
const statusRefreshConcurrency = 8

// Torrents implements runner.TorrentsFacade over a Store and a Real-Debrid
// Client.
type Torrents struct {
	store  *store.Store
	rd     *realdebrid.Client
	repair *repair.Service
	cfg    *config.Config
	logger zerolog.Logger
}

// NewTorrents builds a Torrents facade.
func NewTorrents(st *store.Store, rd *realdebrid.Client, rp *repair.Service, cfg *config.Config) *Torrents {
	return &Torrents{store: st, rd: rd, repair: rp, cfg: cfg, logger: logger.New("facade")}
}

// Get returns every non-completed torrent, refreshing each one's remote
// status from Real-Debrid before the reconciler sees it. A torrent whose
// remote refresh fails keeps its last known status for this tick; the next
// tick tries again.
func (f *Torrents) Get() ([]*store.Torrent, error) {
	torrents, err := f.store.ListActive()
	if err != nil {
		return nil, err
	}

	pending := make([]*store.Torrent, 0, len(torrents))
	for _, t := range torrents {
		if t.RDTorrentID != "" {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		return torrents, nil
	}

	type refresh struct {
		torrent   *store.Torrent
		status    string
		rawStatus string
	}

	batch := worker.NewBatchProcessor[*store.Torrent, refresh](statusRefreshConcurrency)
	results := batch.Process(pending, func(t *store.Torrent) (refresh, error) {
		info, err := f.rd.GetTorrentInfo(t.RDTorrentID)
		if err != nil {
			f.logger.Warn().Err(err).Str("torrent", t.ID).Msg("failed to refresh remote status")
			return refresh{torrent: t, status: t.RDStatus, rawStatus: t.RawRDStatus}, nil
		}
		return refresh{torrent: t, status: string(info.NormalizedStatus()), rawStatus: info.Status}, nil
	})

	for _, r := range results {
		if r.Error != nil {
			continue
		}
		if r.Value.status == r.Value.torrent.RDStatus && r.Value.rawStatus == r.Value.torrent.RawRDStatus {
			continue
		}
		fields := map[string]interface{}{
			"rd_status":     r.Value.status,
			"raw_rd_status": r.Value.rawStatus,
		}
		if err := f.store.UpdateTorrentFields(r.Value.torrent.ID, fields); err != nil {
			return nil, err
		}
		r.Value.torrent.RDStatus = r.Value.status
		r.Value.torrent.RawRDStatus = r.Value.rawStatus
	}

	return torrents, nil
}

// GetErroredTerminal returns completed torrents that ended in error and
// carry a positive delete-on-error window, for the tick's retention pass.
func (f *Torrents) GetErroredTerminal() ([]*store.Torrent, error) {
	return f.store.ListErroredTerminal()
}

// UnrestrictLink resolves the download's stored restricted share link into
// a direct URL plus its reported size. A transient provider outage (503
// after the client's own retries) is reported as runner.ErrLinkUnavailable
// so the download stays queued for the next tick; everything else is
// terminal for the download.
func (f *Torrents) UnrestrictLink(downloadID string) (string, int64, error) {
	d, err := f.store.GetDownload(downloadID)
	if err != nil {
		return "", 0, err
	}
	if d.RestrictedLink == nil || *d.RestrictedLink == "" {
		return "", 0, fmt.Errorf("download %s has no restricted link", downloadID)
	}

	link, size, err := f.rd.UnrestrictLink(*d.RestrictedLink)
	if err != nil {
		if realdebrid.IsQueueableError(err) {
			return "", 0, fmt.Errorf("%w: %v", runner.ErrLinkUnavailable, err)
		}
		return "", 0, err
	}
	return link, size, nil
}

// RetryTorrent re-submits the torrent's magnet under a new Real-Debrid id
// and points local state at it. RetryCount is incremented here, not by the
// reconciler — an implementer adding a local increment on top would
// double-count the retry budget.
func (f *Torrents) RetryTorrent(torrentID string, retryCount int) error {
	t, err := f.store.GetTorrent(torrentID)
	if err != nil {
		return err
	}

	newID, err := f.repair.Repair(t.Hash)
	if err != nil {
		return fmt.Errorf("retrying torrent %s: %w", torrentID, err)
	}

	oldID := t.RDTorrentID
	fields := map[string]interface{}{
		"rd_torrent_id": newID,
		"rd_status":     string(realdebrid.StatusQueued),
		"retry_count":   retryCount + 1,
		"error":         nil,
	}
	if err := f.store.UpdateTorrentFields(torrentID, fields); err != nil {
		return err
	}

	if oldID != "" && oldID != newID {
		if err := f.rd.DeleteTorrent(oldID); err != nil {
			f.logger.Warn().Err(err).Str("torrent", torrentID).Msg("failed to delete stale real-debrid torrent after retry")
		}
	}
	return nil
}

// UpdateRetry sets or clears the retry marker and retry count without
// resubmitting anything remotely.
func (f *Torrents) UpdateRetry(torrentID string, retry bool, retryCount int) error {
	return f.store.UpdateTorrentFields(torrentID, map[string]interface{}{
		"retry_requested": retry,
		"retry_count":     retryCount,
	})
}

// SelectFiles selects every file Real-Debrid reports for the torrent. The
// data model has no per-file selection intent beyond hostDownloadAction, so
// this always selects the full set; CreateDownloads/hostDownloadAction
// decides whether rows get created for them.
func (f *Torrents) SelectFiles(torrentID string) error {
	t, err := f.store.GetTorrent(torrentID)
	if err != nil {
		return err
	}
	return f.rd.SelectAllFiles(t.RDTorrentID)
}

// UpdateFilesSelected stamps FilesSelected = now.
func (f *Torrents) UpdateFilesSelected(torrentID string) error {
	now := time.Now()
	return f.store.UpdateTorrentFields(torrentID, map[string]interface{}{"files_selected": &now})
}

// CreateDownloads fetches the torrent's selected files from Real-Debrid and
// inserts one Download row per file, each carrying its restricted link.
func (f *Torrents) CreateDownloads(torrentID string) error {
	t, err := f.store.GetTorrent(torrentID)
	if err != nil {
		return err
	}

	info, err := f.rd.GetTorrentInfo(t.RDTorrentID)
	if err != nil {
		return fmt.Errorf("fetching torrent info for download creation: %w", err)
	}
	if len(info.Links) == 0 {
		return fmt.Errorf("torrent %s has no links yet", torrentID)
	}

	var selected []realdebrid.File
	for _, file := range info.Files {
		if file.Selected == 1 {
			selected = append(selected, file)
		}
	}
	if len(selected) == 0 {
		selected = info.Files
	}
	if len(selected) != len(info.Links) {
		f.logger.Warn().
			Str("torrent", torrentID).
			Int("selectedFiles", len(selected)).
			Int("links", len(info.Links)).
			Msg("selected file count does not match link count, zipping to the shorter length")
	}

	n := len(selected)
	if len(info.Links) < n {
		n = len(info.Links)
	}

	downloads := make([]*store.Download, 0, n)
	for i := 0; i < n; i++ {
		file := selected[i]
		link := info.Links[i]
		downloads = append(downloads, &store.Download{
			RDFileID:       file.ID,
			Filename:       filepath.Base(file.Path),
			RestrictedLink: &link,
			BytesTotal:     file.Bytes,
		})
	}

	return f.store.CreateDownloads(torrentID, downloads)
}

// UpdateError records an error message on the torrent without marking it
// terminal.
func (f *Torrents) UpdateError(torrentID string, message string) error {
	return f.store.UpdateTorrentFields(torrentID, map[string]interface{}{"error": &message})
}

// UpdateComplete marks the torrent terminal. An empty errMessage records a
// clean completion.
func (f *Torrents) UpdateComplete(torrentID string, errMessage string) error {
	now := time.Now()
	fields := map[string]interface{}{"completed": &now}
	if errMessage != "" {
		fields["error"] = &errMessage
	}
	return f.store.UpdateTorrentFields(torrentID, fields)
}

// Delete removes the torrent's remote Real-Debrid footprint, its local
// downloaded files, and/or its local database row, independently per flag.
func (f *Torrents) Delete(torrentID string, removeRemote, removeClient, removeFiles bool) error {
	t, err := f.store.GetTorrent(torrentID)
	if err != nil {
		return err
	}

	if removeRemote && t.RDTorrentID != "" {
		if err := f.rd.DeleteTorrent(t.RDTorrentID); err != nil {
			f.logger.Warn().Err(err).Str("torrent", torrentID).Msg("failed to delete real-debrid torrent")
		}
	}

	if removeFiles {
		f.removeLocalFiles(t)
	}

	if removeClient {
		return f.store.DeleteTorrent(torrentID)
	}
	return nil
}

// removeLocalFiles best-effort deletes every download's destination file on
// disk. Failures are logged, not returned: a missing file is not a reason
// to abandon the rest of the delete.
func (f *Torrents) removeLocalFiles(t *store.Torrent) {
	downloadPath := f.cfg.DownloadPath
	if cat := strings.ToLower(t.Category); cat != "" {
		downloadPath = filepath.Join(downloadPath, cat)
	}
	for _, d := range t.Downloads {
		if d.Filename == "" {
			continue
		}
		path := filepath.Join(downloadPath, d.Filename)
		if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
			f.logger.Warn().Err(err).Str("path", path).Msg("failed to remove local file")
		}
	}
}

// RunTorrentComplete is a best-effort post-completion hook. Media-library
// enrichment (Sonarr/Radarr/etc.) is peripheral and out of scope; this hook
// exists so a future integration has a single call site to attach to.
func (f *Torrents) RunTorrentComplete(torrentID string) error {
	f.logger.Info().Str("torrent", torrentID).Msg("torrent complete")
	return nil
}
