package runner

import (
	"fmt"
	"time"

	"github.com/haldane-labs/torrentrunner/internal/logger"
	"github.com/haldane-labs/torrentrunner/pkg/store"
	"github.com/rs/zerolog"
)

// reconciler.go implements the per-torrent state machine: retries,
// lifetime expiry, file selection, download creation, work starting, and
// completion. Steps run in order for each torrent; any step may
// short-circuit the remaining steps for that torrent only. Error-TTL
// deletion also lives here but runs from the tick's own retention pass
// over errored-terminal torrents, which never reach Reconcile.

// TorrentReconciler runs the per-torrent step sequence for one torrent per
// call.
type TorrentReconciler struct {
	torrents TorrentsFacade
	starter  *WorkStarter
	logger   zerolog.Logger
}

// NewTorrentReconciler builds a TorrentReconciler.
func NewTorrentReconciler(torrents TorrentsFacade, starter *WorkStarter) *TorrentReconciler {
	return &TorrentReconciler{torrents: torrents, starter: starter, logger: logger.New("reconciler")}
}

// Reconcile runs every step for a single torrent. Any error it returns
// is a genuine failure; the caller (Tick) is responsible for recording it
// as the torrent's terminal error and moving on to the next torrent.
func (r *TorrentReconciler) Reconcile(t *store.Torrent) error {
	if err := r.stepRetry(t); err != nil {
		return err
	}
	if stop, err := r.stepLifetimeExpiry(t); stop || err != nil {
		return err
	}
	if stop, err := r.stepRemoteError(t); stop || err != nil {
		return err
	}
	if err := r.stepFileSelection(t); err != nil {
		return err
	}
	if err := r.stepCreateDownloads(t); err != nil {
		return err
	}

	if err := r.starter.StartDownloads(t); err != nil {
		return err
	}
	if err := r.starter.StartUnpacks(t); err != nil {
		return err
	}

	return r.stepAggregateProgress(t)
}

// stepRetry handles an explicit retry request.
func (r *TorrentReconciler) stepRetry(t *store.Torrent) error {
	if !t.RetryRequested {
		return nil
	}

	if t.RetryCount > t.TorrentRetryAttempts {
		return r.torrents.UpdateRetry(t.ID, false, t.RetryCount)
	}

	return r.torrents.RetryTorrent(t.ID, t.RetryCount)
}

// pruneErrorTTL deletes an errored-terminal torrent once its
// delete-on-error window has elapsed. Reconcile only ever sees
// non-completed torrents, so the tick invokes this separately for each
// torrent GetErroredTerminal reports.
func (r *TorrentReconciler) pruneErrorTTL(t *store.Torrent) (bool, error) {
	if t.Error == nil || t.DeleteOnErrorMinutes <= 0 || t.Completed == nil {
		return false, nil
	}

	deadline := t.Completed.Add(time.Duration(t.DeleteOnErrorMinutes) * time.Minute)
	if time.Now().Before(deadline) {
		return false, nil
	}

	if err := r.torrents.Delete(t.ID, true, true, true); err != nil {
		return true, err
	}
	return true, nil
}

// stepLifetimeExpiry expires a torrent that never produced downloads
// within its lifetime window, burning its retry budget so nothing
// resurrects it.
func (r *TorrentReconciler) stepLifetimeExpiry(t *store.Torrent) (bool, error) {
	if len(t.Downloads) != 0 || t.Completed != nil || t.LifetimeMinutes <= 0 {
		return false, nil
	}

	deadline := t.Added.Add(time.Duration(t.LifetimeMinutes) * time.Minute)
	if time.Now().Before(deadline) {
		return false, nil
	}

	if err := r.torrents.UpdateRetry(t.ID, false, t.TorrentRetryAttempts); err != nil {
		return true, err
	}
	msg := fmt.Sprintf("Torrent lifetime of %d minutes reached", t.LifetimeMinutes)
	if err := r.torrents.UpdateComplete(t.ID, msg); err != nil {
		return true, err
	}
	return true, nil
}

// stepRemoteError terminates a torrent Real-Debrid reports as errored.
func (r *TorrentReconciler) stepRemoteError(t *store.Torrent) (bool, error) {
	if t.RDStatus != "error" {
		return false, nil
	}
	msg := t.RawRDStatus
	if msg == "" {
		msg = t.RDStatus
	}
	if err := r.torrents.UpdateComplete(t.ID, msg); err != nil {
		return true, err
	}
	return true, nil
}

// stepFileSelection selects files remotely once the torrent is waiting on
// it, exactly once.
func (r *TorrentReconciler) stepFileSelection(t *store.Torrent) error {
	waitingOrFinished := t.RDStatus == "waiting_for_file_selection" || t.RDStatus == "finished"
	if !waitingOrFinished || t.FilesSelected != nil || len(t.Downloads) != 0 {
		return nil
	}

	if err := r.torrents.SelectFiles(t.ID); err != nil {
		return err
	}
	return r.torrents.UpdateFilesSelected(t.ID)
}

// stepCreateDownloads materializes download rows for a remotely-finished
// torrent whose files have been selected.
func (r *TorrentReconciler) stepCreateDownloads(t *store.Torrent) error {
	if t.RDStatus != "finished" || len(t.Downloads) != 0 || t.FilesSelected == nil {
		return nil
	}
	if t.HostDownloadAction != store.HostDownloadAll {
		return nil
	}
	return r.torrents.CreateDownloads(t.ID)
}

// stepAggregateProgress rolls child download state up to the torrent: once
// every child has completed, the torrent completes and its finished-action
// runs.
func (r *TorrentReconciler) stepAggregateProgress(t *store.Torrent) error {
	downloadNoneFinished := t.RDStatus == "finished" && t.HostDownloadAction == store.HostDownloadNone
	if len(t.Downloads) == 0 && !downloadNoneFinished {
		return nil
	}

	completeCount := 0
	var totalBytes, doneBytes int64
	for _, d := range t.Downloads {
		if d.Completed != nil {
			completeCount++
		}
		totalBytes += d.BytesTotal
		doneBytes += d.BytesDone
	}

	if completeCount != len(t.Downloads) {
		if totalBytes > 0 {
			r.logger.Debug().
				Str("torrent", t.ID).
				Int("complete", completeCount).
				Int("total", len(t.Downloads)).
				Int64("pct", doneBytes*100/totalBytes).
				Msg("Torrent in progress")
		}
		return nil
	}

	if err := r.torrents.UpdateComplete(t.ID, ""); err != nil {
		return err
	}

	switch t.FinishedAction {
	case store.FinishedActionRemoveAllTorrents:
		if err := r.torrents.Delete(t.ID, true, true, false); err != nil {
			return err
		}
	case store.FinishedActionRemoveRealDebrid:
		if err := r.torrents.Delete(t.ID, false, true, false); err != nil {
			return err
		}
	case store.FinishedActionRemoveClient:
		if err := r.torrents.Delete(t.ID, true, false, false); err != nil {
			return err
		}
	}

	if err := r.torrents.RunTorrentComplete(t.ID); err != nil {
		r.logger.Error().Err(err).Str("torrent", t.ID).Msg("RunTorrentComplete failed")
	}

	return nil
}
