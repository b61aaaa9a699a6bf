package facade

import (
	"time"

	"github.com/haldane-labs/torrentrunner/internal/logger"
	"github.com/haldane-labs/torrentrunner/pkg/store"
	"github.com/rs/zerolog"
)

// Downloads implements runner.DownloadsFacade: thin, single-field wrappers
// over the store. The core decides when each transition is legal; this
// layer only persists it.
type Downloads struct {
	store  *store.Store
	logger zerolog.Logger
}

// NewDownloads builds a Downloads facade.
func NewDownloads(st *store.Store) *Downloads {
	return &Downloads{store: st, logger: logger.New("facade")}
}

func (d *Downloads) stamp(downloadID, field string) error {
	now := time.Now()
	return d.store.UpdateDownloadFields(downloadID, map[string]interface{}{field: &now})
}

func (d *Downloads) UpdateDownloadStarted(downloadID string) error {
	return d.stamp(downloadID, "download_started")
}

func (d *Downloads) UpdateDownloadFinished(downloadID string) error {
	return d.stamp(downloadID, "download_finished")
}

func (d *Downloads) UpdateUnpackingQueued(downloadID string) error {
	return d.stamp(downloadID, "unpacking_queued")
}

// UpdateDownloadFinishedAndQueued stamps DownloadFinished and
// UnpackingQueued together in a single transaction, so the two can never be
// observed half-applied.
func (d *Downloads) UpdateDownloadFinishedAndQueued(downloadID string) error {
	return d.store.UpdateDownloadFinishedAndQueued(downloadID)
}

// UpdateUnpackSkipComplete stamps UnpackingStarted, UnpackingFinished, and
// Completed together in a single transaction, for a download whose
// extension never required an unpack worker.
func (d *Downloads) UpdateUnpackSkipComplete(downloadID string) error {
	return d.store.UpdateUnpackSkipComplete(downloadID)
}

func (d *Downloads) UpdateUnpackingStarted(downloadID string) error {
	return d.stamp(downloadID, "unpacking_started")
}

func (d *Downloads) UpdateUnpackingFinished(downloadID string) error {
	return d.stamp(downloadID, "unpacking_finished")
}

func (d *Downloads) UpdateCompleted(downloadID string) error {
	return d.stamp(downloadID, "completed")
}

func (d *Downloads) UpdateError(downloadID string, message string) error {
	return d.store.UpdateDownloadFields(downloadID, map[string]interface{}{"error": &message})
}

func (d *Downloads) UpdateRetryCount(downloadID string, count int) error {
	return d.store.UpdateDownloadFields(downloadID, map[string]interface{}{"retry_count": count})
}

// Reset clears a download's stage timestamps and error so the WorkStarter
// re-picks it on a later tick. DownloadQueued is left untouched: the
// download is still queued, it is the started/finished/error state that is
// being undone.
func (d *Downloads) Reset(downloadID string) error {
	return d.store.UpdateDownloadFields(downloadID, map[string]interface{}{
		"download_started":  nil,
		"download_finished": nil,
		"remote_id":         nil,
		"error":             nil,
	})
}

// ResetUnpackStart clears only UnpackingStarted, used by the Initializer to
// rewind an interrupted unpack without touching the download phase.
func (d *Downloads) ResetUnpackStart(downloadID string) error {
	return d.store.UpdateDownloadFields(downloadID, map[string]interface{}{"unpacking_started": nil})
}

func (d *Downloads) UpdateRemoteIDRange(remoteIDs map[string]string) error {
	return d.store.UpdateRemoteIDRange(remoteIDs)
}

func (d *Downloads) UpdateErrorInRange(errs map[string]string) error {
	return d.store.UpdateErrorInRange(errs)
}
