package runner

import (
	"errors"

	"github.com/haldane-labs/torrentrunner/pkg/store"
)

// interfaces.go names the external collaborators Tick consumes. Concrete
// implementations live in pkg/facade, pkg/worker, and pkg/progress; the
// core only ever depends on these shapes.

// ErrLinkUnavailable is returned (wrapped) by TorrentsFacade.UnrestrictLink
// when the provider is transiently unable to issue a link. The download is
// left queued and picked up again on a later tick instead of being marked
// terminal.
var ErrLinkUnavailable = errors.New("link temporarily unavailable")

// TorrentsFacade is the collaborator responsible for torrent-level remote
// operations and the torrent row itself.
type TorrentsFacade interface {
	// Get returns every non-completed torrent, downloads preloaded.
	Get() ([]*store.Torrent, error)

	// GetErroredTerminal returns completed torrents that ended in error
	// and carry a positive delete-on-error window, for retention pruning.
	GetErroredTerminal() ([]*store.Torrent, error)

	// UnrestrictLink resolves a download's restricted share link into a
	// direct URL plus its reported size.
	UnrestrictLink(downloadID string) (url string, size int64, err error)

	// RetryTorrent increments the torrent's retry count and re-submits it
	// remotely (e.g. re-adding the magnet). Incrementing is the facade's
	// responsibility, not the reconciler's.
	RetryTorrent(torrentID string, retryCount int) error

	UpdateRetry(torrentID string, retry bool, retryCount int) error
	SelectFiles(torrentID string) error
	UpdateFilesSelected(torrentID string) error
	CreateDownloads(torrentID string) error
	UpdateError(torrentID string, message string) error

	// UpdateComplete marks a torrent terminal. errMessage is empty for a
	// clean completion.
	UpdateComplete(torrentID string, errMessage string) error

	Delete(torrentID string, removeRemote, removeClient, removeFiles bool) error

	// RunTorrentComplete is a best-effort post-completion hook; its errors
	// are logged but never fail the torrent.
	RunTorrentComplete(torrentID string) error
}

// DownloadsFacade is the collaborator responsible for download-row
// mutations. Every method is a thin wrapper over the store.
type DownloadsFacade interface {
	UpdateDownloadStarted(downloadID string) error
	UpdateDownloadFinished(downloadID string) error
	UpdateUnpackingQueued(downloadID string) error
	UpdateUnpackingStarted(downloadID string) error
	UpdateUnpackingFinished(downloadID string) error
	UpdateError(downloadID string, message string) error
	UpdateCompleted(downloadID string) error
	UpdateRetryCount(downloadID string, count int) error

	// UpdateDownloadFinishedAndQueued atomically advances a download from
	// the download phase into the unpack phase.
	UpdateDownloadFinishedAndQueued(downloadID string) error

	// UpdateUnpackSkipComplete atomically marks a download whose extension
	// never required extraction as unpacked and complete.
	UpdateUnpackSkipComplete(downloadID string) error

	// Reset clears a download's stage timestamps and error so it is
	// re-picked by the WorkStarter on a later tick.
	Reset(downloadID string) error

	// ResetUnpackStart clears only UnpackingStarted, used by the
	// Initializer to rewind an interrupted unpack without touching the
	// download phase.
	ResetUnpackStart(downloadID string) error

	UpdateRemoteIDRange(remoteIDs map[string]string) error
	UpdateErrorInRange(errs map[string]string) error
}

// DownloadWorker drives a single download to completion outside the tick's
// thread of control. The tick observes it only through Finished/Error.
type DownloadWorker interface {
	// Start begins the transfer and returns the backend-assigned remote id.
	// The WorkStarter registers the worker as running before calling Start.
	Start() (remoteID string, err error)
	Finished() bool
	Error() string
}

// BulkCapable is implemented by DownloadWorker backends whose remote side
// supports a single aggregated status query (Aria2c-style). The
// AggregatedStatusPoller dispatches only to workers implementing this.
type BulkCapable interface {
	Update(bulkResult map[string]BulkStatus)
}

// BulkStatus is one entry of an aggregated bulk-status response.
type BulkStatus struct {
	RemoteID   string
	Finished   bool
	Error      string
	BytesTotal int64
	BytesDone  int64
}

// BulkStatusBackend is the bulk-status endpoint a subset of DownloadWorker
// backends expose.
type BulkStatusBackend interface {
	TellAll() (map[string]BulkStatus, error)
}

// UnpackWorker extracts a completed download's archive outside the tick's
// thread of control.
type UnpackWorker interface {
	Start() error
	Finished() bool
	Error() string
}

// DownloadWorkerFactory builds a DownloadWorker for a queued download.
type DownloadWorkerFactory interface {
	NewDownloadWorker(d *store.Download, t *store.Torrent, downloadPath string) (DownloadWorker, error)
}

// UnpackWorkerFactory builds an UnpackWorker for a finished download whose
// extension requires extraction.
type UnpackWorkerFactory interface {
	NewUnpackWorker(d *store.Download, t *store.Torrent) (UnpackWorker, error)
}

// RemoteProgressReporter receives an end-of-tick push of current state.
// Update is idempotent.
type RemoteProgressReporter interface {
	Update(torrents []*store.Torrent) error
}
