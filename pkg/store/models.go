package store

import "time"

// models.go defines the gorm schema for torrents and their child downloads.

// FinishedAction selects what the reconciler's completion step does to a
// torrent's remote and local footprint once every child download has
// completed.
type FinishedAction string

const (
	FinishedActionNone              FinishedAction = "none"
	FinishedActionRemoveAllTorrents FinishedAction = "remove_all_torrents"
	FinishedActionRemoveRealDebrid  FinishedAction = "remove_realdebrid"
	FinishedActionRemoveClient      FinishedAction = "remove_client"
)

// HostDownloadAction controls whether the reconciler creates local Download
// rows for a torrent's selected files at all.
type HostDownloadAction string

const (
	HostDownloadAll  HostDownloadAction = "download_all"
	HostDownloadNone HostDownloadAction = "download_none"
)

// Torrent is one user-submitted item tracked through its remote + local
// lifecycle. The core only mutates status fields here; rows are created and
// destroyed by the facade.
type Torrent struct {
	ID       string `gorm:"primaryKey" json:"id"`
	Hash     string `gorm:"index" json:"hash"`
	Filename string `json:"filename"`
	Category string `json:"category"`

	// RDTorrentID is the current Real-Debrid side identifier for this
	// torrent, separate from the local ID. A retry re-submits the magnet
	// and replaces it with the new remote id; local identity (ID, and
	// every Download's TorrentID) never changes.
	RDTorrentID string `gorm:"index" json:"rd_torrent_id"`

	RDStatus string `gorm:"index" json:"rd_status"`

	// RawRDStatus is the exact status string Real-Debrid last reported,
	// before ParseStatus collapses it onto the normalized set. Several raw
	// values ("magnet_error", "virus", "dead") all normalize to "error";
	// this field is what lets a terminal-error torrent say which one.
	RawRDStatus string `json:"raw_rd_status"`

	Added         time.Time  `json:"added"`
	FilesSelected *time.Time `json:"files_selected,omitempty"`
	Completed     *time.Time `json:"completed,omitempty"`

	RetryRequested bool `json:"retry_requested"`
	RetryCount     int  `json:"retry_count"`

	TorrentRetryAttempts  int `gorm:"default:3" json:"torrent_retry_attempts"`
	DownloadRetryAttempts int `gorm:"default:3" json:"download_retry_attempts"`

	LifetimeMinutes      int `json:"lifetime_minutes"`
	DeleteOnErrorMinutes int `json:"delete_on_error_minutes"`

	FinishedAction     FinishedAction     `gorm:"default:none" json:"finished_action"`
	HostDownloadAction HostDownloadAction `gorm:"default:download_all" json:"host_download_action"`

	Error *string `json:"error,omitempty"`

	Downloads []Download `gorm:"foreignKey:TorrentID" json:"downloads,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Torrent
func (Torrent) TableName() string {
	return "torrents"
}

// Download is one restricted-link fetch to local storage, with an optional
// unpack stage. Rows are created once by CreateDownloads; the core mutates
// stage fields only.
type Download struct {
	ID        string `gorm:"primaryKey" json:"id"`
	TorrentID string `gorm:"index" json:"torrent_id"`

	RDFileID int    `json:"rd_file_id"`
	Filename string `json:"filename"`

	// RestrictedLink is the share link Real-Debrid reports for this file
	// at CreateDownloads time. Link is the unrestricted direct-download
	// URL resolved lazily from it by WorkStarter.
	RestrictedLink *string `json:"restricted_link,omitempty"`
	Link           *string `json:"link,omitempty"`
	RemoteID       *string `json:"remote_id,omitempty"`

	DownloadQueued    *time.Time `json:"download_queued,omitempty"`
	DownloadStarted   *time.Time `json:"download_started,omitempty"`
	DownloadFinished  *time.Time `json:"download_finished,omitempty"`
	UnpackingQueued   *time.Time `json:"unpacking_queued,omitempty"`
	UnpackingStarted  *time.Time `json:"unpacking_started,omitempty"`
	UnpackingFinished *time.Time `json:"unpacking_finished,omitempty"`
	Completed         *time.Time `json:"completed,omitempty"`

	Error *string `json:"error,omitempty"`

	BytesTotal int64 `json:"bytes_total"`
	BytesDone  int64 `json:"bytes_done"`

	RetryCount int `json:"retry_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Download
func (Download) TableName() string {
	return "downloads"
}
