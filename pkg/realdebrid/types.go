package realdebrid

import "time"

// types.go contains Real-Debrid API wire models and the raw-status mapping.

// Status is the normalized remote status of a torrent, independent of the
// exact string Real-Debrid happens to report.
type Status string

const (
	StatusQueued                  Status = "queued"
	StatusDownloading             Status = "downloading"
	StatusWaitingForFileSelection Status = "waiting_for_file_selection"
	StatusFinished                Status = "finished"
	StatusError                   Status = "error"
)

// ParseStatus maps a raw Real-Debrid status string onto the normalized set
// the reconciler switches on. Unknown values map to StatusDownloading so an
// unrecognized-but-transient remote state doesn't get treated as terminal.
func ParseStatus(raw string) Status {
	switch raw {
	case "magnet_error", "error", "virus", "dead":
		return StatusError
	case "waiting_files_selection":
		return StatusWaitingForFileSelection
	case "downloaded":
		return StatusFinished
	case "magnet_conversion", "queued":
		return StatusQueued
	default:
		return StatusDownloading
	}
}

// File represents a file within a torrent
type File struct {
	ID       int    `json:"id"`
	Path     string `json:"path"`
	Bytes    int64  `json:"bytes"`
	Selected int    `json:"selected"`
}

// TorrentInfo represents detailed torrent information from /torrents/info/{id}
type TorrentInfo struct {
	ID               string   `json:"id"`
	Filename         string   `json:"filename"`
	OriginalFilename string   `json:"original_filename"`
	Hash             string   `json:"hash"`
	Bytes            int64    `json:"bytes"`
	OriginalBytes    int64    `json:"original_bytes"`
	Host             string   `json:"host"`
	Split            int      `json:"split"`
	Progress         float64  `json:"progress"`
	Status           string   `json:"status"`
	Added            string   `json:"added"`
	Files            []File   `json:"files"`
	Links            []string `json:"links"`
	Ended            string   `json:"ended,omitempty"`
	Speed            int64    `json:"speed,omitempty"`
	Seeders          int      `json:"seeders,omitempty"`
}

// NormalizedStatus returns the normalized Status for this torrent snapshot.
func (t *TorrentInfo) NormalizedStatus() Status {
	return ParseStatus(t.Status)
}

// AddedAt parses the Added field, falling back to the zero time.
func (t *TorrentInfo) AddedAt() time.Time {
	ts, err := time.Parse(time.RFC3339, t.Added)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// AddMagnetResponse is the response from POST /torrents/addMagnet
type AddMagnetResponse struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

// UnrestrictResponse is the response from POST /unrestrict/link
type UnrestrictResponse struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	MimeType   string `json:"mimeType"`
	Filesize   int64  `json:"filesize"`
	Link       string `json:"link"`
	Host       string `json:"host"`
	Chunks     int    `json:"chunks"`
	Crc        int    `json:"crc"`
	Download   string `json:"download"`
	Streamable int    `json:"streamable"`
}

// ErrorResponse is the error response from Real-Debrid API
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode int    `json:"error_code"`
}
