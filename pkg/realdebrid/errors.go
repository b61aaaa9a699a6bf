package realdebrid

import "errors"

// errors.go defines the sentinel and structured errors callers switch on.

// HTTPError carries a Real-Debrid API status code and a machine-readable
// code string so callers can branch on retryability without string-matching
// the message.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

var (
	// ErrTorrentNotFound is returned when /torrents/info/{id} 404s: the
	// remote torrent no longer exists.
	ErrTorrentNotFound = errors.New("realdebrid: torrent not found")

	// ErrHosterUnavailable is returned when the hoster serving a link has
	// removed the file or is otherwise permanently unreachable.
	ErrHosterUnavailable = errors.New("realdebrid: hoster unavailable")

	// ErrTrafficExceeded is returned when the account's traffic allowance
	// for a hoster has been exhausted.
	ErrTrafficExceeded = errors.New("realdebrid: traffic exceeded")
)
