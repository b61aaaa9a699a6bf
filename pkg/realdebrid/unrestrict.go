package realdebrid

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	gourl "net/url"
	"strings"
)

// unrestrict.go converts a restricted Real-Debrid share link into a direct
// download URL. c.generalClient already retries 429/502/503 internally
// (WithMaxRetries(5), WithRetryableStatus(429, 502, 503) in client.go) with
// its own exponential backoff, so by the time Do returns a 503 or 429 here
// the client has already exhausted those retries. This function does not
// retry again — it classifies the outcome so the facade can decide between
// "queue for next tick" (503) and "terminal" (429, and everything else).
func (c *Client) UnrestrictLink(link string) (string, int64, error) {
	url := fmt.Sprintf("%s/unrestrict/link", c.Host)

	payload := gourl.Values{
		"link": {link},
	}

	req, _ := http.NewRequest(http.MethodPost, url, strings.NewReader(payload.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.generalClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("unrestricting link: %w", err)
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return "", 0, fmt.Errorf("reading response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var result UnrestrictResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return "", 0, fmt.Errorf("parsing response: %w", err)
		}

		if result.Download == "" {
			return "", 0, fmt.Errorf("no download link in response")
		}

		c.logger.Debug().
			Str("filename", result.Filename).
			Int64("size", result.Filesize).
			Msg("Unrestricted link")

		return result.Download, result.Filesize, nil

	case http.StatusServiceUnavailable:
		c.logger.Warn().Msg("Server unavailable (503) after retries, will queue for next cycle")
		return "", 0, &HTTPError{
			StatusCode: http.StatusServiceUnavailable,
			Message:    "server unavailable after retries",
			Code:       "server_unavailable_retryable",
		}

	case http.StatusTooManyRequests:
		c.logger.Error().Msg("Rate limit exceeded after retries")
		return "", 0, &HTTPError{
			StatusCode: http.StatusTooManyRequests,
			Message:    "rate limit exceeded",
			Code:       "rate_limit_exceeded",
		}

	default:
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil {
			return "", 0, c.mapErrorCode(errResp.ErrorCode, errResp.Error)
		}
		return "", 0, fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, string(body))
	}
}

// IsQueueableError reports whether err is the retryable-503 sentinel that
// should make the facade requeue the download rather than mark it terminal.
func IsQueueableError(err error) bool {
	httpErr, ok := err.(*HTTPError)
	return ok && httpErr.Code == "server_unavailable_retryable"
}

// mapErrorCode maps Real-Debrid error codes to appropriate errors
func (c *Client) mapErrorCode(code int, message string) error {
	switch code {
	case 19, 24, 35:
		// File removed / link nerfed / hoster unavailable
		return ErrHosterUnavailable
	case 23, 34, 36:
		// Traffic exceeded variants
		return ErrTrafficExceeded
	default:
		return fmt.Errorf("real-debrid error %d: %s", code, message)
	}
}

