package realdebrid

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	gourl "net/url"
	"strings"
)

// torrents.go wraps the Real-Debrid torrents endpoints.

// GetTorrents fetches all torrents with pagination (limit=100 to ensure
// links are returned). Status filtering is the caller's responsibility —
// the facade decides what a raw status means to the reconciler.
func (c *Client) GetTorrents() ([]*TorrentInfo, error) {
	c.logger.Debug().Msg("Fetching all torrents with pagination...")

	var all []*TorrentInfo
	page := 1
	limit := 100 // IMPORTANT: Must be 100 or less to get links

	for {
		url := fmt.Sprintf("%s/torrents?page=%d&limit=%d", c.Host, page, limit)
		req, _ := http.NewRequest(http.MethodGet, url, nil)

		resp, err := c.torrentsClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching torrents page %d: %w", page, err)
		}

		if resp.StatusCode == http.StatusNoContent {
			resp.Body.Close()
			break
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("API error on page %d: status %d", page, resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}

		var batch []*TorrentInfo
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, fmt.Errorf("parsing torrents: %w", err)
		}

		if len(batch) == 0 {
			break
		}

		all = append(all, batch...)
		c.logger.Debug().
			Int("page", page).
			Int("count", len(batch)).
			Int("total", len(all)).
			Msg("Fetched torrents page")

		if len(batch) < limit {
			break
		}

		page++

		// Safety limit
		if page > 1000 {
			c.logger.Warn().Msg("Safety limit reached (1000 pages)")
			break
		}
	}

	return all, nil
}

// GetTorrentInfo fetches detailed info for a specific torrent
func (c *Client) GetTorrentInfo(torrentID string) (*TorrentInfo, error) {
	url := fmt.Sprintf("%s/torrents/info/%s", c.Host, torrentID)
	req, _ := http.NewRequest(http.MethodGet, url, nil)

	resp, err := c.torrentsClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching torrent info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrTorrentNotFound
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var info TorrentInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("parsing torrent info: %w", err)
	}

	return &info, nil
}

// AddMagnet adds a magnet link to Real-Debrid and returns the new torrent id
func (c *Client) AddMagnet(hash string) (string, error) {
	magnet := fmt.Sprintf("magnet:?xt=urn:btih:%s", hash)

	url := fmt.Sprintf("%s/torrents/addMagnet", c.Host)
	payload := gourl.Values{
		"magnet": {magnet},
	}

	req, _ := http.NewRequest(http.MethodPost, url, strings.NewReader(payload.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.torrentsClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("adding magnet: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var result AddMagnetResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}

	c.logger.Info().Str("id", result.ID).Msg("Added magnet")
	return result.ID, nil
}

// SelectFiles selects specific files in a torrent for downloading
func (c *Client) SelectFiles(torrentID string, fileIDs []string) error {
	url := fmt.Sprintf("%s/torrents/selectFiles/%s", c.Host, torrentID)

	payload := gourl.Values{
		"files": {strings.Join(fileIDs, ",")},
	}

	req, _ := http.NewRequest(http.MethodPost, url, strings.NewReader(payload.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.torrentsClient.Do(req)
	if err != nil {
		return fmt.Errorf("selecting files: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	c.logger.Debug().
		Str("torrent", torrentID).
		Int("files", len(fileIDs)).
		Msg("Selected files")

	return nil
}

// SelectAllFiles selects every file Real-Debrid reports for the torrent.
// The facade's SelectFiles takes this path for every torrent, whatever its
// hostDownloadAction; callers that want a subset call SelectFiles directly.
func (c *Client) SelectAllFiles(torrentID string) error {
	info, err := c.GetTorrentInfo(torrentID)
	if err != nil {
		return err
	}

	if len(info.Files) == 0 {
		return fmt.Errorf("no files found in torrent")
	}

	ids := make([]string, 0, len(info.Files))
	for _, f := range info.Files {
		ids = append(ids, fmt.Sprintf("%d", f.ID))
	}

	return c.SelectFiles(torrentID, ids)
}

// DeleteTorrent deletes a torrent from Real-Debrid
func (c *Client) DeleteTorrent(torrentID string) error {
	url := fmt.Sprintf("%s/torrents/delete/%s", c.Host, torrentID)
	req, _ := http.NewRequest(http.MethodDelete, url, nil)

	resp, err := c.torrentsClient.Do(req)
	if err != nil {
		return fmt.Errorf("deleting torrent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	c.logger.Info().Str("id", torrentID).Msg("Deleted torrent")
	return nil
}
