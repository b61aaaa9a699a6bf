// Package aria2worker implements a bulk-status-capable DownloadWorker over
// an Aria2c JSON-RPC endpoint, the backend AggregatedStatusPoller exists
// for: one TellAll per tick (aria2.tellActive, aria2.tellWaiting and
// aria2.tellStopped) instead of one aria2.tellStatus per running download.
package aria2worker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/haldane-labs/torrentrunner/internal/logger"
	"github.com/haldane-labs/torrentrunner/internal/request"
	"github.com/haldane-labs/torrentrunner/pkg/runner"
	"github.com/haldane-labs/torrentrunner/pkg/store"
	"github.com/rs/zerolog"
)

// rpcRequest is a JSON-RPC 2.0 envelope.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Backend is the Aria2c JSON-RPC client shared by every worker started
// against this backend. It implements runner.BulkStatusBackend.
type Backend struct {
	rpcURL string
	secret string
	client *request.Client
	logger zerolog.Logger
}

// NewBackend builds a Backend over rpcURL, authenticating with secret
// (empty disables the token).
func NewBackend(rpcURL, secret string) *Backend {
	return &Backend{
		rpcURL: rpcURL,
		secret: secret,
		client: request.New(
			request.WithMaxRetries(2),
			request.WithTimeout(10*time.Second),
		),
		logger: logger.New("aria2"),
	}
}

func (b *Backend) token() string {
	if b.secret == "" {
		return ""
	}
	return "token:" + b.secret
}

func (b *Backend) call(method string, params []interface{}) (json.RawMessage, error) {
	if tok := b.token(); tok != "" {
		params = append([]interface{}{tok}, params...)
	}

	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: "torrentrunner", Method: method, Params: params})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, b.rpcURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("aria2 rpc %s: %w", method, err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decoding aria2 rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("aria2 rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

// AddURI submits a download and returns the aria2-assigned GID.
func (b *Backend) AddURI(url string, downloadPath, filename string) (string, error) {
	options := map[string]interface{}{
		"dir": downloadPath,
	}
	if filename != "" {
		options["out"] = filename
	}

	result, err := b.call("aria2.addUri", []interface{}{[]string{url}, options})
	if err != nil {
		return "", err
	}

	var gid string
	if err := json.Unmarshal(result, &gid); err != nil {
		return "", fmt.Errorf("parsing addUri response: %w", err)
	}
	return gid, nil
}

// aria2Status is the subset of aria2.tellStatus/tellActive fields this
// backend cares about.
type aria2Status struct {
	GID             string `json:"gid"`
	Status          string `json:"status"`
	TotalLength     string `json:"totalLength"`
	CompletedLength string `json:"completedLength"`
	ErrorMessage    string `json:"errorMessage"`
}

// TellAll implements runner.BulkStatusBackend: one aggregated snapshot of
// active, waiting, and stopped downloads, keyed by GID, built from three RPC
// calls. A call that fails is logged and skipped, so the snapshot may be
// partial; TellAll itself never returns an error.
func (b *Backend) TellAll() (map[string]runner.BulkStatus, error) {
	out := make(map[string]runner.BulkStatus)

	for _, method := range []string{"aria2.tellActive", "aria2.tellWaiting", "aria2.tellStopped"} {
		params := []interface{}{}
		if method != "aria2.tellActive" {
			params = []interface{}{0, 1000}
		}

		result, err := b.call(method, params)
		if err != nil {
			b.logger.Warn().Err(err).Str("method", method).Msg("aria2 bulk query failed")
			continue
		}

		var statuses []aria2Status
		if err := json.Unmarshal(result, &statuses); err != nil {
			continue
		}

		for _, s := range statuses {
			total, _ := strconv.ParseInt(s.TotalLength, 10, 64)
			done, _ := strconv.ParseInt(s.CompletedLength, 10, 64)
			finished := s.Status == "complete" || s.Status == "error" || s.Status == "removed"
			out[s.GID] = runner.BulkStatus{
				RemoteID:   s.GID,
				Finished:   finished,
				Error:      s.ErrorMessage,
				BytesTotal: total,
				BytesDone:  done,
			}
		}
	}

	return out, nil
}

// Worker drives one file through aria2, consuming bulk status pushed by the
// AggregatedStatusPoller rather than polling itself.
type Worker struct {
	downloadID   string
	url          string
	downloadPath string
	filename     string
	backend      *Backend
	progress     interface {
		UpdateDownloadProgress(downloadID string, bytesDone, bytesTotal int64) error
	}

	mu       sync.Mutex
	gid      string
	finished bool
	errMsg   string
}

// Factory builds Workers for the aria2c backend, implementing
// runner.DownloadWorkerFactory.
type Factory struct {
	Backend  *Backend
	Progress interface {
		UpdateDownloadProgress(downloadID string, bytesDone, bytesTotal int64) error
	}
}

// NewFactory builds a Factory over a shared Backend.
func NewFactory(backend *Backend, progress interface {
	UpdateDownloadProgress(downloadID string, bytesDone, bytesTotal int64) error
}) *Factory {
	return &Factory{Backend: backend, Progress: progress}
}

// NewDownloadWorker implements runner.DownloadWorkerFactory.
func (f *Factory) NewDownloadWorker(d *store.Download, t *store.Torrent, downloadPath string) (runner.DownloadWorker, error) {
	if d.Link == nil {
		return nil, fmt.Errorf("download %s has no unrestricted link", d.ID)
	}
	return &Worker{
		downloadID:   d.ID,
		url:          *d.Link,
		downloadPath: downloadPath,
		filename:     filepath.Base(d.Filename),
		backend:      f.Backend,
		progress:     f.Progress,
	}, nil
}

// Start submits the download to aria2 and returns the assigned GID as the
// remote id.
func (w *Worker) Start() (string, error) {
	gid, err := w.backend.AddURI(w.url, w.downloadPath, w.filename)
	if err != nil {
		return "", err
	}
	w.mu.Lock()
	w.gid = gid
	w.mu.Unlock()
	return gid, nil
}

// Finished reports whether the last bulk-status push marked this worker's
// GID complete or errored.
func (w *Worker) Finished() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finished
}

// Error returns the terminal error message, or "" on a clean finish.
func (w *Worker) Error() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.errMsg
}

// Update implements runner.BulkCapable: the AggregatedStatusPoller pushes
// the full bulk result here once per tick and the worker picks out its own
// GID.
func (w *Worker) Update(bulkResult map[string]runner.BulkStatus) {
	w.mu.Lock()
	gid := w.gid
	w.mu.Unlock()
	if gid == "" {
		return
	}

	status, ok := bulkResult[gid]
	if !ok {
		return
	}

	if w.progress != nil {
		_ = w.progress.UpdateDownloadProgress(w.downloadID, status.BytesDone, status.BytesTotal)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if status.Finished {
		w.finished = true
		w.errMsg = status.Error
	}
}
