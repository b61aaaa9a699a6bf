package runner

import (
	"sync"

	"github.com/haldane-labs/torrentrunner/pkg/store"
)

// fakes_test.go provides the collaborator doubles every runner test builds
// on: no mocking framework, just small structs that record calls.

type deleteCall struct {
	torrentID                          string
	removeRemote, removeClient, removeFiles bool
}

type fakeTorrents struct {
	mu sync.Mutex

	torrents []*store.Torrent
	errored  []*store.Torrent
	getCalls int

	retried          []string
	retriesUpdated   []struct{ id string; retry bool; count int }
	selectedFiles    []string
	filesSelected    []string
	createdDownloads []string
	errorsSet        map[string]string
	completes        map[string]string
	deletes          []deleteCall
	completeHooks    []string

	unrestrictErr error
	unrestrictURL string
	unrestrictSz  int64
	selectErr     error
}

func newFakeTorrents() *fakeTorrents {
	return &fakeTorrents{
		errorsSet: make(map[string]string),
		completes: make(map[string]string),
	}
}

func (f *fakeTorrents) Get() ([]*store.Torrent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	return f.torrents, nil
}

func (f *fakeTorrents) GetErroredTerminal() ([]*store.Torrent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errored, nil
}

func (f *fakeTorrents) UnrestrictLink(downloadID string) (string, int64, error) {
	if f.unrestrictErr != nil {
		return "", 0, f.unrestrictErr
	}
	return f.unrestrictURL, f.unrestrictSz, nil
}

func (f *fakeTorrents) RetryTorrent(torrentID string, retryCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retried = append(f.retried, torrentID)
	return nil
}

func (f *fakeTorrents) UpdateRetry(torrentID string, retry bool, retryCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retriesUpdated = append(f.retriesUpdated, struct {
		id    string
		retry bool
		count int
	}{torrentID, retry, retryCount})
	return nil
}

func (f *fakeTorrents) SelectFiles(torrentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selectErr != nil {
		return f.selectErr
	}
	f.selectedFiles = append(f.selectedFiles, torrentID)
	return nil
}

func (f *fakeTorrents) UpdateFilesSelected(torrentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filesSelected = append(f.filesSelected, torrentID)
	return nil
}

func (f *fakeTorrents) CreateDownloads(torrentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdDownloads = append(f.createdDownloads, torrentID)
	return nil
}

func (f *fakeTorrents) UpdateError(torrentID string, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errorsSet[torrentID] = message
	return nil
}

func (f *fakeTorrents) UpdateComplete(torrentID string, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completes[torrentID] = errMessage
	return nil
}

func (f *fakeTorrents) Delete(torrentID string, removeRemote, removeClient, removeFiles bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, deleteCall{torrentID, removeRemote, removeClient, removeFiles})
	return nil
}

func (f *fakeTorrents) RunTorrentComplete(torrentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeHooks = append(f.completeHooks, torrentID)
	return nil
}

type fakeDownloads struct {
	mu sync.Mutex

	started, finished                     []string
	unpackQueued, unpackStarted, unpackFin []string
	completed                              []string
	errors                                 map[string]string
	retryCounts                            map[string]int
	resets                                 []string
	unpackResets                           []string
	remoteIDRanges                         []map[string]string
	errorRanges                            []map[string]string
	finishedAndQueued                      []string
	unpackSkipComplete                     []string
}

func newFakeDownloads() *fakeDownloads {
	return &fakeDownloads{
		errors:      make(map[string]string),
		retryCounts: make(map[string]int),
	}
}

func (f *fakeDownloads) UpdateDownloadStarted(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
	return nil
}
func (f *fakeDownloads) UpdateDownloadFinished(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, id)
	return nil
}
func (f *fakeDownloads) UpdateUnpackingQueued(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unpackQueued = append(f.unpackQueued, id)
	return nil
}
func (f *fakeDownloads) UpdateUnpackingStarted(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unpackStarted = append(f.unpackStarted, id)
	return nil
}
func (f *fakeDownloads) UpdateUnpackingFinished(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unpackFin = append(f.unpackFin, id)
	return nil
}
func (f *fakeDownloads) UpdateError(id string, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[id] = message
	return nil
}
func (f *fakeDownloads) UpdateCompleted(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, id)
	return nil
}
func (f *fakeDownloads) UpdateRetryCount(id string, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retryCounts[id] = count
	return nil
}
func (f *fakeDownloads) Reset(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, id)
	return nil
}
func (f *fakeDownloads) ResetUnpackStart(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unpackResets = append(f.unpackResets, id)
	return nil
}
func (f *fakeDownloads) UpdateDownloadFinishedAndQueued(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finishedAndQueued = append(f.finishedAndQueued, id)
	return nil
}
func (f *fakeDownloads) UpdateUnpackSkipComplete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unpackSkipComplete = append(f.unpackSkipComplete, id)
	return nil
}
func (f *fakeDownloads) UpdateRemoteIDRange(m map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remoteIDRanges = append(f.remoteIDRanges, m)
	return nil
}
func (f *fakeDownloads) UpdateErrorInRange(m map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errorRanges = append(f.errorRanges, m)
	return nil
}

// fakeDownloadWorker is a scripted DownloadWorker: Finished/Error are set
// directly by the test before the sweeper observes it.
type fakeDownloadWorker struct {
	mu        sync.Mutex
	finished  bool
	errMsg    string
	startErr  error
	remoteID  string
	startedCh chan struct{}
}

func (w *fakeDownloadWorker) Start() (string, error) {
	if w.startedCh != nil {
		close(w.startedCh)
	}
	return w.remoteID, w.startErr
}
func (w *fakeDownloadWorker) Finished() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finished
}
func (w *fakeDownloadWorker) Error() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.errMsg
}
func (w *fakeDownloadWorker) setFinished(errMsg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.finished = true
	w.errMsg = errMsg
}

type fakeUnpackWorker struct {
	mu       sync.Mutex
	finished bool
	errMsg   string
}

func (w *fakeUnpackWorker) Start() error { return nil }
func (w *fakeUnpackWorker) Finished() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finished
}
func (w *fakeUnpackWorker) Error() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.errMsg
}
func (w *fakeUnpackWorker) setFinished(errMsg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.finished = true
	w.errMsg = errMsg
}

// fakeDownloadFactory hands out a fresh fakeDownloadWorker per call and
// records how many times it was asked, so tests can assert cap enforcement.
type fakeDownloadFactory struct {
	mu      sync.Mutex
	built   []*fakeDownloadWorker
	failNew error
}

func (f *fakeDownloadFactory) NewDownloadWorker(d *store.Download, t *store.Torrent, downloadPath string) (DownloadWorker, error) {
	if f.failNew != nil {
		return nil, f.failNew
	}
	w := &fakeDownloadWorker{}
	f.mu.Lock()
	f.built = append(f.built, w)
	f.mu.Unlock()
	return w, nil
}

type fakeUnpackFactory struct {
	mu    sync.Mutex
	built []*fakeUnpackWorker
}

func (f *fakeUnpackFactory) NewUnpackWorker(d *store.Download, t *store.Torrent) (UnpackWorker, error) {
	w := &fakeUnpackWorker{}
	f.mu.Lock()
	f.built = append(f.built, w)
	f.mu.Unlock()
	return w, nil
}
