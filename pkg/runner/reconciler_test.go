package runner

import (
	"testing"
	"time"

	"github.com/haldane-labs/torrentrunner/internal/config"
	"github.com/haldane-labs/torrentrunner/pkg/store"
)

// reconciler_test.go exercises TorrentReconciler.Reconcile step by step,
// without going through a live store: each test builds a store.Torrent by
// hand and inspects the fake TorrentsFacade it drove.

func newTestReconciler(torrents *fakeTorrents) *TorrentReconciler {
	downloads := newFakeDownloads()
	registry := NewActiveWorkerRegistry()
	cfg := &config.Config{DownloadLimit: 5, UnpackLimit: 2, DownloadPath: "/tmp/downloads"}
	starter := NewWorkStarter(torrents, downloads, registry, &fakeDownloadFactory{}, &fakeUnpackFactory{}, cfg)
	return NewTorrentReconciler(torrents, starter)
}

func TestReconcileRetryWithinCapRetriesRemotely(t *testing.T) {
	torrents := newFakeTorrents()
	r := newTestReconciler(torrents)

	tor := &store.Torrent{ID: "t1", RetryRequested: true, RetryCount: 1, TorrentRetryAttempts: 3, Added: time.Now()}
	if err := r.Reconcile(tor); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(torrents.retried) != 1 || torrents.retried[0] != "t1" {
		t.Fatalf("expected RetryTorrent to be called once for t1, got %v", torrents.retried)
	}
	if len(torrents.retriesUpdated) != 0 {
		t.Fatalf("expected UpdateRetry not to be called when within cap")
	}
}

func TestReconcileRetryBeyondCapGivesUp(t *testing.T) {
	torrents := newFakeTorrents()
	r := newTestReconciler(torrents)

	tor := &store.Torrent{ID: "t1", RetryRequested: true, RetryCount: 4, TorrentRetryAttempts: 3, Added: time.Now()}
	if err := r.Reconcile(tor); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(torrents.retried) != 0 {
		t.Fatalf("expected RetryTorrent not to be called beyond cap")
	}
	if len(torrents.retriesUpdated) != 1 || torrents.retriesUpdated[0].retry != false {
		t.Fatalf("expected UpdateRetry(false) once cap exceeded, got %v", torrents.retriesUpdated)
	}
}

func TestPruneErrorTTLDeletesAfterDeadline(t *testing.T) {
	torrents := newFakeTorrents()
	r := newTestReconciler(torrents)

	errMsg := "boom"
	completed := time.Now().Add(-10 * time.Minute)
	tor := &store.Torrent{
		ID: "t1", Error: &errMsg, DeleteOnErrorMinutes: 5, Completed: &completed, Added: time.Now(),
	}

	pruned, err := r.pruneErrorTTL(tor)
	if err != nil {
		t.Fatalf("pruneErrorTTL: %v", err)
	}
	if !pruned {
		t.Fatalf("expected the torrent to be pruned once the TTL elapsed")
	}
	if len(torrents.deletes) != 1 {
		t.Fatalf("expected one Delete call, got %d", len(torrents.deletes))
	}
	d := torrents.deletes[0]
	if !d.removeRemote || !d.removeClient || !d.removeFiles {
		t.Fatalf("expected error-TTL delete to remove everything, got %+v", d)
	}
}

func TestPruneErrorTTLNotYetExpired(t *testing.T) {
	torrents := newFakeTorrents()
	r := newTestReconciler(torrents)

	errMsg := "boom"
	completed := time.Now().Add(-1 * time.Minute)
	tor := &store.Torrent{
		ID: "t1", Error: &errMsg, DeleteOnErrorMinutes: 30, Completed: &completed, Added: time.Now(),
	}

	pruned, err := r.pruneErrorTTL(tor)
	if err != nil {
		t.Fatalf("pruneErrorTTL: %v", err)
	}
	if pruned {
		t.Fatalf("expected no prune before the TTL deadline")
	}
	if len(torrents.deletes) != 0 {
		t.Fatalf("expected no delete before the TTL deadline, got %d", len(torrents.deletes))
	}
}

func TestReconcileLifetimeExpiryCompletesWithMessage(t *testing.T) {
	torrents := newFakeTorrents()
	r := newTestReconciler(torrents)

	added := time.Now().Add(-100 * time.Minute)
	tor := &store.Torrent{ID: "t1", LifetimeMinutes: 60, Added: added, TorrentRetryAttempts: 3}
	if err := r.Reconcile(tor); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	msg, ok := torrents.completes["t1"]
	if !ok {
		t.Fatalf("expected UpdateComplete to be called for t1")
	}
	want := "Torrent lifetime of 60 minutes reached"
	if msg != want {
		t.Fatalf("expected message %q, got %q", want, msg)
	}
	if len(torrents.retriesUpdated) != 1 || torrents.retriesUpdated[0].retry != false {
		t.Fatalf("expected retries to be disabled before expiring, got %v", torrents.retriesUpdated)
	}
}

func TestReconcileLifetimeExpirySkippedWithDownloads(t *testing.T) {
	torrents := newFakeTorrents()
	r := newTestReconciler(torrents)

	added := time.Now().Add(-100 * time.Minute)
	tor := &store.Torrent{
		ID: "t1", LifetimeMinutes: 60, Added: added,
		Downloads: []store.Download{{ID: "d1"}},
	}
	if err := r.Reconcile(tor); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if _, ok := torrents.completes["t1"]; ok {
		t.Fatalf("expected lifetime expiry to be skipped once downloads exist")
	}
}

func TestReconcileRemoteErrorShortCircuits(t *testing.T) {
	torrents := newFakeTorrents()
	r := newTestReconciler(torrents)

	tor := &store.Torrent{ID: "t1", RDStatus: "error", Added: time.Now()}
	if err := r.Reconcile(tor); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if torrents.completes["t1"] != "error" {
		t.Fatalf("expected UpdateComplete with the remote status, got %q", torrents.completes["t1"])
	}
	if len(torrents.selectedFiles) != 0 {
		t.Fatalf("expected file selection to be skipped after a remote error")
	}
}

func TestReconcileRemoteErrorPrefersRawStatus(t *testing.T) {
	torrents := newFakeTorrents()
	r := newTestReconciler(torrents)

	tor := &store.Torrent{ID: "t1", RDStatus: "error", RawRDStatus: "virus", Added: time.Now()}
	if err := r.Reconcile(tor); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if torrents.completes["t1"] != "virus" {
		t.Fatalf("expected UpdateComplete to carry the raw remote reason, got %q", torrents.completes["t1"])
	}
}

func TestReconcileSelectsFilesWhenWaiting(t *testing.T) {
	torrents := newFakeTorrents()
	r := newTestReconciler(torrents)

	tor := &store.Torrent{ID: "t1", RDStatus: "waiting_for_file_selection", Added: time.Now()}
	if err := r.Reconcile(tor); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(torrents.selectedFiles) != 1 || torrents.selectedFiles[0] != "t1" {
		t.Fatalf("expected SelectFiles to be called once, got %v", torrents.selectedFiles)
	}
	if len(torrents.filesSelected) != 1 {
		t.Fatalf("expected UpdateFilesSelected to follow SelectFiles")
	}
}

func TestReconcileSkipsFileSelectionWhenAlreadyDone(t *testing.T) {
	torrents := newFakeTorrents()
	r := newTestReconciler(torrents)

	now := time.Now()
	tor := &store.Torrent{ID: "t1", RDStatus: "finished", FilesSelected: &now, Added: time.Now()}
	if err := r.Reconcile(tor); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(torrents.selectedFiles) != 0 {
		t.Fatalf("expected SelectFiles not to be called once FilesSelected is stamped")
	}
}

func TestReconcileCreatesDownloadsOnceFilesSelected(t *testing.T) {
	torrents := newFakeTorrents()
	r := newTestReconciler(torrents)

	now := time.Now()
	tor := &store.Torrent{
		ID: "t1", RDStatus: "finished", FilesSelected: &now, Added: time.Now(),
		HostDownloadAction: store.HostDownloadAll,
	}
	if err := r.Reconcile(tor); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(torrents.createdDownloads) != 1 || torrents.createdDownloads[0] != "t1" {
		t.Fatalf("expected CreateDownloads to be called once, got %v", torrents.createdDownloads)
	}
}

func TestReconcileSkipsDownloadCreationWhenHostDownloadNone(t *testing.T) {
	torrents := newFakeTorrents()
	r := newTestReconciler(torrents)

	now := time.Now()
	tor := &store.Torrent{
		ID: "t1", RDStatus: "finished", FilesSelected: &now, Added: time.Now(),
		HostDownloadAction: store.HostDownloadNone,
	}
	if err := r.Reconcile(tor); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(torrents.createdDownloads) != 0 {
		t.Fatalf("expected CreateDownloads to be skipped for HostDownloadNone")
	}
}

func TestReconcileAggregateProgressCompletesWhenAllDownloadsDone(t *testing.T) {
	torrents := newFakeTorrents()
	r := newTestReconciler(torrents)

	now := time.Now()
	tor := &store.Torrent{
		ID: "t1", Added: time.Now(), FinishedAction: store.FinishedActionRemoveAllTorrents,
		Downloads: []store.Download{{ID: "d1", Completed: &now}, {ID: "d2", Completed: &now}},
	}
	if err := r.Reconcile(tor); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if msg, ok := torrents.completes["t1"]; !ok || msg != "" {
		t.Fatalf("expected a clean UpdateComplete(\"\") call, got %q, present=%v", msg, ok)
	}
	if len(torrents.deletes) != 1 {
		t.Fatalf("expected FinishedActionRemoveAllTorrents to delete remote+client, got %d deletes", len(torrents.deletes))
	}
	d := torrents.deletes[0]
	if !d.removeRemote || !d.removeClient || d.removeFiles {
		t.Fatalf("expected remove_all_torrents to strip remote+client but not local files, got %+v", d)
	}
	if len(torrents.completeHooks) != 1 {
		t.Fatalf("expected RunTorrentComplete to run once the torrent is complete")
	}
}

func TestReconcileAggregateProgressWaitsForAllDownloads(t *testing.T) {
	torrents := newFakeTorrents()
	r := newTestReconciler(torrents)

	now := time.Now()
	tor := &store.Torrent{
		ID: "t1", Added: time.Now(),
		Downloads: []store.Download{{ID: "d1", Completed: &now}, {ID: "d2"}},
	}
	if err := r.Reconcile(tor); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if _, ok := torrents.completes["t1"]; ok {
		t.Fatalf("expected no completion while a download is still outstanding")
	}
}

func TestReconcileHostDownloadNoneCompletesWithoutDownloads(t *testing.T) {
	torrents := newFakeTorrents()
	r := newTestReconciler(torrents)

	now := time.Now()
	tor := &store.Torrent{
		ID: "t1", Added: time.Now(), RDStatus: "finished", FilesSelected: &now,
		HostDownloadAction: store.HostDownloadNone,
	}
	if err := r.Reconcile(tor); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if _, ok := torrents.completes["t1"]; !ok {
		t.Fatalf("expected a host_download_none torrent with no children to complete on its own")
	}
}
