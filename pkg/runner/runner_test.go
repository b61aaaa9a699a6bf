package runner

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/haldane-labs/torrentrunner/internal/config"
	"github.com/haldane-labs/torrentrunner/pkg/store"
)

// runner_test.go exercises Tick end to end over fakes: the configuration
// no-op guards, per-torrent failure absorption, and the end-of-tick push.

type fakeProgress struct {
	mu     sync.Mutex
	pushes [][]*store.Torrent
}

func (p *fakeProgress) Update(torrents []*store.Torrent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, torrents)
	return nil
}

func (p *fakeProgress) pushCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushes)
}

func newTestRunner(t *testing.T, cfg *config.Config, torrents *fakeTorrents, progress *fakeProgress) *Runner {
	t.Helper()
	st := newTestStore(t)
	downloads := newFakeDownloads()
	registry := NewActiveWorkerRegistry()
	poller := NewAggregatedStatusPoller(nil, registry)
	sweeper := NewCompletionSweeper(downloads, st, registry)
	starter := NewWorkStarter(torrents, downloads, registry, &fakeDownloadFactory{}, &fakeUnpackFactory{}, cfg)
	reconciler := NewTorrentReconciler(torrents, starter)
	return New(cfg, torrents, downloads, registry, poller, sweeper, reconciler, progress)
}

func validTestConfig() *config.Config {
	return &config.Config{
		Token:         "test-token",
		DownloadPath:  "/tmp/downloads",
		DownloadLimit: 5,
		UnpackLimit:   2,
	}
}

func TestTickNoOpWithoutToken(t *testing.T) {
	torrents := newFakeTorrents()
	cfg := validTestConfig()
	cfg.Token = ""
	rn := newTestRunner(t, cfg, torrents, &fakeProgress{})

	rn.Tick()

	if torrents.getCalls != 0 {
		t.Fatalf("expected no torrent load when the API key is missing")
	}
}

func TestTickNoOpWithoutDownloadPath(t *testing.T) {
	torrents := newFakeTorrents()
	cfg := validTestConfig()
	cfg.DownloadPath = ""
	rn := newTestRunner(t, cfg, torrents, &fakeProgress{})

	rn.Tick()

	if torrents.getCalls != 0 {
		t.Fatalf("expected no torrent load when the download path is missing")
	}
}

func TestTickNoOpWhenSymlinkMountMissing(t *testing.T) {
	torrents := newFakeTorrents()
	cfg := validTestConfig()
	cfg.DownloadBackend = config.BackendSymlink
	cfg.RcloneMountPath = "/definitely/not/a/mount/point"
	rn := newTestRunner(t, cfg, torrents, &fakeProgress{})

	rn.Tick()

	if torrents.getCalls != 0 {
		t.Fatalf("expected no torrent load when the symlink mount path does not exist")
	}
}

func TestTickClampsLimits(t *testing.T) {
	torrents := newFakeTorrents()
	cfg := validTestConfig()
	cfg.DownloadLimit = 0
	cfg.UnpackLimit = -3
	rn := newTestRunner(t, cfg, torrents, &fakeProgress{})

	rn.Tick()

	if cfg.DownloadLimit != 1 || cfg.UnpackLimit != 1 {
		t.Fatalf("expected limits to be clamped to 1, got %d/%d", cfg.DownloadLimit, cfg.UnpackLimit)
	}
}

func TestTickCompletesExpiredTorrentAndPushesProgress(t *testing.T) {
	torrents := newFakeTorrents()
	added := time.Now().Add(-30 * time.Minute)
	torrents.torrents = []*store.Torrent{
		{ID: "t1", LifetimeMinutes: 10, Added: added, TorrentRetryAttempts: 3},
	}
	progress := &fakeProgress{}
	rn := newTestRunner(t, validTestConfig(), torrents, progress)

	rn.Tick()

	if torrents.completes["t1"] != "Torrent lifetime of 10 minutes reached" {
		t.Fatalf("expected the expired torrent to complete with the lifetime message, got %q", torrents.completes["t1"])
	}
	if progress.pushCount() != 1 {
		t.Fatalf("expected exactly one end-of-tick progress push, got %d", progress.pushCount())
	}
}

func TestTickPrunesErroredTerminalTorrents(t *testing.T) {
	torrents := newFakeTorrents()
	completed := time.Now().Add(-20 * time.Minute)
	torrents.errored = []*store.Torrent{
		{
			ID: "t1", Error: strPtr("dead magnet"), DeleteOnErrorMinutes: 5,
			Completed: &completed, Added: time.Now().Add(-time.Hour),
		},
	}
	rn := newTestRunner(t, validTestConfig(), torrents, &fakeProgress{})

	rn.Tick()

	if len(torrents.deletes) != 1 {
		t.Fatalf("expected the tick to prune the errored-terminal torrent, got %d deletes", len(torrents.deletes))
	}
	d := torrents.deletes[0]
	if !d.removeRemote || !d.removeClient || !d.removeFiles {
		t.Fatalf("expected the retention delete to remove everything, got %+v", d)
	}
}

func TestTickLeavesErroredTorrentsBeforeDeadline(t *testing.T) {
	torrents := newFakeTorrents()
	completed := time.Now().Add(-1 * time.Minute)
	torrents.errored = []*store.Torrent{
		{
			ID: "t1", Error: strPtr("dead magnet"), DeleteOnErrorMinutes: 30,
			Completed: &completed, Added: time.Now().Add(-time.Hour),
		},
	}
	rn := newTestRunner(t, validTestConfig(), torrents, &fakeProgress{})

	rn.Tick()

	if len(torrents.deletes) != 0 {
		t.Fatalf("expected no prune before the delete-on-error window elapses, got %d deletes", len(torrents.deletes))
	}
}

func TestTickRecordsReconcileFailureAsTerminal(t *testing.T) {
	torrents := newFakeTorrents()
	torrents.selectErr = errors.New("remote exploded")
	torrents.torrents = []*store.Torrent{
		{ID: "t1", RDStatus: "waiting_for_file_selection", Added: time.Now()},
	}
	rn := newTestRunner(t, validTestConfig(), torrents, &fakeProgress{})

	rn.Tick()

	if torrents.completes["t1"] != "remote exploded" {
		t.Fatalf("expected the reconcile failure to be recorded as the torrent's terminal error, got %q", torrents.completes["t1"])
	}
}

func TestTickSkipsCompletedTorrents(t *testing.T) {
	torrents := newFakeTorrents()
	now := time.Now()
	torrents.torrents = []*store.Torrent{
		{ID: "t1", RDStatus: "error", Completed: &now, Added: now},
	}
	progress := &fakeProgress{}
	rn := newTestRunner(t, validTestConfig(), torrents, progress)

	rn.Tick()

	if _, ok := torrents.completes["t1"]; ok {
		t.Fatalf("expected a completed torrent not to be reconciled again")
	}
	if progress.pushCount() != 1 {
		t.Fatalf("expected the progress push to still cover completed torrents")
	}
}
