package runner

import (
	"fmt"
	"sync"
	"testing"
)

// registry_test.go checks the registry's concurrency safety and that the
// download and unpack tables are tracked independently of each other.

func TestRegistryPutAndRemoveDownload(t *testing.T) {
	r := NewActiveWorkerRegistry()
	w := &fakeDownloadWorker{}

	r.PutDownload("d1", w)
	if !r.HasDownload("d1") {
		t.Fatalf("expected d1 to be registered")
	}
	if r.DownloadCount() != 1 {
		t.Fatalf("expected count 1, got %d", r.DownloadCount())
	}

	r.RemoveDownload("d1")
	if r.HasDownload("d1") {
		t.Fatalf("expected d1 to be gone after remove")
	}
	if r.DownloadCount() != 0 {
		t.Fatalf("expected count 0 after remove, got %d", r.DownloadCount())
	}
}

func TestRegistryDownloadAndUnpackTablesAreIndependent(t *testing.T) {
	r := NewActiveWorkerRegistry()
	r.PutDownload("x1", &fakeDownloadWorker{})

	if r.HasUnpack("x1") {
		t.Fatalf("expected the unpack table not to see a download-only id")
	}

	r.PutUnpack("x1", &fakeUnpackWorker{})
	if !r.HasDownload("x1") || !r.HasUnpack("x1") {
		t.Fatalf("expected the same id to be independently trackable in both tables")
	}
}

func TestRegistryConcurrentAccessIsSafe(t *testing.T) {
	r := NewActiveWorkerRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("d%d", i)
			r.PutDownload(id, &fakeDownloadWorker{})
			r.HasDownload(id)
			r.DownloadCount()
			r.SnapshotDownloads()
			r.RemoveDownload(id)
		}(i)
	}
	wg.Wait()

	if r.DownloadCount() != 0 {
		t.Fatalf("expected an empty registry once every goroutine has removed its entry, got %d", r.DownloadCount())
	}
}

func TestRegistrySnapshotIsACopy(t *testing.T) {
	r := NewActiveWorkerRegistry()
	r.PutDownload("d1", &fakeDownloadWorker{})

	snap := r.SnapshotDownloads()
	r.PutDownload("d2", &fakeDownloadWorker{})

	if len(snap) != 1 {
		t.Fatalf("expected the snapshot to be unaffected by a later Put, got %d entries", len(snap))
	}
}
