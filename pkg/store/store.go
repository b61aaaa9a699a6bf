package store

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/haldane-labs/torrentrunner/internal/logger"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// store.go opens the sqlite database and provides the CRUD surface the
// facade builds its higher-level operations on.

// Store wraps a gorm connection to the torrents/downloads schema.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// Open opens (creating if necessary) the sqlite database at path and
// migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(&Torrent{}, &Download{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &Store{db: db, logger: logger.New("store")}, nil
}

// NewID returns a new opaque identifier suitable for a Torrent or Download
// primary key.
func NewID() string {
	return uuid.NewString()
}

// ListActive returns every torrent whose Completed field is unset, with its
// downloads preloaded.
func (s *Store) ListActive() ([]*Torrent, error) {
	var torrents []*Torrent
	err := s.db.Preload("Downloads").Where("completed IS NULL").Find(&torrents).Error
	if err != nil {
		return nil, fmt.Errorf("listing active torrents: %w", err)
	}
	return torrents, nil
}

// ListErroredTerminal returns completed torrents that ended in error and
// still have a positive delete-on-error window, for the error-TTL sweep.
func (s *Store) ListErroredTerminal() ([]*Torrent, error) {
	var torrents []*Torrent
	err := s.db.Where("completed IS NOT NULL AND error IS NOT NULL AND delete_on_error_minutes > 0").
		Find(&torrents).Error
	if err != nil {
		return nil, fmt.Errorf("listing errored torrents: %w", err)
	}
	return torrents, nil
}

// GetTorrent loads a single torrent with its downloads.
func (s *Store) GetTorrent(id string) (*Torrent, error) {
	var t Torrent
	err := s.db.Preload("Downloads").First(&t, "id = ?", id).Error
	if err != nil {
		return nil, fmt.Errorf("loading torrent %s: %w", id, err)
	}
	return &t, nil
}

// CreateTorrent inserts a new torrent row.
func (s *Store) CreateTorrent(t *Torrent) error {
	if t.ID == "" {
		t.ID = NewID()
	}
	if t.Added.IsZero() {
		t.Added = time.Now()
	}
	return s.db.Create(t).Error
}

// UpdateTorrentFields applies a partial update to a torrent row.
func (s *Store) UpdateTorrentFields(id string, fields map[string]interface{}) error {
	return s.db.Model(&Torrent{}).Where("id = ?", id).Updates(fields).Error
}

// DeleteTorrent removes a torrent row and its downloads in one transaction.
// The store itself has no remote/client concept; the facade decides which
// of those to remove.
func (s *Store) DeleteTorrent(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("torrent_id = ?", id).Delete(&Download{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Torrent{}, "id = ?", id).Error
	})
}

// CreateDownloads inserts the given download rows, each stamped with
// DownloadQueued = now, and associates them with torrentID.
func (s *Store) CreateDownloads(torrentID string, downloads []*Download) error {
	now := time.Now()
	for _, d := range downloads {
		if d.ID == "" {
			d.ID = NewID()
		}
		d.TorrentID = torrentID
		d.DownloadQueued = &now
	}
	if len(downloads) == 0 {
		return nil
	}
	return s.db.Create(&downloads).Error
}

// GetDownload loads a single download row.
func (s *Store) GetDownload(id string) (*Download, error) {
	var d Download
	err := s.db.First(&d, "id = ?", id).Error
	if err != nil {
		return nil, fmt.Errorf("loading download %s: %w", id, err)
	}
	return &d, nil
}

// UpdateDownloadFields applies a partial update to a download row.
func (s *Store) UpdateDownloadFields(id string, fields map[string]interface{}) error {
	return s.db.Model(&Download{}).Where("id = ?", id).Updates(fields).Error
}

// UpdateDownloadProgress records the latest byte counters a running worker
// has observed. Workers call this directly from their own goroutine; it is
// the one store write that happens outside the tick's thread of control.
func (s *Store) UpdateDownloadProgress(downloadID string, bytesDone, bytesTotal int64) error {
	fields := map[string]interface{}{"bytes_done": bytesDone}
	if bytesTotal > 0 {
		fields["bytes_total"] = bytesTotal
	}
	return s.db.Model(&Download{}).Where("id = ?", downloadID).Updates(fields).Error
}

// UpdateDownloadFinishedAndQueued atomically stamps DownloadFinished and
// UnpackingQueued in one transaction, so a crash between the two never
// leaves a download finished-but-not-queued (a state the Initializer's
// rewind rules don't recognize).
func (s *Store) UpdateDownloadFinishedAndQueued(downloadID string) error {
	now := time.Now()
	return s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Model(&Download{}).Where("id = ?", downloadID).Updates(map[string]interface{}{
			"download_finished": &now,
			"unpacking_queued":  &now,
		}).Error
	})
}

// UpdateUnpackSkipComplete atomically stamps UnpackingStarted,
// UnpackingFinished, and Completed in one transaction, for a download whose
// extension doesn't require extraction.
func (s *Store) UpdateUnpackSkipComplete(downloadID string) error {
	now := time.Now()
	return s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Model(&Download{}).Where("id = ?", downloadID).Updates(map[string]interface{}{
			"unpacking_started":  &now,
			"unpacking_finished": &now,
			"completed":          &now,
		}).Error
	})
}

// UpdateRemoteIDRange applies a batch of downloadId -> remoteId updates in
// one transaction, used after a WorkStarter fan-out round.
func (s *Store) UpdateRemoteIDRange(remoteIDs map[string]string) error {
	if len(remoteIDs) == 0 {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		for id, remoteID := range remoteIDs {
			remoteID := remoteID
			if err := tx.Model(&Download{}).Where("id = ?", id).Update("remote_id", &remoteID).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateErrorInRange applies a batch of downloadId -> error message updates,
// also stamping Completed = now for each, in one transaction.
func (s *Store) UpdateErrorInRange(errs map[string]string) error {
	if len(errs) == 0 {
		return nil
	}
	now := time.Now()
	return s.db.Transaction(func(tx *gorm.DB) error {
		for id, msg := range errs {
			msg := msg
			err := tx.Model(&Download{}).Where("id = ?", id).Updates(map[string]interface{}{
				"error":     &msg,
				"completed": &now,
			}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}
