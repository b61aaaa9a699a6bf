package repair

import (
	"fmt"

	"github.com/haldane-labs/torrentrunner/internal/config"
	"github.com/haldane-labs/torrentrunner/internal/logger"
	"github.com/haldane-labs/torrentrunner/pkg/realdebrid"
	"github.com/haldane-labs/torrentrunner/pkg/worker"
	"github.com/rs/zerolog"
)

// repair.go re-adds a torrent's magnet under a new Real-Debrid id when the
// old one died remotely (virus flag, hoster purge, magnet error). It backs
// both TorrentsFacade.RetryTorrent (one torrent, called from the tick) and
// the standalone `repair` CLI command (many torrents, run administratively
// outside a tick).

// Service re-submits magnets to Real-Debrid.
type Service struct {
	rd     *realdebrid.Client
	config *config.Config
	logger zerolog.Logger
}

// New creates a new repair service.
func New(rd *realdebrid.Client, cfg *config.Config) *Service {
	return &Service{
		rd:     rd,
		config: cfg,
		logger: logger.New("repair"),
	}
}

// Repair re-adds hash as a fresh magnet and selects every file Real-Debrid
// reports, returning the new Real-Debrid torrent id. The caller is
// responsible for updating local state and deleting the stale remote
// torrent.
func (s *Service) Repair(hash string) (string, error) {
	newID, err := s.rd.AddMagnet(hash)
	if err != nil {
		return "", fmt.Errorf("adding magnet: %w", err)
	}

	if err := s.rd.SelectAllFiles(newID); err != nil {
		_ = s.rd.DeleteTorrent(newID)
		return "", fmt.Errorf("selecting files: %w", err)
	}

	s.logger.Debug().Str("hash", hash).Str("newId", newID).Msg("Repaired torrent")
	return newID, nil
}

// RepairTarget names one torrent eligible for administrative repair.
type RepairTarget struct {
	TorrentID string
	Hash      string
	Filename  string
}

// repairOutcome embeds the error in the result value itself so
// worker.ProcessWithProgress's unpaired error slice never needs consulting.
type repairOutcome struct {
	target RepairTarget
	err    error
}

// RepairAll repairs every target concurrently through
// worker.ProcessWithProgress, invoking progress after each completion, and
// returns the per-target outcome keyed by torrent id.
func (s *Service) RepairAll(targets []RepairTarget, dryRun bool, maxWorkers int, progress func(completed, total int)) map[string]error {
	if len(targets) == 0 {
		return nil
	}

	results, _ := worker.ProcessWithProgress(targets, maxWorkers, func(t RepairTarget) (repairOutcome, error) {
		if dryRun {
			s.logger.Info().Str("torrent", t.TorrentID).Str("filename", t.Filename).Msg("[DRY-RUN] would repair torrent")
			return repairOutcome{target: t}, nil
		}
		_, err := s.Repair(t.Hash)
		return repairOutcome{target: t, err: err}, nil
	}, progress)

	out := make(map[string]error, len(targets))
	for _, r := range results {
		out[r.target.TorrentID] = r.err
	}
	return out
}
