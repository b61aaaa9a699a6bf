package runner

import (
	"os"
	"time"

	"github.com/haldane-labs/torrentrunner/internal/config"
	"github.com/haldane-labs/torrentrunner/internal/logger"
	"github.com/rs/zerolog"
)

// runner.go wires the components into the single Tick entry point an
// external driver invokes on a fixed cadence. One invocation may not
// overlap itself; serializing calls is the driver's responsibility.

// Runner is the TorrentRunner reconciliation core.
type Runner struct {
	cfg *config.Config

	torrents  TorrentsFacade
	downloads DownloadsFacade
	registry  *ActiveWorkerRegistry

	poller     *AggregatedStatusPoller
	sweeper    *CompletionSweeper
	reconciler *TorrentReconciler
	progress   RemoteProgressReporter

	logger zerolog.Logger
}

// New builds a Runner. progress may be nil to disable the end-of-tick push.
func New(
	cfg *config.Config,
	torrents TorrentsFacade,
	downloads DownloadsFacade,
	registry *ActiveWorkerRegistry,
	poller *AggregatedStatusPoller,
	sweeper *CompletionSweeper,
	reconciler *TorrentReconciler,
	progress RemoteProgressReporter,
) *Runner {
	return &Runner{
		cfg:        cfg,
		torrents:   torrents,
		downloads:  downloads,
		registry:   registry,
		poller:     poller,
		sweeper:    sweeper,
		reconciler: reconciler,
		progress:   progress,
		logger:     logger.New("runner"),
	}
}

// Tick performs one full reconciliation pass. It never returns an error to
// the caller: configuration problems and per-torrent failures are logged
// and absorbed so the external driver can always schedule the next tick.
func (rn *Runner) Tick() {
	start := time.Now()

	if stop := rn.validateConfig(); stop {
		return
	}

	if err := rn.poller.Poll(); err != nil {
		rn.logger.Warn().Err(err).Msg("bulk status poll failed")
	}

	if err := rn.sweeper.SweepDownloads(); err != nil {
		rn.logger.Error().Err(err).Msg("download sweep failed")
	}

	if err := rn.sweeper.SweepUnpacks(); err != nil {
		rn.logger.Error().Err(err).Msg("unpack sweep failed")
	}

	rn.pruneErrored()

	torrents, err := rn.torrents.Get()
	if err != nil {
		rn.logger.Error().Err(err).Msg("failed to load torrents")
		return
	}

	for _, t := range torrents {
		if t.Completed != nil {
			continue
		}
		if err := rn.reconciler.Reconcile(t); err != nil {
			rn.logger.Error().Err(err).Str("torrent", t.ID).Msg("reconciliation failed")
			if cErr := rn.torrents.UpdateComplete(t.ID, err.Error()); cErr != nil {
				rn.logger.Error().Err(cErr).Str("torrent", t.ID).Msg("failed to record reconciliation error")
			}
		}
	}

	if rn.progress != nil {
		if err := rn.progress.Update(torrents); err != nil {
			rn.logger.Warn().Err(err).Msg("remote progress push failed")
		}
	}

	if elapsed := time.Since(start); elapsed > time.Second {
		rn.logger.Warn().Dur("elapsed", elapsed).Msg("tick took longer than 1000ms")
	}
}

// pruneErrored deletes errored-terminal torrents whose delete-on-error
// window has elapsed. These torrents are completed and so excluded from
// the reconciliation loop below; retention is the one policy that still
// applies to them.
func (rn *Runner) pruneErrored() {
	errored, err := rn.torrents.GetErroredTerminal()
	if err != nil {
		rn.logger.Error().Err(err).Msg("failed to load errored torrents for retention pruning")
		return
	}

	for _, t := range errored {
		if _, err := rn.reconciler.pruneErrorTTL(t); err != nil {
			rn.logger.Error().Err(err).Str("torrent", t.ID).Msg("retention prune failed")
		}
	}
}

// validateConfig performs the entry-level checks that make a tick a no-op
// rather than a failure.
func (rn *Runner) validateConfig() bool {
	if rn.cfg.Token == "" {
		rn.logger.Error().Msg("no provider API key configured, skipping tick")
		return true
	}

	if rn.cfg.IsSymlinkBackend() {
		if _, err := os.Stat(rn.cfg.RcloneMountPath); err != nil {
			rn.logger.Error().Str("path", rn.cfg.RcloneMountPath).Msg("symlink mount path does not exist, skipping tick")
			return true
		}
	}

	if rn.cfg.DownloadLimit < 1 {
		rn.cfg.DownloadLimit = 1
	}
	if rn.cfg.UnpackLimit < 1 {
		rn.cfg.UnpackLimit = 1
	}

	if rn.cfg.DownloadPath == "" {
		rn.logger.Error().Msg("no download path configured, skipping tick")
		return true
	}

	return false
}
