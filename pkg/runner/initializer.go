package runner

import (
	"fmt"

	"github.com/haldane-labs/torrentrunner/internal/logger"
	"github.com/haldane-labs/torrentrunner/pkg/store"
	"github.com/rs/zerolog"
)

// initializer.go implements the sole cross-process recovery step: on crash,
// an in-memory worker is lost but the "started" timestamp it set survives
// in the store, so rewinding it re-queues the stage on the next tick.

// Initializer performs the one-shot sweep run at process start.
type Initializer struct {
	downloads DownloadsFacade
	logger    zerolog.Logger
}

// NewInitializer builds an Initializer over the downloads facade.
func NewInitializer(downloads DownloadsFacade) *Initializer {
	return &Initializer{downloads: downloads, logger: logger.New("initializer")}
}

// Run scans all non-completed torrents and rewinds any download or unpack
// stage that looks like it was interrupted mid-flight. Running it twice
// with no intervening ticks is idempotent: a download whose Started field
// has already been rewound to nil no longer matches the rewind condition.
func (in *Initializer) Run(torrents []*store.Torrent) error {
	var rewound int

	for _, t := range torrents {
		for _, d := range t.Downloads {
			if d.Completed != nil {
				continue
			}

			if d.DownloadQueued != nil && d.DownloadStarted != nil && d.DownloadFinished == nil && d.Error == nil {
				if err := in.downloads.Reset(d.ID); err != nil {
					return fmt.Errorf("rewinding download start for %s: %w", d.ID, err)
				}
				rewound++
				continue
			}

			if d.UnpackingQueued != nil && d.UnpackingStarted != nil && d.UnpackingFinished == nil && d.Error == nil {
				if err := in.downloads.ResetUnpackStart(d.ID); err != nil {
					return fmt.Errorf("rewinding unpack start for %s: %w", d.ID, err)
				}
				rewound++
			}
		}
	}

	in.logger.Info().Int("rewound", rewound).Msg("Initializer sweep complete")
	return nil
}
