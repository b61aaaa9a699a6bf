package runner

import (
	"github.com/haldane-labs/torrentrunner/internal/logger"
	"github.com/rs/zerolog"
)

// poller.go amortizes status-fetch cost for backends that expose a single
// aggregated query instead of one request per running download.

// AggregatedStatusPoller performs one bulk query per tick against a
// backend and distributes the result to every registered worker that
// implements BulkCapable.
type AggregatedStatusPoller struct {
	backend  BulkStatusBackend
	registry *ActiveWorkerRegistry
	logger   zerolog.Logger
}

// NewAggregatedStatusPoller builds a poller. backend may be nil, in which
// case Poll is a no-op — not every deployment runs a bulk-capable backend.
func NewAggregatedStatusPoller(backend BulkStatusBackend, registry *ActiveWorkerRegistry) *AggregatedStatusPoller {
	return &AggregatedStatusPoller{backend: backend, registry: registry, logger: logger.New("poller")}
}

// Poll issues a single TellAll and pushes the result into every bulk-capable
// worker currently in the download registry.
func (p *AggregatedStatusPoller) Poll() error {
	if p.backend == nil {
		return nil
	}

	workers := p.registry.SnapshotDownloads()

	var anyBulkCapable bool
	for _, w := range workers {
		if _, ok := w.(BulkCapable); ok {
			anyBulkCapable = true
			break
		}
	}
	if !anyBulkCapable {
		return nil
	}

	result, err := p.backend.TellAll()
	if err != nil {
		p.logger.Warn().Err(err).Msg("Bulk status poll failed")
		return err
	}

	for _, w := range workers {
		if bc, ok := w.(BulkCapable); ok {
			bc.Update(result)
		}
	}

	return nil
}
