// Package selector implements the connection-selection policy (spec
// §4.5): given a request addressed to a chip, choose the best endpoint to
// carry it.
package selector

import (
	"sync"

	"github.com/spinnaker-go/spinnman/internal/errors"
	"github.com/spinnaker-go/spinnman/internal/pipeline"
	"github.com/spinnaker-go/spinnman/internal/transport"
)

// entry pairs one endpoint with the pipeline that owns its socket.
type entry struct {
	endpoint *transport.Endpoint
	pipeline *pipeline.Pipeline
	// ethernetChip is the nearest ethernet chip this endpoint's board
	// exposes, used for the "directly connected to the ethernet chip on
	// the same board" tie-break.
	ethernetChip transport.ChipCoord
}

// Selector chooses a pipeline for a request addressed to a chip (spec
// §4.5). Endpoint maps are mutex-protected and grown during discovery
// (spec §5).
type Selector struct {
	mu      sync.RWMutex
	entries []entry
}

// New returns an empty Selector; Add populates it as endpoints are
// constructed or discovered.
func New() *Selector {
	return &Selector{}
}

// Add registers an endpoint/pipeline pair. ethernetChip is the board's
// ethernet chip (used for tie-breaking); pass the same value as
// endpoint.RemoteChip() when the endpoint is itself the ethernet chip.
func (s *Selector) Add(ep *transport.Endpoint, p *pipeline.Pipeline, ethernetChip transport.ChipCoord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry{endpoint: ep, pipeline: p, ethernetChip: ethernetChip})
}

// Select picks the endpoint whose remote chip is closest to (x, y): an
// exact match wins outright; otherwise an endpoint whose board ethernet
// chip is (x, y) is preferred, then any endpoint with a known remote chip;
// ties are broken by the lowest
// pipeline queue length. A caller-provided override always wins. Fails
// with UnsupportedOperation if no endpoint can carry messageKind.
func (s *Selector) Select(x, y uint8, messageKind string, override *transport.Endpoint) (*transport.Endpoint, *pipeline.Pipeline, error) {
	if override != nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for _, e := range s.entries {
			if e.endpoint == override {
				return e.endpoint, e.pipeline, nil
			}
		}
		return nil, nil, &errors.UnsupportedOperationError{MessageKind: messageKind}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return nil, nil, &errors.UnsupportedOperationError{MessageKind: messageKind}
	}

	var best *entry
	bestRank := rankUnreachable

	for i := range s.entries {
		e := &s.entries[i]
		rank, ok := e.rank(x, y)
		if !ok {
			continue
		}
		switch {
		case best == nil || rank < bestRank:
			best, bestRank = e, rank
		case rank == bestRank && e.pipeline.Outstanding() < best.pipeline.Outstanding():
			best = e
		}
	}

	if best == nil {
		return nil, nil, &errors.UnsupportedOperationError{MessageKind: messageKind}
	}
	return best.endpoint, best.pipeline, nil
}

const (
	rankExactChip     = 0
	rankSameBoard     = 1
	rankLastResort    = 2
	rankUnreachable   = 3
)

// rank scores an entry's fitness for reaching (x, y): 0 is an exact chip
// match, 1 is same-board ((x, y) is the board's ethernet chip), 2 is any
// other endpoint with a known remote chip; an endpoint with no remote chip
// that matches neither is not a candidate.
func (e *entry) rank(x, y uint8) (int, bool) {
	remote := e.endpoint.RemoteChip()
	if remote != nil && remote.X == x && remote.Y == y {
		return rankExactChip, true
	}
	if e.ethernetChip.X == x && e.ethernetChip.Y == y {
		return rankSameBoard, true
	}
	if remote != nil {
		// Reaches some chip, just not (x,y) or its board's ethernet
		// chip; still a candidate of last resort so a single-endpoint
		// machine can route everything through it.
		return rankLastResort, true
	}
	return 0, false
}
