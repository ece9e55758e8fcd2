package transceiver

import "github.com/spinnaker-go/spinnman/internal/metrics"

// RegisterMetrics registers every live pipeline (chip-facing and BMP) with
// a PipelineCollector, so a caller's /metrics endpoint reports retry and
// outstanding-window statistics per endpoint (spec §4.4, SPEC_FULL domain
// stack).
func (t *Transceiver) RegisterMetrics(c *metrics.PipelineCollector) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for addr, h := range t.endpoints {
		c.Register(addr, h.pipeline)
	}
	for addr, h := range t.bmpEPs {
		c.Register(addr, h.pipeline)
	}
}
