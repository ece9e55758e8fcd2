// Package metrics exposes pipeline retry/timeout statistics and
// outstanding-window depth as Prometheus collectors (spec §4.4
// PipelineState.counters; SPEC_FULL domain stack), the same pull-based
// shape runZeroInc-sockstats/pkg/exporter.TCPInfoCollector uses to expose
// per-connection tcpinfo: a Collector that walks a registered set of
// live objects on every scrape rather than pushing on every event.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/spinnaker-go/spinnman/internal/pipeline"
)

// PipelineStats is the subset of pipeline.Pipeline a source must expose to
// be scraped.
type PipelineStats interface {
	Counters() pipeline.Counters
	Outstanding() int
}

// PipelineCollector is a prometheus.Collector over every pipeline
// registered with it, labelled by the destination name under which it was
// registered (typically an endpoint address or "bmp[n]").
type PipelineCollector struct {
	mu        sync.Mutex
	pipelines map[string]PipelineStats

	timeouts        *prometheus.Desc
	resent          *prometheus.Desc
	retryCodeResent *prometheus.Desc
	outstanding     *prometheus.Desc
}

// NewPipelineCollector builds a collector. Register it with a
// prometheus.Registry (or prometheus.MustRegister for the default one)
// before scraping.
func NewPipelineCollector() *PipelineCollector {
	labels := []string{"destination"}
	return &PipelineCollector{
		pipelines: make(map[string]PipelineStats),
		timeouts: prometheus.NewDesc(
			"spinnman_pipeline_timeouts_total",
			"Receive timeouts observed while draining a pipeline.",
			labels, nil,
		),
		resent: prometheus.NewDesc(
			"spinnman_pipeline_resent_total",
			"Requests resent for any reason.",
			labels, nil,
		),
		retryCodeResent: prometheus.NewDesc(
			"spinnman_pipeline_retry_code_resent_total",
			"Requests resent specifically due to a retryable SCP result code.",
			labels, nil,
		),
		outstanding: prometheus.NewDesc(
			"spinnman_pipeline_outstanding",
			"Requests currently awaiting a response or retry.",
			labels, nil,
		),
	}
}

// Register adds a pipeline to be scraped under destination. Re-registering
// the same destination replaces the prior entry.
func (c *PipelineCollector) Register(destination string, p PipelineStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pipelines[destination] = p
}

// Unregister removes a pipeline, e.g. once its endpoint is closed.
func (c *PipelineCollector) Unregister(destination string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pipelines, destination)
}

// Describe implements prometheus.Collector.
func (c *PipelineCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.timeouts
	descs <- c.resent
	descs <- c.retryCodeResent
	descs <- c.outstanding
}

// Collect implements prometheus.Collector.
func (c *PipelineCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for destination, p := range c.pipelines {
		counters := p.Counters()
		ch <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(counters.Timeouts), destination)
		ch <- prometheus.MustNewConstMetric(c.resent, prometheus.CounterValue, float64(counters.Resent), destination)
		ch <- prometheus.MustNewConstMetric(c.retryCodeResent, prometheus.CounterValue, float64(counters.RetryCodeResent), destination)
		ch <- prometheus.MustNewConstMetric(c.outstanding, prometheus.GaugeValue, float64(p.Outstanding()), destination)
	}
}
