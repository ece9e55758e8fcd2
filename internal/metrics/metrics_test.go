package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/spinnaker-go/spinnman/internal/pipeline"
)

type fakeStats struct {
	counters    pipeline.Counters
	outstanding int
}

func (f fakeStats) Counters() pipeline.Counters { return f.counters }
func (f fakeStats) Outstanding() int            { return f.outstanding }

func TestPipelineCollector_CollectsRegisteredPipelines(t *testing.T) {
	c := NewPipelineCollector()
	c.Register("(0,0)", fakeStats{
		counters:    pipeline.Counters{Timeouts: 3, Resent: 5, RetryCodeResent: 2},
		outstanding: 4,
	})

	if got, want := testutil.CollectAndCount(c), 4; got != want {
		t.Fatalf("collected %d metrics, want %d", got, want)
	}

	want := `
# HELP spinnman_pipeline_timeouts_total Receive timeouts observed while draining a pipeline.
# TYPE spinnman_pipeline_timeouts_total counter
spinnman_pipeline_timeouts_total{destination="(0,0)"} 3
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(want), "spinnman_pipeline_timeouts_total"); err != nil {
		t.Fatalf("unexpected metric output: %v", err)
	}
}

func TestPipelineCollector_UnregisterRemovesSource(t *testing.T) {
	c := NewPipelineCollector()
	c.Register("(1,1)", fakeStats{counters: pipeline.Counters{Timeouts: 1}})
	c.Unregister("(1,1)")

	if got := testutil.CollectAndCount(c); got != 0 {
		t.Fatalf("collected %d metrics after unregister, want 0", got)
	}
}
