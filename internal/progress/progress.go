// Package progress renders stderr status for the long-running SCP
// transfers the spinnman CLI drives: chunked ReadMemory/WriteMemory
// streams and flood-fill broadcasts to every chip on the machine.
package progress

import (
	"fmt"
	"io"
	"os"
	"time"
)

// TransferReporter tracks a chunked memory read or write against a known
// byte total, throttling its render to avoid flooding stderr with one line
// per chunk (write-mem chunks at reportedChunkSize-byte granularity).
type TransferReporter struct {
	total      int64
	sent       int64
	startTime  time.Time
	lastRender time.Time
	output     io.Writer
	enabled    bool
	label      string
}

// NewTransferReporter creates a reporter for a transfer of totalBytes,
// identified by label (typically "write-mem <chip>" or "read-mem <chip>").
func NewTransferReporter(totalBytes int64, label string) *TransferReporter {
	return &TransferReporter{
		total:      totalBytes,
		startTime:  time.Now(),
		lastRender: time.Now(),
		output:     os.Stderr,
		enabled:    true,
		label:      label,
	}
}

// Disable suppresses all rendering, for --no-progress.
func (r *TransferReporter) Disable() { r.enabled = false }

// Advance records n additional bytes transferred and re-renders, subject to
// the render throttle.
func (r *TransferReporter) Advance(n int64) {
	r.sent += n
	r.render()
}

func (r *TransferReporter) render() {
	if !r.enabled {
		return
	}
	now := time.Now()
	if now.Sub(r.lastRender) < 100*time.Millisecond && r.sent < r.total {
		return
	}
	r.lastRender = now

	var percent float64
	if r.total > 0 {
		percent = float64(r.sent) / float64(r.total) * 100
	}

	elapsed := time.Since(r.startTime)
	rateKBs := 0.0
	if elapsed.Seconds() > 0 {
		rateKBs = float64(r.sent) / 1024 / elapsed.Seconds()
	}

	const barWidth = 40
	filled := int(float64(barWidth) * percent / 100)
	if filled > barWidth {
		filled = barWidth
	}
	bar := make([]byte, barWidth)
	for i := range bar {
		switch {
		case i < filled:
			bar[i] = '='
		case i == filled:
			bar[i] = '>'
		default:
			bar[i] = '-'
		}
	}

	line := fmt.Sprintf("\r%s [%s] %d/%d bytes (%.1f%%) %.1f KB/s",
		r.label, string(bar), r.sent, r.total, percent, rateKBs)
	if r.sent < r.total && rateKBs > 0 {
		remaining := float64(r.total-r.sent) / 1024 / rateKBs
		line += fmt.Sprintf(" ETA %s", formatDuration(time.Duration(remaining*float64(time.Second))))
	}
	fmt.Fprint(r.output, line)
}

// Done marks the transfer complete and emits the closing newline.
func (r *TransferReporter) Done() {
	if !r.enabled {
		return
	}
	r.sent = r.total
	r.render()
	fmt.Fprint(r.output, "\n")
}

// CoreStatusReporter tracks a flood-fill's progress across the machine:
// unlike a TransferReporter it has no single byte total to measure against
// (flood_fill_data blocks complete out of order across chips), so it
// reports a free-form status string at a fixed interval instead of a bar.
type CoreStatusReporter struct {
	output     io.Writer
	enabled    bool
	label      string
	lastRender time.Time
	interval   time.Duration
}

// NewCoreStatusReporter creates a reporter that renders at most once per
// interval.
func NewCoreStatusReporter(label string, interval time.Duration) *CoreStatusReporter {
	return &CoreStatusReporter{
		output:     os.Stderr,
		enabled:    true,
		label:      label,
		lastRender: time.Now(),
		interval:   interval,
	}
}

// Status reports coresDone out of coresTotal chips/cores have reached the
// current flood-fill stage, with a free-form note (e.g. "flood_fill_data",
// "application_run"). coresTotal of 0 means the total isn't known yet
// (still streaming FloodFillStart).
func (r *CoreStatusReporter) Status(coresDone, coresTotal int, note string) {
	if !r.enabled {
		return
	}
	now := time.Now()
	if now.Sub(r.lastRender) < r.interval {
		return
	}
	r.lastRender = now

	var line string
	switch {
	case coresTotal > 0:
		line = fmt.Sprintf("\r%s: %d/%d cores", r.label, coresDone, coresTotal)
	default:
		line = fmt.Sprintf("\r%s: %d cores", r.label, coresDone)
	}
	if note != "" {
		line += fmt.Sprintf(" | %s", note)
	}
	fmt.Fprint(r.output, line)
}

// Done emits the closing newline.
func (r *CoreStatusReporter) Done() {
	if !r.enabled {
		return
	}
	fmt.Fprint(r.output, "\n")
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}
