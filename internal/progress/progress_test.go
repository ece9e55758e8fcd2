package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestNewTransferReporter(t *testing.T) {
	r := NewTransferReporter(100, "write-mem 1,2")
	if r.total != 100 {
		t.Errorf("total = %d, want 100", r.total)
	}
	if r.sent != 0 {
		t.Errorf("sent = %d, want 0", r.sent)
	}
	if !r.enabled {
		t.Error("should be enabled by default")
	}
	if r.label != "write-mem 1,2" {
		t.Errorf("label = %q, want %q", r.label, "write-mem 1,2")
	}
}

func TestTransferReporter_Disable(t *testing.T) {
	r := NewTransferReporter(100, "test")
	var buf bytes.Buffer
	r.output = &buf

	r.Disable()
	r.lastRender = time.Time{}
	r.Advance(50)
	if buf.Len() > 0 {
		t.Error("disabled reporter should not produce output")
	}
}

func TestTransferReporter_Advance(t *testing.T) {
	r := NewTransferReporter(10, "")
	var buf bytes.Buffer
	r.output = &buf
	r.lastRender = time.Time{}

	r.Advance(3)
	if r.sent != 3 {
		t.Errorf("sent = %d, want 3", r.sent)
	}

	r.lastRender = time.Time{}
	r.Advance(2)
	if r.sent != 5 {
		t.Errorf("sent = %d, want 5", r.sent)
	}
}

func TestTransferReporter_Render(t *testing.T) {
	r := NewTransferReporter(100, "write-mem 0,0")
	var buf bytes.Buffer
	r.output = &buf
	r.lastRender = time.Time{}

	r.Advance(50)
	output := buf.String()

	if !strings.Contains(output, "write-mem 0,0") {
		t.Errorf("output should contain label, got: %q", output)
	}
	if !strings.Contains(output, "50/100 bytes") {
		t.Errorf("output should contain byte count, got: %q", output)
	}
	if !strings.Contains(output, "50.0%") {
		t.Errorf("output should contain percentage, got: %q", output)
	}
	if !strings.Contains(output, "KB/s") {
		t.Errorf("output should contain throughput, got: %q", output)
	}
}

func TestTransferReporter_RenderZeroTotal(t *testing.T) {
	r := NewTransferReporter(0, "")
	var buf bytes.Buffer
	r.output = &buf
	r.lastRender = time.Time{}

	r.Advance(5)
	output := buf.String()
	if !strings.Contains(output, "0.0%") {
		t.Errorf("zero total should show 0%%, got: %q", output)
	}
}

func TestTransferReporter_RenderShowsETA(t *testing.T) {
	r := NewTransferReporter(100, "")
	var buf bytes.Buffer
	r.output = &buf

	r.startTime = time.Now().Add(-5 * time.Second)
	r.lastRender = time.Time{}

	r.Advance(50)
	output := buf.String()

	if !strings.Contains(output, "ETA") {
		t.Errorf("should show ETA when partially complete, got: %q", output)
	}
}

func TestTransferReporter_RenderNoETAWhenComplete(t *testing.T) {
	r := NewTransferReporter(100, "")
	var buf bytes.Buffer
	r.output = &buf

	r.startTime = time.Now().Add(-5 * time.Second)
	r.lastRender = time.Time{}

	r.Advance(100)
	output := buf.String()

	if strings.Contains(output, "ETA") {
		t.Errorf("should not show ETA when complete, got: %q", output)
	}
}

func TestTransferReporter_Throttle(t *testing.T) {
	r := NewTransferReporter(100, "")
	var buf bytes.Buffer
	r.output = &buf

	r.lastRender = time.Time{}
	r.Advance(10)
	first := buf.Len()
	if first == 0 {
		t.Error("first render should produce output")
	}

	buf.Reset()
	r.Advance(10)
	if buf.Len() > 0 {
		t.Error("throttled render should produce no output")
	}
}

func TestTransferReporter_Done(t *testing.T) {
	r := NewTransferReporter(100, "Done")
	var buf bytes.Buffer
	r.output = &buf

	r.Done()

	if r.sent != r.total {
		t.Errorf("Done should set sent = total, got %d", r.sent)
	}
	output := buf.String()
	if !strings.HasSuffix(output, "\n") {
		t.Error("Done should end with newline")
	}
}

func TestTransferReporter_DoneDisabled(t *testing.T) {
	r := NewTransferReporter(100, "")
	var buf bytes.Buffer
	r.output = &buf

	r.Disable()
	r.Done()

	if buf.Len() > 0 {
		t.Error("disabled Done should produce no output")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "500ms"},
		{0, "0ms"},
		{1500 * time.Millisecond, "1.5s"},
		{30 * time.Second, "30.0s"},
		{90 * time.Second, "1m30s"},
		{5*time.Minute + 15*time.Second, "5m15s"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := formatDuration(tt.d)
			if got != tt.want {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}

func TestNewCoreStatusReporter(t *testing.T) {
	r := NewCoreStatusReporter("flood", 500*time.Millisecond)
	if !r.enabled {
		t.Error("should be enabled by default")
	}
	if r.label != "flood" {
		t.Errorf("label = %q, want %q", r.label, "flood")
	}
	if r.interval != 500*time.Millisecond {
		t.Errorf("interval = %v, want 500ms", r.interval)
	}
}

func TestCoreStatusReporter_Status(t *testing.T) {
	r := NewCoreStatusReporter("flood", 0)
	var buf bytes.Buffer
	r.output = &buf
	r.lastRender = time.Time{}

	r.Status(4, 16, "application_run")
	output := buf.String()

	if !strings.Contains(output, "flood") {
		t.Errorf("should contain label, got: %q", output)
	}
	if !strings.Contains(output, "4/16 cores") {
		t.Errorf("should contain core count, got: %q", output)
	}
	if !strings.Contains(output, "application_run") {
		t.Errorf("should contain note, got: %q", output)
	}
}

func TestCoreStatusReporter_StatusUnknownTotal(t *testing.T) {
	r := NewCoreStatusReporter("flood", 0)
	var buf bytes.Buffer
	r.output = &buf
	r.lastRender = time.Time{}

	r.Status(10, 0, "")
	output := buf.String()

	if !strings.Contains(output, "10 cores") {
		t.Errorf("should contain count without total, got: %q", output)
	}
	if strings.Contains(output, "|") {
		t.Errorf("empty note should not have separator, got: %q", output)
	}
}

func TestCoreStatusReporter_Disabled(t *testing.T) {
	r := NewCoreStatusReporter("flood", 0)
	var buf bytes.Buffer
	r.output = &buf
	r.enabled = false
	r.lastRender = time.Time{}

	r.Status(1, 2, "msg")
	if buf.Len() > 0 {
		t.Error("disabled reporter should produce no output")
	}
}

func TestCoreStatusReporter_Throttle(t *testing.T) {
	r := NewCoreStatusReporter("flood", time.Hour)
	var buf bytes.Buffer
	r.output = &buf

	r.Status(1, 2, "")
	if buf.Len() > 0 {
		t.Error("throttled status should produce no output")
	}
}

func TestCoreStatusReporter_Done(t *testing.T) {
	r := NewCoreStatusReporter("flood", 0)
	var buf bytes.Buffer
	r.output = &buf

	r.Done()
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Error("Done should end with newline")
	}
}

func TestCoreStatusReporter_DoneDisabled(t *testing.T) {
	r := NewCoreStatusReporter("flood", 0)
	var buf bytes.Buffer
	r.output = &buf
	r.enabled = false

	r.Done()
	if buf.Len() > 0 {
		t.Error("disabled Done should produce no output")
	}
}
