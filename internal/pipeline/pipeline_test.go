package pipeline

import (
	"encoding/binary"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spinnaker-go/spinnman/internal/scp"
	"github.com/spinnaker-go/spinnman/internal/sdp"
	"github.com/spinnaker-go/spinnman/internal/seqalloc"
	"github.com/spinnaker-go/spinnman/internal/transport"
)

// fakeHandler decides how a fake SCAMP server responds to one decoded
// request. Returning ok=false means drop the packet silently.
type fakeHandler func(reqSCP sdp.SCPHeader, payload []byte) (respResult scp.Result, respPayload []byte, ok bool)

func startFakeServer(t *testing.T, handler fakeHandler) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 512)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			_, reqSCP, payload, err := sdp.Decode(buf[:n])
			if err != nil {
				continue
			}
			payloadCopy := append([]byte(nil), payload...)
			go func(reqSCP sdp.SCPHeader, payload []byte, from *net.UDPAddr) {
				result, respPayload, ok := handler(reqSCP, payload)
				if !ok {
					return
				}
				respHdr := sdp.SDPHeader{Flags: sdp.FlagNoReply}
				respSCP := sdp.SCPHeader{Command: uint16(result), Sequence: reqSCP.Sequence, Arg1: reqSCP.Arg1}
				frame, err := sdp.Encode(respHdr, respSCP, respPayload)
				if err != nil {
					return
				}
				conn.WriteToUDP(frame, from)
			}(reqSCP, payloadCopy, from)
		}
	}()

	return conn
}

func newTestPipeline(t *testing.T, serverAddr string, opts ...Option) *Pipeline {
	t.Helper()
	ep, err := transport.Dial(serverAddr, nil, transport.CapSCPSender|transport.CapSCPReceiver)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { ep.Close() })
	return New(ep, seqalloc.New(), opts...)
}

func readMemoryRequest(base uint32, size uint32) Request {
	encode := func(seq uint16) []byte {
		hdr := sdp.SDPHeader{Flags: sdp.FlagReplyExpected, DestPort: 0, DestCPU: 0}
		scpHdr := sdp.SCPHeader{Command: uint16(scp.CmdReadMemory), Sequence: seq, Arg1: base, Arg2: size}
		frame, _ := sdp.Encode(hdr, scpHdr, nil)
		return frame
	}
	return Request{
		Command:     scp.CmdReadMemory,
		Destination: "(0,0)",
		Encode:      encode,
		Decode:      func(payload []byte) (interface{}, error) { return append([]byte(nil), payload...), nil },
	}
}

func TestScenario1_SequenceRoundTrip(t *testing.T) {
	server := startFakeServer(t, func(reqSCP sdp.SCPHeader, payload []byte) (scp.Result, []byte, bool) {
		resp := make([]byte, 4)
		binary.LittleEndian.PutUint32(resp, reqSCP.Arg1)
		return scp.RCOk, resp, true
	})

	p := newTestPipeline(t, server.LocalAddr().String())

	resultCh := make(chan []byte, 1)
	errCh := make(chan error, 1)
	req := readMemoryRequest(0xDEADBEEF, 4)
	req.OnSuccess = func(v interface{}) { resultCh <- v.([]byte) }
	req.OnError = func(err error) { errCh <- err }

	if err := p.Submit(req); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	p.Finish()

	select {
	case got := <-resultCh:
		want := []byte{0xEF, 0xBE, 0xAD, 0xDE}
		if string(got) != string(want) {
			t.Errorf("payload = %v, want %v", got, want)
		}
	case err := <-errCh:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

func TestScenario2_RetryOnRetryCode(t *testing.T) {
	var attempts int32
	server := startFakeServer(t, func(reqSCP sdp.SCPHeader, payload []byte) (scp.Result, []byte, bool) {
		n := atomic.AddInt32(&attempts, 1)
		if n <= 2 {
			return scp.RCTimeout, nil, true
		}
		return scp.RCOk, []byte{0x01, 0x02, 0x03, 0x04}, true
	})

	p := newTestPipeline(t, server.LocalAddr().String(),
		WithNRetries(3), WithPacketTimeout(100*time.Millisecond))

	resultCh := make(chan []byte, 1)
	errCh := make(chan error, 1)
	req := readMemoryRequest(0x1000, 4)
	req.OnSuccess = func(v interface{}) { resultCh <- v.([]byte) }
	req.OnError = func(err error) { errCh <- err }

	if err := p.Submit(req); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	p.Finish()

	select {
	case got := <-resultCh:
		want := []byte{0x01, 0x02, 0x03, 0x04}
		if string(got) != string(want) {
			t.Errorf("payload = %v, want %v", got, want)
		}
	case err := <-errCh:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for callback")
	}

	counters := p.Counters()
	if counters.RetryCodeResent != 2 {
		t.Errorf("RetryCodeResent = %d, want 2", counters.RetryCodeResent)
	}
	if counters.Timeouts != 0 {
		t.Errorf("Timeouts = %d, want 0", counters.Timeouts)
	}
}

func TestScenario3_TotalTimeout(t *testing.T) {
	server := startFakeServer(t, func(reqSCP sdp.SCPHeader, payload []byte) (scp.Result, []byte, bool) {
		return 0, nil, false // drop everything
	})

	p := newTestPipeline(t, server.LocalAddr().String(),
		WithNRetries(2), WithPacketTimeout(50*time.Millisecond))

	errCh := make(chan error, 1)
	req := readMemoryRequest(0x2000, 4)
	req.OnSuccess = func(v interface{}) { t.Error("unexpected success") }
	req.OnError = func(err error) { errCh <- err }

	if err := p.Submit(req); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	p.Finish()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected a Timeout error")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for error callback")
	}

	counters := p.Counters()
	if counters.Resent != 2 {
		t.Errorf("Resent = %d, want 2", counters.Resent)
	}
	if counters.Timeouts < 1 {
		t.Errorf("Timeouts = %d, want >= 1", counters.Timeouts)
	}
}

func TestScenario4_WindowDiscipline(t *testing.T) {
	server := startFakeServer(t, func(reqSCP sdp.SCPHeader, payload []byte) (scp.Result, []byte, bool) {
		time.Sleep(200 * time.Millisecond)
		return scp.RCOk, []byte{0, 0, 0, 0}, true
	})

	p := newTestPipeline(t, server.LocalAddr().String(), WithNChannels(4))

	var maxObserved int32
	stopMonitor := make(chan struct{})
	go func() {
		for {
			select {
			case <-stopMonitor:
				return
			default:
				if o := int32(p.Outstanding()); o > atomic.LoadInt32(&maxObserved) {
					atomic.StoreInt32(&maxObserved, o)
				}
				time.Sleep(2 * time.Millisecond)
			}
		}
	}()

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 10; i++ {
		req := readMemoryRequest(uint32(0x3000+i*4), 4)
		wg.Add(1)
		req.OnSuccess = func(v interface{}) { wg.Done() }
		req.OnError = func(err error) { wg.Done() }
		if err := p.Submit(req); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	p.Finish()
	wg.Wait()
	elapsed := time.Since(start)
	close(stopMonitor)

	if atomic.LoadInt32(&maxObserved) > 4 {
		t.Errorf("observed outstanding = %d, want <= 4", maxObserved)
	}
	// ceil(10/4) = 3 batches of ~200ms each, minus scheduling slack.
	minExpected := 500 * time.Millisecond
	if elapsed < minExpected {
		t.Errorf("elapsed = %v, want >= %v", elapsed, minExpected)
	}
}
