package listener

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spinnaker-go/spinnman/internal/transport"
)

func TestListener_ReceivesAndDispatches(t *testing.T) {
	server, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}

	client, err := net.DialUDP("udp", nil, server.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer client.Close()

	ep := transport.Wrap(server, nil, transport.CapSCPReceiver)
	l := New(ep, 2, 20*time.Millisecond, nil)
	defer l.Close()

	var count int32
	var wg sync.WaitGroup
	wg.Add(3)
	l.AddCallback(func(data []byte) error {
		atomic.AddInt32(&count, 1)
		wg.Done()
		return nil
	})

	for i := 0; i < 3; i++ {
		if _, err := client.Write([]byte{byte(i)}); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("callbacks not all invoked, count=%d", atomic.LoadInt32(&count))
	}
}

func TestListener_CallbackPanicIsSwallowed(t *testing.T) {
	server, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	client, err := net.DialUDP("udp", nil, server.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer client.Close()

	ep := transport.Wrap(server, nil, transport.CapSCPReceiver)
	l := New(ep, 1, 20*time.Millisecond, nil)
	defer l.Close()

	recovered := make(chan struct{})
	l.AddCallback(func(data []byte) error {
		close(recovered)
		panic("boom")
	})

	if _, err := client.Write([]byte{0x01}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case <-recovered:
	case <-time.After(2 * time.Second):
		t.Fatal("panicking callback was never invoked")
	}

	// The poll loop and worker pool must still be alive after a panic.
	secondCall := make(chan struct{})
	l.AddCallback(func(data []byte) error {
		select {
		case <-secondCall:
		default:
			close(secondCall)
		}
		return nil
	})
	if _, err := client.Write([]byte{0x02}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	select {
	case <-secondCall:
	case <-time.After(2 * time.Second):
		t.Fatal("listener stopped dispatching after a callback panic")
	}
}

func TestListener_CloseStopsLoop(t *testing.T) {
	server, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	ep := transport.Wrap(server, nil, transport.CapSCPReceiver)
	l := New(ep, 1, 10*time.Millisecond, nil)

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
}
