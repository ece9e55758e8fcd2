// Package transport implements the UDP endpoint abstraction (spec §4.2): a
// single bidirectional socket with capability flags and an optional remote
// chip coordinate, exposing non-blocking send and poll-with-timeout receive.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/spinnaker-go/spinnman/internal/errors"
)

// Capability is a bitmask of what an Endpoint may be used for.
type Capability uint8

const (
	CapSCPSender Capability = 1 << iota
	CapSCPReceiver
	CapBootSender
	CapBMPSender
)

// Has reports whether c includes every bit in want.
func (c Capability) Has(want Capability) bool { return c&want == want }

// ChipCoord is the (x, y) of a chip, 0..255 each.
type ChipCoord struct {
	X, Y uint8
}

func (c ChipCoord) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Y) }

// DefaultSCPPort is the standard SCAMP listening port.
const DefaultSCPPort = 17893

// DefaultBootPort is the standard boot listening port.
const DefaultBootPort = 54321

// Endpoint is a single UDP socket bound to one remote address, classified
// by capability and (optionally) by the chip it reaches directly.
//
// Invariant (spec §3): at most one Endpoint exists per (remote address,
// remote port) in a transceiver's sending map; enforced by the caller that
// owns the endpoint map, not by Endpoint itself.
type Endpoint struct {
	mu           sync.RWMutex
	conn         *net.UDPConn
	remoteAddr   *net.UDPAddr
	remoteChip   *ChipCoord
	capabilities Capability
	closed       bool
}

// Dial opens a UDP socket bound to an OS-chosen local port and targeting
// remoteAddr (host:port). remoteChip may be nil when the endpoint's chip
// is not yet known (e.g. before discovery assigns it).
func Dial(remoteAddr string, remoteChip *ChipCoord, capabilities Capability) (*Endpoint, error) {
	raddr, err := net.ResolveUDPAddr("udp", remoteAddr)
	if err != nil {
		return nil, errors.NewInvalidParameter("remoteAddr", remoteAddr, err.Error())
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, &errors.IoError{Command: "dial", Destination: remoteAddr, Err: err}
	}

	return &Endpoint{
		conn:         conn,
		remoteAddr:   raddr,
		remoteChip:   remoteChip,
		capabilities: capabilities,
	}, nil
}

// Wrap adapts an already-bound *net.UDPConn (typically from net.ListenUDP,
// for a receive-only IP-tag sink that accepts unsolicited traffic from any
// board address) into an Endpoint.
func Wrap(conn *net.UDPConn, remoteChip *ChipCoord, capabilities Capability) *Endpoint {
	addr, _ := conn.LocalAddr().(*net.UDPAddr)
	return &Endpoint{
		conn:         conn,
		remoteAddr:   addr,
		remoteChip:   remoteChip,
		capabilities: capabilities,
	}
}

// RemoteChip returns the chip this endpoint reaches directly, if known.
func (e *Endpoint) RemoteChip() *ChipCoord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.remoteChip
}

// SetRemoteChip records the chip this endpoint was discovered to reach.
func (e *Endpoint) SetRemoteChip(c ChipCoord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remoteChip = &c
}

// Capabilities reports the capability flags this endpoint was constructed
// with.
func (e *Endpoint) Capabilities() Capability {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.capabilities
}

// RemoteAddr is the endpoint's fixed remote address.
func (e *Endpoint) RemoteAddr() *net.UDPAddr {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.remoteAddr
}

// Send transmits one UDP datagram. Delivers or fails with Io (spec §4.2).
func (e *Endpoint) Send(ctx context.Context, data []byte) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return errors.NewClosed("send")
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := e.conn.SetWriteDeadline(deadline); err != nil {
			return &errors.IoError{Command: "send", Destination: e.remoteAddr.String(), Err: err}
		}
	} else {
		_ = e.conn.SetWriteDeadline(time.Time{})
	}

	if _, err := e.conn.Write(data); err != nil {
		return &errors.IoError{Command: "send", Destination: e.remoteAddr.String(), Err: err}
	}
	return nil
}

// Receive polls for a single datagram, bounded by timeout. Returns
// Timeout if nothing arrives within the budget, or Io on a non-timeout
// socket error.
func (e *Endpoint) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, errors.NewClosed("receive")
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := e.conn.SetReadDeadline(deadline); err != nil {
		return nil, &errors.IoError{Command: "receive", Destination: e.remoteAddr.String(), Err: err}
	}

	buf := make([]byte, 512)
	n, err := e.conn.Read(buf)
	if err != nil {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return nil, errors.NewTimeout("receive")
		}
		return nil, &errors.IoError{Command: "receive", Destination: e.remoteAddr.String(), Err: err}
	}
	return buf[:n], nil
}

// Close releases the underlying socket. Idempotent.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.conn.Close()
}

// IsClosed reports whether Close has been called.
func (e *Endpoint) IsClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}
