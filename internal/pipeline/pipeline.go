// Package pipeline implements the windowed, retrying SCP request/response
// engine bound to one endpoint (spec §4.4) — the core of the core: it
// multiplexes outstanding commands over a single UDP socket, applies a
// configured retry policy to response codes and receive timeouts, and
// dispatches success/failure callbacks in arrival order.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/spinnaker-go/spinnman/internal/errors"
	"github.com/spinnaker-go/spinnman/internal/logging"
	"github.com/spinnaker-go/spinnman/internal/scp"
	"github.com/spinnaker-go/spinnman/internal/sdp"
	"github.com/spinnaker-go/spinnman/internal/seqalloc"
	"github.com/spinnaker-go/spinnman/internal/transport"
)

// drainReceiveBudget is the receive timeout used by intermediate drain
// steps while waiting for window room (spec §4.4 step 2).
const drainReceiveBudget = 100 * time.Millisecond

// Request describes one SCP command submission. Encode stamps the
// allocated sequence number into the wire frame; Decode interprets a
// successful response's payload. OnSuccess/OnError are invoked at most
// once each, never both.
type Request struct {
	Command   scp.Command
	Destination string // e.g. "(1,2,p=3)", used only for error context
	NRetries  int      // 0 means use the pipeline's default
	Encode    func(seq uint16) []byte
	Decode    func(payload []byte) (interface{}, error)
	OnSuccess func(interface{})
	OnError   func(error)
}

// pendingRequest is a request awaiting a response or retry (spec §3).
type pendingRequest struct {
	sequence         uint16
	raw              []byte
	command          scp.Command
	destination      string
	decode           func([]byte) (interface{}, error)
	onSuccess        func(interface{})
	onError          func(error)
	retriesRemaining int
	retryReasons     []string
	sentAt           time.Time
}

// Counters accumulates pipeline statistics for diagnostics and metrics
// (spec §8 scenarios reference n_timeouts, n_resent, n_retry_code_resent).
type Counters struct {
	Timeouts         int
	Resent           int
	RetryCodeResent  int
}

// Pipeline is the per-endpoint windowed request engine (spec §3
// PipelineState, §4.4).
type Pipeline struct {
	endpoint      *transport.Endpoint
	seqAlloc      *seqalloc.Allocator
	logger        *logging.Logger

	retryCodes      map[scp.Result]bool
	nRetriesDefault int
	packetTimeout   time.Duration

	// Window state, protected by mu.
	mu                       sync.Mutex
	nChannels                int
	intermediateChannelWaits int
	outstanding              int
	pending                  map[uint16]*pendingRequest
	counters                 Counters
}

// Option configures a Pipeline at construction.
type Option func(*Pipeline)

// WithRetryCodes overrides the default retry set.
func WithRetryCodes(codes map[scp.Result]bool) Option {
	return func(p *Pipeline) { p.retryCodes = codes }
}

// WithNRetries overrides the default per-request retry count.
func WithNRetries(n int) Option {
	return func(p *Pipeline) { p.nRetriesDefault = n }
}

// WithPacketTimeout overrides the default receive budget used by drain
// and finish.
func WithPacketTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.packetTimeout = d }
}

// WithNChannels fixes the window size at construction, skipping the
// auto-tuner (spec §9 design note).
func WithNChannels(n int) Option {
	return func(p *Pipeline) {
		p.nChannels = n
		if n-8 > 0 {
			p.intermediateChannelWaits = n - 8
		}
	}
}

// WithLogger attaches a logger for retry/request diagnostics.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New constructs a Pipeline bound to endpoint, sharing seqAlloc with every
// other pipeline in the process (spec §4.3).
func New(endpoint *transport.Endpoint, seqAlloc *seqalloc.Allocator, opts ...Option) *Pipeline {
	p := &Pipeline{
		endpoint:        endpoint,
		seqAlloc:        seqAlloc,
		logger:          logging.Discard(),
		retryCodes:      scp.DefaultRetrySet(),
		nRetriesDefault: 3,
		packetTimeout:   500 * time.Millisecond,
		pending:         make(map[uint16]*pendingRequest),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Counters returns a snapshot of the pipeline's retry/timeout statistics.
func (p *Pipeline) Counters() Counters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counters
}

// Outstanding returns the current outstanding request count.
func (p *Pipeline) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}

// Submit allocates a sequence number, encodes, and transmits req,
// blocking first if the window is full (spec §4.4 steps 1-4).
func (p *Pipeline) Submit(req Request) error {
	p.mu.Lock()

	if p.nChannels == 0 {
		n := p.outstanding + 8
		if n < 12 {
			n = 12
		}
		p.nChannels = n
		w := n - 8
		if w < 0 {
			w = 0
		}
		p.intermediateChannelWaits = w
	}

	for p.outstanding >= p.nChannels {
		target := p.nChannels - p.intermediateChannelWaits
		if target >= p.nChannels {
			// A window fixed below 8 (WithNChannels) yields
			// intermediate_channel_waits=0; drain at nChannels itself
			// would be a no-op, so always free at least one slot.
			target = p.nChannels - 1
		}
		if target < 0 {
			target = 0
		}
		p.mu.Unlock()
		p.drain(target, drainReceiveBudget)
		p.mu.Lock()
	}

	nRetries := req.NRetries
	if nRetries == 0 {
		nRetries = p.nRetriesDefault
	}

	seq := p.seqAlloc.Next()
	raw := req.Encode(seq)

	pr := &pendingRequest{
		sequence:         seq,
		raw:              raw,
		command:          req.Command,
		destination:      req.Destination,
		decode:           req.Decode,
		onSuccess:        req.OnSuccess,
		onError:          req.OnError,
		retriesRemaining: nRetries,
		sentAt:           time.Now(),
	}

	if err := p.endpoint.Send(context.Background(), raw); err != nil {
		p.mu.Unlock()
		if req.OnError != nil {
			req.OnError(err)
		}
		return err
	}

	p.pending[seq] = pr
	p.outstanding++
	p.mu.Unlock()
	return nil
}

// Finish drains until no requests remain outstanding, using packet_timeout
// as the receive budget (spec §4.4).
func (p *Pipeline) Finish() {
	p.drain(0, p.packetTimeout)
}

// Close drops every pending request with a ClosedError and releases the
// endpoint (spec §5 "close() on the transceiver").
func (p *Pipeline) Close() error {
	p.mu.Lock()
	for seq, pr := range p.pending {
		delete(p.pending, seq)
		p.outstanding--
		if pr.onError != nil {
			pr.onError(errors.NewClosed(pr.command.String()))
		}
	}
	p.mu.Unlock()
	return p.endpoint.Close()
}

// drain runs receive/resend cycles until outstanding <= target.
func (p *Pipeline) drain(target int, timeout time.Duration) {
	for {
		p.mu.Lock()
		outstanding := p.outstanding
		p.mu.Unlock()
		if outstanding <= target {
			return
		}

		data, err := p.endpoint.Receive(context.Background(), timeout)
		if err != nil {
			if _, isTimeout := err.(*errors.TimeoutError); isTimeout {
				p.handleReceiveTimeout()
				continue
			}
			p.handleReceiveIoError(err)
			continue
		}
		p.handleResponse(data)
	}
}

func (p *Pipeline) handleReceiveTimeout() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counters.Timeouts++

	seqs := make([]uint16, 0, len(p.pending))
	for seq := range p.pending {
		seqs = append(seqs, seq)
	}
	for _, seq := range seqs {
		pr, ok := p.pending[seq]
		if !ok {
			continue
		}
		p.resendLocked(pr, "timeout")
	}
}

// handleReceiveIoError treats a hard socket error the same as a timeout
// for every still-pending request, but tags the reason distinctly so it
// never masquerades as a pure-timeout failure.
func (p *Pipeline) handleReceiveIoError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	seqs := make([]uint16, 0, len(p.pending))
	for seq := range p.pending {
		seqs = append(seqs, seq)
	}
	for _, seq := range seqs {
		pr, ok := p.pending[seq]
		if !ok {
			continue
		}
		p.resendLocked(pr, "io: "+err.Error())
	}
}

func (p *Pipeline) handleResponse(data []byte) {
	_, scpHdr, payload, err := sdp.Decode(data)
	if err != nil {
		// A malformed frame carries no usable sequence; nothing in the
		// pending map can be resolved from it.
		return
	}

	p.mu.Lock()
	pr, ok := p.pending[scpHdr.Sequence]
	if !ok {
		// Unknown sequence: late duplicate, silently discarded (spec §9
		// open question (a) — ignore policy, not logged).
		p.mu.Unlock()
		return
	}

	result := scp.Result(scpHdr.Command)
	if p.retryCodes[result] {
		if pr.retriesRemaining > 0 {
			p.counters.RetryCodeResent++
		}
		p.resendLocked(pr, result.String())
		p.mu.Unlock()
		return
	}

	delete(p.pending, pr.sequence)
	p.outstanding--
	p.mu.Unlock()

	if result != scp.RCOk {
		if pr.onError != nil {
			pr.onError(&errors.UnexpectedResponseError{
				Operation:  pr.destination,
				Command:    pr.command.String(),
				ResultCode: uint16(result),
			})
		}
		return
	}

	value, err := pr.decode(payload)
	if err != nil {
		if pr.onError != nil {
			pr.onError(err)
		}
		return
	}
	if pr.onSuccess != nil {
		pr.onSuccess(value)
	}
}

// resendLocked implements the resend rules (spec §4.4). Caller must hold
// p.mu.
func (p *Pipeline) resendLocked(pr *pendingRequest, reason string) {
	if pr.retriesRemaining <= 0 {
		allTimeout := reason == "timeout"
		for _, r := range pr.retryReasons {
			if r != "timeout" {
				allTimeout = false
			}
		}
		delete(p.pending, pr.sequence)
		p.outstanding--

		var failErr error
		if allTimeout {
			failErr = errors.NewTimeout(pr.command.String())
		} else {
			failErr = errors.NewIo(pr.command.String(), pr.destination, append(pr.retryReasons, reason))
		}
		if pr.onError != nil {
			pr.onError(failErr)
		}
		return
	}

	pr.retriesRemaining--
	pr.retryReasons = append(pr.retryReasons, reason)
	p.counters.Resent++
	p.logger.LogRetry(pr.command.String(), pr.sequence, reason, pr.retriesRemaining)

	if err := p.endpoint.Send(context.Background(), pr.raw); err != nil {
		delete(p.pending, pr.sequence)
		p.outstanding--
		if pr.onError != nil {
			pr.onError(&errors.IoError{Command: pr.command.String(), Destination: pr.destination, Err: err})
		}
	}
}
