// Package listener implements the inbound callback dispatcher for
// unsolicited messages (spec §4.9): a poll loop with a short timeout,
// handing each received packet to every registered callback via a bounded
// worker pool.
package listener

import (
	"context"
	"sync"
	"time"

	"github.com/spinnaker-go/spinnman/internal/errors"
	"github.com/spinnaker-go/spinnman/internal/logging"
	"github.com/spinnaker-go/spinnman/internal/transport"
)

// DefaultPollTimeout is the receive poll budget used when none is given.
const DefaultPollTimeout = 1 * time.Second

// DefaultWorkers is the worker pool size used when none is given.
const DefaultWorkers = 4

// Callback processes one received packet. Panics and errors are caught
// and logged by the listener; they never reach the poll loop.
type Callback func(data []byte) error

// Listener polls a receive-only endpoint and fans each packet out to
// every registered callback through a bounded worker pool.
type Listener struct {
	endpoint    *transport.Endpoint
	logger      *logging.Logger
	pollTimeout time.Duration

	mu        sync.Mutex
	callbacks []Callback

	jobs   chan []byte
	done   chan struct{}
	wg     sync.WaitGroup
	stopMu sync.Mutex
	closed bool
}

// New starts a listener on endpoint with the given worker pool size and
// poll timeout. Pass 0 for either to use the spec defaults.
func New(endpoint *transport.Endpoint, workers int, pollTimeout time.Duration, logger *logging.Logger) *Listener {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	if logger == nil {
		logger = logging.Discard()
	}

	l := &Listener{
		endpoint:    endpoint,
		logger:      logger,
		pollTimeout: pollTimeout,
		jobs:        make(chan []byte, workers*4),
		done:        make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		l.wg.Add(1)
		go l.worker()
	}

	l.wg.Add(1)
	go l.pollLoop()

	return l
}

// AddCallback registers a callback invoked for every subsequent packet.
func (l *Listener) AddCallback(cb Callback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callbacks = append(l.callbacks, cb)
}

func (l *Listener) pollLoop() {
	defer l.wg.Done()
	for {
		select {
		case <-l.done:
			return
		default:
		}

		data, err := l.endpoint.Receive(context.Background(), l.pollTimeout)
		if err != nil {
			if _, isClosed := err.(*errors.ClosedError); isClosed {
				return
			}
			// Timeout and Io are both expected background noise for a
			// poll loop with nothing to deliver; keep polling.
			continue
		}

		select {
		case l.jobs <- data:
		case <-l.done:
			return
		}
	}
}

func (l *Listener) worker() {
	defer l.wg.Done()
	for {
		select {
		case data, ok := <-l.jobs:
			if !ok {
				return
			}
			l.dispatch(data)
		case <-l.done:
			return
		}
	}
}

func (l *Listener) dispatch(data []byte) {
	l.mu.Lock()
	callbacks := append([]Callback(nil), l.callbacks...)
	l.mu.Unlock()

	for _, cb := range callbacks {
		l.runCallback(cb, data)
	}
}

func (l *Listener) runCallback(cb Callback, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("listener callback panicked: %v", r)
		}
	}()
	if err := cb(data); err != nil {
		l.logger.Error("listener callback failed: %v", err)
	}
}

// Close signals the poll loop and the worker pool to stop, closes the
// endpoint, then waits for the poll loop and every worker to exit.
func (l *Listener) Close() error {
	l.stopMu.Lock()
	defer l.stopMu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.done)
	err := l.endpoint.Close()
	l.wg.Wait()
	close(l.jobs)
	return err
}
