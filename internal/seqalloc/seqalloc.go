// Package seqalloc implements the process-wide sequence number generator
// (spec §4.3): a mutex-protected monotonic counter modulo 2^16, shared
// across every pipeline so that responses multiplexed through the same
// chip-0 monitor are never confused.
package seqalloc

import "sync"

// Allocator hands out sequence numbers. The zero value is ready to use.
type Allocator struct {
	mu   sync.Mutex
	next uint16
}

// New returns an Allocator starting at 0.
func New() *Allocator {
	return &Allocator{}
}

// Next returns the next sequence number, wrapping modulo 2^16. Successive
// calls differ by exactly 1 modulo 2^16.
func (a *Allocator) Next() uint16 {
	a.mu.Lock()
	defer a.mu.Unlock()
	seq := a.next
	a.next++
	return seq
}
