// Package locks implements the two mutual-exclusion domains the facade
// needs (spec §4.8): a per-chip execute lock, and a flood lock where
// execute_flood is the sole writer and execute(x,y) holds a reader slot.
package locks

import "sync"

// ChipCoord is a chip's (x, y), 0..255 each.
type ChipCoord struct {
	X, Y uint8
}

// ChipLocks maps chip coordinates to per-chip execute mutexes, created
// lazily and kept for the lifetime of the transceiver.
type ChipLocks struct {
	mu    sync.Mutex
	locks map[ChipCoord]*sync.Mutex
}

// NewChipLocks returns an empty per-chip lock table.
func NewChipLocks() *ChipLocks {
	return &ChipLocks{locks: make(map[ChipCoord]*sync.Mutex)}
}

// Lock acquires the execute mutex for coord, creating it on first use.
func (c *ChipLocks) Lock(coord ChipCoord) {
	c.mu.Lock()
	m, ok := c.locks[coord]
	if !ok {
		m = &sync.Mutex{}
		c.locks[coord] = m
	}
	c.mu.Unlock()
	m.Lock()
}

// Unlock releases the execute mutex for coord. coord must already have
// been locked by this caller.
func (c *ChipLocks) Unlock(coord ChipCoord) {
	c.mu.Lock()
	m := c.locks[coord]
	c.mu.Unlock()
	m.Unlock()
}

// FloodLock implements the flood vs. chip-execute readers-writers pattern
// (spec §4.8): execute_flood is the writer (excludes every chip execute);
// execute(x,y) is a reader (excludes flood, but runs concurrently with
// other chip executes on different chips).
//
// This is a hand-rolled readers-writers lock rather than sync.RWMutex
// because the "reader" side (chip execute) must also be excluded from a
// second, independent per-chip mutex (ChipLocks) — sync.RWMutex alone
// cannot express "writer excludes all readers, readers don't exclude each
// other" composed with per-key exclusion, so a condition variable over an
// explicit reader count is used instead, as spec §4.8 describes.
type FloodLock struct {
	mu          sync.Mutex
	cond        *sync.Cond
	readers     int
	writerHeld  bool
	writerWants bool
}

// NewFloodLock returns a ready-to-use FloodLock.
func NewFloodLock() *FloodLock {
	f := &FloodLock{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// AcquireReader blocks until no flood (writer) is in progress or pending,
// then marks one chip-execute as in flight.
func (f *FloodLock) AcquireReader() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.writerHeld || f.writerWants {
		f.cond.Wait()
	}
	f.readers++
}

// ReleaseReader ends one chip-execute's hold, waking any waiting flood.
func (f *FloodLock) ReleaseReader() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readers--
	if f.readers == 0 {
		f.cond.Broadcast()
	}
}

// AcquireWriter blocks until every chip-execute reader has released, then
// marks flood as in progress, excluding all further chip executes until
// ReleaseWriter.
func (f *FloodLock) AcquireWriter() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writerWants = true
	for f.readers > 0 || f.writerHeld {
		f.cond.Wait()
	}
	f.writerWants = false
	f.writerHeld = true
}

// ReleaseWriter ends the flood's hold, waking any waiting chip executes or
// floods.
func (f *FloodLock) ReleaseWriter() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writerHeld = false
	f.cond.Broadcast()
}
