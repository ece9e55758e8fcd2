// Package machine holds the in-memory topology model accumulated during
// discovery (spec §4.7, §3 "Machine"): chips, their routers and links, and
// per-chip metadata. Immutable after the discovery round that built it.
package machine

import "fmt"

// LinkCount is the number of link IDs a router exposes (0..5).
const LinkCount = 6

// ChipCoord is a chip's (x, y), 0..255 each.
type ChipCoord struct {
	X, Y uint8
}

func (c ChipCoord) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Y) }

// Link is one of a router's six outgoing connections to a neighbour chip.
type Link struct {
	ID            int // 0..5
	Destination   ChipCoord
	DefaultRoute  bool // patched true when this is the opposite-link default back-route
}

// Router holds a chip's link table and its first free routing entry.
type Router struct {
	Links           [LinkCount]*Link // nil where no link was discovered
	FirstFreeEntry  int
}

// Chip is one node of the discovered machine graph.
type Chip struct {
	Coord            ChipCoord
	Router           Router
	VirtualCoreIDs   []int
	CPUClockMHz      int
	IOBufSize        int
	EthernetIP       string     // non-empty only for ethernet chips
	NearestEthernet  ChipCoord
	SDRAMHeapAddress uint32
}

// Machine is the immutable graph produced by one discovery round (spec
// §4.7). Further rounds build a new Machine rather than mutating this one.
type Machine struct {
	Width, Height int
	chips         map[ChipCoord]*Chip
}

// New returns an empty Machine of the given logical dimensions, ready for
// a Builder to populate during discovery.
func New(width, height int) *Machine {
	return &Machine{Width: width, Height: height, chips: make(map[ChipCoord]*Chip)}
}

// Chip looks up a discovered chip by coordinate.
func (m *Machine) Chip(c ChipCoord) (*Chip, bool) {
	chip, ok := m.chips[c]
	return chip, ok
}

// Chips returns every discovered chip, in no particular order.
func (m *Machine) Chips() []*Chip {
	out := make([]*Chip, 0, len(m.chips))
	for _, c := range m.chips {
		out = append(out, c)
	}
	return out
}

// NumChips reports how many chips this Machine holds.
func (m *Machine) NumChips() int { return len(m.chips) }

// Builder accumulates chips and links during one breadth-first discovery
// round (spec §4.6 "Discovery algorithm"). It is not safe for concurrent
// use; discovery is single-threaded (spec §5).
type Builder struct {
	m *Machine
}

// NewBuilder starts building atop a fresh Machine of the given dimensions.
func NewBuilder(width, height int) *Builder {
	return &Builder{m: New(width, height)}
}

// AddChip registers a newly discovered chip. No-op if already present.
func (b *Builder) AddChip(coord ChipCoord) *Chip {
	if c, ok := b.m.chips[coord]; ok {
		return c
	}
	c := &Chip{Coord: coord, NearestEthernet: coord}
	b.m.chips[coord] = c
	return c
}

// AddLink records a discovered link from src on linkID to dst, and patches
// the opposite link on dst as a default route back, unless dst already
// declares a real link there (spec §4.6). The opposite of link i is link
// (i+3) mod 6, the standard SpiNNaker hex-mesh pairing. An XOR-3 pairing
// agrees with it only for links 0 and 3: it pairs 1 with 2, and gives 6
// and 7 for links 4 and 5, out of range for Links.
func (b *Builder) AddLink(src ChipCoord, linkID int, dst ChipCoord) error {
	if linkID < 0 || linkID >= LinkCount {
		return fmt.Errorf("link id %d out of range 0..%d", linkID, LinkCount-1)
	}
	srcChip, ok := b.m.chips[src]
	if !ok {
		return fmt.Errorf("source chip %s not yet added", src)
	}
	srcChip.Router.Links[linkID] = &Link{ID: linkID, Destination: dst}

	dstChip, ok := b.m.chips[dst]
	if !ok {
		return fmt.Errorf("destination chip %s not yet added", dst)
	}
	oppositeID := (linkID + 3) % LinkCount
	if dstChip.Router.Links[oppositeID] == nil {
		dstChip.Router.Links[oppositeID] = &Link{ID: oppositeID, Destination: src, DefaultRoute: true}
	}
	return nil
}

// Build finalizes and returns the Machine. The Builder must not be used
// afterwards.
func (b *Builder) Build() *Machine {
	return b.m
}
