package transceiver

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/spinnaker-go/spinnman/internal/errors"
	"github.com/spinnaker-go/spinnman/internal/machine"
)

// systemVariableBytes is how much of the system variable block a chip or
// ReadLink query fetches (original_source model/system_variables.py's
// SystemVariables struct size; not independently verifiable against a
// retained constants module, same caveat as the other memory-map
// constants in this package).
const systemVariableBytes = 256

// System-variable-block field offsets this package actually decodes.
// x/y/links_available/virtual_core_ids/cpu_clock_mhz/iobuf_size/
// first_free_router_entry/ip_address mirror
// original_source/spinnman/transceiver.py's _make_chip, whose exact byte
// offsets live in a constants module not retained alongside it.
const (
	svXOffset               = 0x00
	svYOffset               = 0x01
	svLinksAvailableOffset  = 0x02 // one byte, bit i set => link i present
	svNumCoresOffset        = 0x03
	svVirtualCoreMaskOffset = 0x04 // 4 bytes, bit p set => core p present
	svCPUClockMHzOffset     = 0x08
	svFirstFreeRouterOffset = 0x0C
	svIOBufSizeOffset       = 0x10
	svSDRAMHeapOffset       = 0x14
	svIPAddressOffset       = 0x18 // 4 bytes, 0.0.0.0 if not an ethernet chip
)

type systemVariables struct {
	X, Y                 uint8
	LinksAvailable       []int
	VirtualCoreIDs       []int
	CPUClockMHz          int
	FirstFreeRouterEntry int
	IOBufSize            int
	SDRAMHeapAddress     uint32
	IPAddress            string
}

func decodeSystemVariables(raw []byte) (*systemVariables, error) {
	if len(raw) < svIPAddressOffset+4 {
		return nil, errors.NewMalformedPacket("system variable block shorter than expected")
	}
	sv := &systemVariables{
		X: raw[svXOffset],
		Y: raw[svYOffset],
	}
	linkBits := raw[svLinksAvailableOffset]
	for i := 0; i < machine.LinkCount; i++ {
		if linkBits&(1<<uint(i)) != 0 {
			sv.LinksAvailable = append(sv.LinksAvailable, i)
		}
	}
	coreMask := binary.LittleEndian.Uint32(raw[svVirtualCoreMaskOffset:])
	for p := 0; p < 32; p++ {
		if coreMask&(1<<uint(p)) != 0 {
			sv.VirtualCoreIDs = append(sv.VirtualCoreIDs, p)
		}
	}
	sv.CPUClockMHz = int(binary.LittleEndian.Uint32(raw[svCPUClockMHzOffset:]))
	sv.FirstFreeRouterEntry = int(binary.LittleEndian.Uint32(raw[svFirstFreeRouterOffset:]))
	sv.IOBufSize = int(binary.LittleEndian.Uint32(raw[svIOBufSizeOffset:]))
	sv.SDRAMHeapAddress = binary.LittleEndian.Uint32(raw[svSDRAMHeapOffset:])
	ipBytes := raw[svIPAddressOffset : svIPAddressOffset+4]
	if ipBytes[0] != 0 || ipBytes[1] != 0 || ipBytes[2] != 0 || ipBytes[3] != 0 {
		sv.IPAddress = fmt.Sprintf("%d.%d.%d.%d", ipBytes[0], ipBytes[1], ipBytes[2], ipBytes[3])
	}
	return sv, nil
}

// discoveryFilter identifies chips and cores filtered out of discovery by
// configuration (spec §4.6 "ignore_chips"/"ignore_cores"/"max_core_id").
type discoveryFilter struct {
	ignoreChips map[[2]int]bool
	ignoreCores map[[3]int]bool
	maxCoreID   int
}

func newDiscoveryFilter(ignoreChips [][2]int, ignoreCores [][3]int, maxCoreID int) discoveryFilter {
	f := discoveryFilter{
		ignoreChips: make(map[[2]int]bool, len(ignoreChips)),
		ignoreCores: make(map[[3]int]bool, len(ignoreCores)),
		maxCoreID:   maxCoreID,
	}
	for _, c := range ignoreChips {
		f.ignoreChips[c] = true
	}
	for _, c := range ignoreCores {
		f.ignoreCores[c] = true
	}
	return f
}

func (f discoveryFilter) chipIgnored(x, y uint8) bool {
	return f.ignoreChips[[2]int{int(x), int(y)}]
}

func (f discoveryFilter) coreAllowed(x, y uint8, p int) bool {
	if f.maxCoreID > 0 && p > f.maxCoreID {
		return false
	}
	return !f.ignoreCores[[3]int{int(x), int(y), p}]
}

// Discover runs one breadth-first discovery round over the machine's
// chip-to-chip links and replaces the published Machine (spec §4.6
// "Discovery algorithm", §4.7). get_scamp_version must have already
// succeeded; callers normally invoke this after EnsureReady.
func (t *Transceiver) Discover(ctx context.Context, dims [2]int) (*machine.Machine, error) {
	if err := t.checkOpen("discover"); err != nil {
		return nil, err
	}

	filter := newDiscoveryFilter(t.cfg.Machine.IgnoreChips, t.cfg.Machine.IgnoreCores, t.cfg.Machine.MaxCoreID)

	raw, err := t.ReadMemory(ctx, 0, 0, SystemVariableBaseAddress, systemVariableBytes)
	if err != nil {
		return nil, err
	}
	rootSV, err := decodeSystemVariables(raw)
	if err != nil {
		return nil, err
	}

	builder := machine.NewBuilder(dims[0], dims[1])
	type queued struct {
		coord machine.ChipCoord
		sv    *systemVariables
	}
	root := queued{coord: machine.ChipCoord{X: rootSV.X, Y: rootSV.Y}, sv: rootSV}
	t.applyChip(builder, filter, root.coord, root.sv)

	visited := map[machine.ChipCoord]bool{root.coord: true}
	queue := []queued{root}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, link := range cur.sv.LinksAvailable {
			neighbourRaw, err := t.readLink(ctx, cur.coord.X, cur.coord.Y, uint32(link), SystemVariableBaseAddress, systemVariableBytes)
			if err != nil {
				// Any link-read failure is treated as "link absent" (spec §4.6).
				continue
			}
			neighbourSV, err := decodeSystemVariables(neighbourRaw)
			if err != nil {
				continue
			}
			neighbourCoord := machine.ChipCoord{X: neighbourSV.X, Y: neighbourSV.Y}

			if !filter.chipIgnored(cur.coord.X, cur.coord.Y) && !filter.chipIgnored(neighbourCoord.X, neighbourCoord.Y) {
				if !visited[neighbourCoord] {
					t.applyChip(builder, filter, neighbourCoord, neighbourSV)
					visited[neighbourCoord] = true
					queue = append(queue, queued{coord: neighbourCoord, sv: neighbourSV})
				}
				if err := builder.AddLink(cur.coord, link, neighbourCoord); err != nil {
					t.logger.Error("discover: add link %d from %s to %s: %v", link, cur.coord, neighbourCoord, err)
				}
			}
		}
	}

	m := builder.Build()
	t.mu.Lock()
	t.machineGen = m
	t.mu.Unlock()
	return m, nil
}

func (t *Transceiver) applyChip(builder *machine.Builder, filter discoveryFilter, coord machine.ChipCoord, sv *systemVariables) {
	if filter.chipIgnored(coord.X, coord.Y) {
		return
	}
	chip := builder.AddChip(coord)
	chip.CPUClockMHz = sv.CPUClockMHz
	chip.IOBufSize = sv.IOBufSize
	chip.SDRAMHeapAddress = sv.SDRAMHeapAddress
	chip.EthernetIP = sv.IPAddress
	chip.Router.FirstFreeEntry = sv.FirstFreeRouterEntry

	for _, p := range sv.VirtualCoreIDs {
		if filter.coreAllowed(coord.X, coord.Y, p) {
			chip.VirtualCoreIDs = append(chip.VirtualCoreIDs, p)
		}
	}
}
