package transceiver

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/spinnaker-go/spinnman/internal/errors"
	"github.com/spinnaker-go/spinnman/internal/scp"
)

// MulticastRoute is one entry of a router table (spec §4.6).
type MulticastRoute struct {
	Index     uint16
	RouteBits uint32
	Key       uint32
	Mask      uint32
}

const routeEntrySize = 2 + 2 + 4 + 4 + 4 // index, pad, route_bits, key, mask
const routeTableEntryCount = 1024

// LoadMulticastRoutes serializes routes as {index(16), pad(16),
// route_bits(32), key(32), mask(32)} terminated by a four-word 0xFFFFFFFF
// sentinel, writes the table to the executable load address, allocates
// routing space via RouterAlloc, and initializes the router with
// RouterInit (spec §4.6).
func (t *Transceiver) LoadMulticastRoutes(ctx context.Context, x, y uint8, routes []MulticastRoute, appID uint8) error {
	if err := t.checkOpen("load_multicast_routes"); err != nil {
		return err
	}

	buf := make([]byte, 0, len(routes)*routeEntrySize+16)
	for _, r := range routes {
		entry := make([]byte, routeEntrySize)
		binary.LittleEndian.PutUint16(entry[0:2], r.Index)
		binary.LittleEndian.PutUint32(entry[4:8], r.RouteBits)
		binary.LittleEndian.PutUint32(entry[8:12], r.Key)
		binary.LittleEndian.PutUint32(entry[12:16], r.Mask)
		buf = append(buf, entry...)
	}
	terminator := make([]byte, 16)
	for i := range terminator {
		terminator[i] = 0xFF
	}
	buf = append(buf, terminator...)

	if err := t.WriteMemory(ctx, x, y, ExecutableLoadAddress, buf); err != nil {
		return err
	}

	result, err := t.submitAndWait(ctx, x, y, scp.CmdRouterAlloc, fmt.Sprintf("(%d,%d) router_alloc", x, y),
		scp.RouterAllocOp|uint32(appID)<<8, uint32(len(routes)), 0, nil, decodeUint32, 3)
	if err != nil {
		return err
	}
	baseAddress := result.(uint32)
	if baseAddress == 0 {
		return &errors.OutOfRoutingSpaceError{Chip: fmt.Sprintf("(%d,%d)", x, y)}
	}

	_, err = t.submitAndWait(ctx, x, y, scp.CmdRouterInit, fmt.Sprintf("(%d,%d) router_init", x, y),
		scp.RouterInitOp|uint32(len(routes))<<8, ExecutableLoadAddress, baseAddress, nil, okDecode, 3)
	return err
}

// GetMulticastRoutes reads the 1024-entry router table copy and decodes
// every entry whose route is below 0xFF000000 (a populated entry) and,
// when appID is non-nil, matching that application (spec §4.6).
func (t *Transceiver) GetMulticastRoutes(ctx context.Context, x, y uint8, appID *uint8) ([]MulticastRoute, error) {
	if err := t.checkOpen("get_multicast_routes"); err != nil {
		return nil, err
	}

	raw, err := t.ReadMemory(ctx, x, y, RouterTableCopyAddress, routeTableEntryCount*16)
	if err != nil {
		return nil, err
	}

	var routes []MulticastRoute
	for i := 0; i < routeTableEntryCount; i++ {
		off := i * 16
		entry := raw[off : off+16]
		routeBits := binary.LittleEndian.Uint32(entry[4:8])
		if routeBits >= 0xFF000000 {
			continue
		}
		key := binary.LittleEndian.Uint32(entry[8:12])
		mask := binary.LittleEndian.Uint32(entry[12:16])
		if appID != nil {
			// app_id is its own byte at offset 2 of the entry, not the high
			// byte of route_bits (original_source's get_routes_process.py:
			// struct.unpack_from("<2xBxIII", ...) -> app_id, route, key, mask).
			entryAppID := entry[2]
			if entryAppID != *appID {
				continue
			}
		}
		routes = append(routes, MulticastRoute{
			Index:     uint16(i),
			RouteBits: routeBits,
			Key:       key,
			Mask:      mask,
		})
	}
	return routes, nil
}

// diagnosticFilterAddress is the base of the router diagnostic filter
// register block; filter n lives at base + 4*n.
const diagnosticFilterAddress uint32 = 0xF1000300

// SetDiagnosticFilter writes a 32-bit router diagnostic filter register.
// Positions <= 11 are reserved for SCAMP defaults and only warned about,
// never rejected (spec §4.6).
func (t *Transceiver) SetDiagnosticFilter(ctx context.Context, x, y uint8, position int, value uint32) error {
	if err := t.checkOpen("set_diagnostic_filter"); err != nil {
		return err
	}
	if position <= 11 {
		t.logger.Info("diagnostic filter position %d is reserved for SCAMP defaults", position)
	}
	return t.WriteMemoryWidth(ctx, x, y, diagnosticFilterAddress+uint32(position)*4, value, 4)
}

// GetDiagnosticFilter reads back a router diagnostic filter register.
func (t *Transceiver) GetDiagnosticFilter(ctx context.Context, x, y uint8, position int) (uint32, error) {
	if err := t.checkOpen("get_diagnostic_filter"); err != nil {
		return 0, err
	}
	raw, err := t.ReadMemory(ctx, x, y, diagnosticFilterAddress+uint32(position)*4, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(raw), nil
}

// ClearRouterDiagnosticCounters writes RouterDiagnosticCountersAddress
// with the low 16 bits set to the clear mask for counterIDs and, when
// enable is true, the high 16 bits set to the same mask to re-enable them
// (spec §4.6).
func (t *Transceiver) ClearRouterDiagnosticCounters(ctx context.Context, x, y uint8, enable bool, counterIDs []int) error {
	if err := t.checkOpen("clear_router_diagnostic_counters"); err != nil {
		return err
	}
	var mask uint32
	for _, id := range counterIDs {
		if id < 0 || id > 15 {
			return errors.NewInvalidParameter("counter_id", id, "must be 0..15")
		}
		mask |= 1 << uint(id)
	}
	value := mask
	if enable {
		value |= mask << 16
	}
	return t.WriteMemoryWidth(ctx, x, y, RouterDiagnosticCountersAddress, value, 4)
}

// dpriEmergencyTimeoutAddress is the DPRI emergency-timeout register in the
// diagnostic-filter register block; ExitDPRI and
// SetDPRIRouterEmergencyTimeout send SCP commands and do not access it
// (original_source processes/exit_dpri_process.py,
// set_dpri_router_emergency_timeout_process.py; supplemented into
// SPEC_FULL).
const dpriEmergencyTimeoutAddress uint32 = 0xF1000310

// ExitDPRI clears the dropped-packet-reinjection enable bit, restoring
// normal router operation.
func (t *Transceiver) ExitDPRI(ctx context.Context, x, y uint8) error {
	if err := t.checkOpen("exit_dpri"); err != nil {
		return err
	}
	_, err := t.submitAndWait(ctx, x, y, scp.CmdDPRIExit, fmt.Sprintf("(%d,%d) exit_dpri", x, y), 0, 0, 0, nil, okDecode, 3)
	return err
}

// SetDPRIRouterEmergencyTimeout sets the router's emergency-routing
// timeout with one CmdDPRISetRouterEmergencyTimeout request carrying the
// mantissa and exponent in arg1; it does not read the existing value.
func (t *Transceiver) SetDPRIRouterEmergencyTimeout(ctx context.Context, x, y uint8, timeoutMantissa, timeoutExponent uint8) error {
	if err := t.checkOpen("set_dpri_router_emergency_timeout"); err != nil {
		return err
	}
	arg1 := uint32(timeoutMantissa) | uint32(timeoutExponent)<<8
	_, err := t.submitAndWait(ctx, x, y, scp.CmdDPRISetRouterEmergencyTimeout, fmt.Sprintf("(%d,%d) set_dpri_router_emergency_timeout", x, y), arg1, 0, 0, nil, okDecode, 3)
	return err
}
