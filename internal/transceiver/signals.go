package transceiver

import (
	"context"
	"fmt"

	"github.com/spinnaker-go/spinnman/internal/errors"
	"github.com/spinnaker-go/spinnman/internal/scp"
)

// Signal is an application control signal value carried in arg1 of
// SendSignal (spec §4.6).
type Signal uint32

const (
	SignalStart   Signal = 1
	SignalStop    Signal = 2
	SignalPause   Signal = 3
	SignalContinue Signal = 4
	SignalExit    Signal = 5
)

// RunState is a core's run-time state, as reported by CountState (spec
// §4.6).
type RunState uint8

const (
	RunStateDead RunState = iota
	RunStatePowerDown
	RunStateRunTimeException
	RunStateWatchdog
	RunStateInit
	RunStateReady
	RunStateC0Running
	RunStateSync0
	RunStateSync1
	RunStatePauseBreak
)

// SendSignal delivers appID a control signal via a single SCP round-trip
// on (0,0) (spec §4.6).
func (t *Transceiver) SendSignal(ctx context.Context, appID uint8, signal Signal) error {
	if err := t.checkOpen("send_signal"); err != nil {
		return err
	}
	_, err := t.submitAndWait(ctx, 0, 0, scp.CmdSendSignal, fmt.Sprintf("send_signal app=%d", appID),
		uint32(appID)|uint32(signal)<<8, 0xFFFF, 0, nil, okDecode, 3)
	return err
}

// StopApplication sends the Exit signal to every core running appID
// (spec §4.6).
func (t *Transceiver) StopApplication(ctx context.Context, appID uint8) error {
	if err := t.checkOpen("stop_application"); err != nil {
		return err
	}
	return t.SendSignal(ctx, appID, SignalExit)
}

// GetCoreStateCount counts the cores of appID currently in state (spec
// §4.6).
func (t *Transceiver) GetCoreStateCount(ctx context.Context, appID uint8, state RunState) (int, error) {
	if err := t.checkOpen("get_core_state_count"); err != nil {
		return 0, err
	}
	result, err := t.submitAndWait(ctx, 0, 0, scp.CmdCountState, fmt.Sprintf("count_state app=%d", appID),
		uint32(appID)|uint32(state)<<8, 0, 0, nil, decodeUint32, 3)
	if err != nil {
		return 0, err
	}
	return int(result.(uint32)), nil
}

// CPUInfo is the decoded CPU_INFO_BYTES record for one core (spec §4.6).
type CPUInfo struct {
	X, Y          uint8
	P             uint8
	State         RunState
	ApplicationID uint8
	IOBufAddress  uint32
}

// GetCPUInformation derives each requested core's
// cpu_info_base + CPU_INFO_BYTES*p address and fetches it via the
// pipeline; cores=nil means every discovered core (spec §4.6).
func (t *Transceiver) GetCPUInformation(ctx context.Context, cores []CoreLocation) ([]CPUInfo, error) {
	if err := t.checkOpen("get_cpu_information"); err != nil {
		return nil, err
	}
	if cores == nil {
		m := t.Machine()
		if m == nil {
			return nil, errors.NewInvalidParameter("cores", nil, "no discovered machine; pass explicit core_subsets or run Discover first")
		}
		for _, chip := range m.Chips() {
			for _, p := range chip.VirtualCoreIDs {
				cores = append(cores, CoreLocation{X: chip.Coord.X, Y: chip.Coord.Y, P: uint8(p)})
			}
		}
	}

	infos := make([]CPUInfo, 0, len(cores))
	for _, c := range cores {
		base := SystemVariableBaseAddress + CPUInfoBaseOffset
		addr, err := t.ReadMemory(ctx, c.X, c.Y, base, 4)
		if err != nil {
			return nil, err
		}
		cpuInfoBase := leUint32(addr)

		raw, err := t.ReadMemory(ctx, c.X, c.Y, cpuInfoBase+CPUInfoBytes*uint32(c.P), CPUInfoBytes)
		if err != nil {
			return nil, err
		}
		infos = append(infos, decodeCPUInfo(c, raw))
	}
	return infos, nil
}

// CoreLocation addresses one core.
type CoreLocation struct {
	X, Y uint8
	P    uint8
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func decodeCPUInfo(loc CoreLocation, raw []byte) CPUInfo {
	info := CPUInfo{X: loc.X, Y: loc.Y, P: loc.P}
	if len(raw) > 0 {
		info.State = RunState(raw[0])
	}
	if len(raw) > 1 {
		info.ApplicationID = raw[1]
	}
	if len(raw) >= 8 {
		info.IOBufAddress = leUint32(raw[4:8])
	}
	return info
}
