// Package bmp builds the SCP-shaped request argument payloads for Board
// Management Processor operations (spec §6: "BMP-specific hardware
// management beyond the command shapes it shares with SCP" is out of
// scope; this package is that shared shape). A BMP request differs from a
// chip request only in how its destination and board mask are formed: the
// command, sequence, and argument layout are ordinary SCP.
package bmp

import (
	"encoding/binary"

	"github.com/spinnaker-go/spinnman/internal/errors"
	"github.com/spinnaker-go/spinnman/internal/scp"
)

// LEDAction is the state a SetLED call drives an LED to.
type LEDAction int

const (
	LEDOff LEDAction = iota
	LEDOn
	LEDToggle
)

// PowerCommand selects power-on or power-off for a PowerRequest.
type PowerCommand int

const (
	PowerOff PowerCommand = 0
	PowerOn  PowerCommand = 1
)

// BoardMask packs a set of board numbers (0-23 on a frame) into the
// bitmask SCPPowerRequest / SCPBMPSetLedRequest expect in argument_2.
func BoardMask(boards []int) (uint32, error) {
	var mask uint32
	for _, b := range boards {
		if b < 0 || b > 31 {
			return 0, errors.NewInvalidParameter("board", b, "board number out of range 0..31")
		}
		mask |= 1 << uint(b)
	}
	return mask, nil
}

// PowerArgs builds the (arg1, arg2) pair for a CMD_BMP_POWER request:
// a power command packed with a millisecond inter-board delay, plus the
// board bitmask.
func PowerArgs(cmd PowerCommand, boards []int, delaySeconds float64) (arg1, arg2 uint32, err error) {
	mask, err := BoardMask(boards)
	if err != nil {
		return 0, 0, err
	}
	arg1 = (uint32(delaySeconds*1000) << 16) | uint32(cmd)
	return arg1, mask, nil
}

// SetLEDArgs builds the (arg1, arg2) pair for a CMD_LED request that sets
// one or more LEDs to the given action on each of the given boards.
func SetLEDArgs(leds []int, action LEDAction, boards []int) (arg1, arg2 uint32, err error) {
	mask, err := BoardMask(boards)
	if err != nil {
		return 0, 0, err
	}
	for _, led := range leds {
		if led < 0 || led > 15 {
			return 0, 0, errors.NewInvalidParameter("led", led, "led number out of range 0..15")
		}
		arg1 |= uint32(action) << uint(led*2)
	}
	return arg1, mask, nil
}

// WriteFPGARegisterArgs builds the (arg1, arg2, arg3, data) for a
// CommandFPGAWrite request that writes value to an FPGA SPI register,
// rounding addr down to the nearest word boundary.
func WriteFPGARegisterArgs(fpgaNum int, addr uint32, value uint32) (arg1, arg2, arg3 uint32, data []byte) {
	data = make([]byte, 4)
	binary.LittleEndian.PutUint32(data, value)
	return addr &^ 0x3, 4, uint32(fpgaNum), data
}

// ReadFPGARegisterArgs builds the (arg1, arg2, arg3) for a CommandFPGARead
// request that reads one 32-bit FPGA SPI register.
func ReadFPGARegisterArgs(fpgaNum int, addr uint32) (arg1, arg2, arg3 uint32) {
	return addr &^ 0x3, 4, uint32(fpgaNum)
}

// ADCReadResult is the decoded payload of a CMD_BMP_ADC_READ response.
type ADCReadResult struct {
	FPGATemperature   [3]int16
	BoardTemperature  [2]int16
	VoltageMillivolts [8]uint16
}

// DecodeADCRead parses a CMD_BMP_ADC_READ response payload into an
// ADCReadResult (fixed little-endian layout: three FPGA temperatures, two
// board temperatures, then eight rail voltages).
func DecodeADCRead(payload []byte) (*ADCReadResult, error) {
	const wantLen = 3*2 + 2*2 + 8*2
	if len(payload) < wantLen {
		return nil, errors.NewMalformedPacket("adc read payload too short")
	}
	var r ADCReadResult
	off := 0
	for i := range r.FPGATemperature {
		r.FPGATemperature[i] = int16(binary.LittleEndian.Uint16(payload[off:]))
		off += 2
	}
	for i := range r.BoardTemperature {
		r.BoardTemperature[i] = int16(binary.LittleEndian.Uint16(payload[off:]))
		off += 2
	}
	for i := range r.VoltageMillivolts {
		r.VoltageMillivolts[i] = binary.LittleEndian.Uint16(payload[off:])
		off += 2
	}
	return &r, nil
}

// Command re-exports the BMP-relevant SCP opcodes under their shared
// names for callers that only deal with BMP traffic.
const (
	CommandPower     = scp.CmdBMPPower
	CommandSetLED    = scp.CmdLED
	CommandFPGARead  = scp.CmdBMPFPGARead
	CommandFPGAWrite = scp.CmdBMPFPGAWrite
	CommandADCRead   = scp.CmdBMPADCRead
	CommandVersion   = scp.CmdBMPVersion
)
