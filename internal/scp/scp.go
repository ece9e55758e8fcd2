// Package scp defines the SCP command opcode and result code constants
// used by the core command set (spec §4.1, §6), plus the small per-command
// argument-packing helpers shared by the pipeline and the transceiver facade.
package scp

import "fmt"

// Command is an SCP request opcode.
type Command uint16

// String renders a command the way log lines and error messages do: the
// symbolic name if known, else a hex fallback.
func (c Command) String() string {
	switch c {
	case CmdVersion:
		return "Version"
	case CmdApplicationRun:
		return "ApplicationRun"
	case CmdReadMemory:
		return "ReadMemory"
	case CmdWriteMemory:
		return "WriteMemory"
	case CmdFloodFillStart:
		return "FloodFillStart"
	case CmdFill:
		return "Fill"
	case CmdReadMemoryWords:
		return "ReadMemoryWords"
	case CmdWriteMemoryWords:
		return "WriteMemoryWords"
	case CmdReadLink:
		return "ReadLink"
	case CmdWriteLink:
		return "WriteLink"
	case CmdFloodFillData:
		return "FloodFillData"
	case CmdFloodFillEnd:
		return "FloodFillEnd"
	case CmdSendSignal:
		return "SendSignal"
	case CmdCountState:
		return "CountState"
	case CmdAppStop:
		return "AppStop"
	case CmdRouterAlloc:
		return "RouterAlloc"
	case CmdRouterInit:
		return "RouterInit"
	case CmdRouterClear:
		return "RouterClear"
	case CmdFixedRouteRead:
		return "FixedRouteRead"
	case CmdIPTagSet: // shared opcode with Clear/Get/ReverseIPTagSet
		return "IPTag"
	case CmdLED:
		return "LED"
	case CmdBMPFPGARead:
		return "BMPFPGARead"
	case CmdBMPFPGAWrite:
		return "BMPFPGAWrite"
	case CmdBMPADCRead:
		return "BMPADCRead"
	case CmdBMPSetLED:
		return "BMPSetLED"
	case CmdBMPPower:
		return "BMPPower"
	case CmdDPRIExit:
		return "DPRIExit"
	case CmdDPRISetRouterEmergencyTimeout:
		return "DPRISetRouterEmergencyTimeout"
	default:
		return fmt.Sprintf("Command(0x%04X)", uint16(c))
	}
}

// Core command set (spec §6). Values follow the SCAMP command numbering
// used on the wire; BMP-only commands share the same opcode space but are
// only meaningful when sent to a BMP endpoint.
const (
	CmdVersion        Command = 0  // Version
	CmdApplicationRun Command = 1  // ApplicationRun (AR)
	CmdReadMemory     Command = 2  // ReadMemory
	CmdWriteMemory    Command = 3  // WriteMemory
	CmdFloodFillStart Command = 4  // FloodFillStart (APLX load, sub-op in arg1)
	CmdFill           Command = 5  // Fill
	CmdReadMemoryWords Command = 6 // ReadMemoryWords (word-aligned bulk)
	CmdWriteMemoryWords Command = 7 // WriteMemoryWords

	CmdReadLink       Command = 17 // ReadLink
	CmdWriteLink      Command = 18 // WriteLink
	CmdFloodFillData  Command = 19 // FloodFillData
	CmdFloodFillEnd   Command = 20 // FloodFillEnd
	CmdNearestNeighbour Command = 21 // generic NN packet carrier

	CmdSendSignal     Command = 22 // SendSignal
	CmdCountState     Command = 23 // CountState
	CmdAppStop        Command = 24 // AppStop

	CmdRouterAlloc    Command = 28 // RouterAlloc (RTR ALLOC sub-op)
	CmdRouterInit     Command = 29 // RouterInit
	CmdRouterClear    Command = 30 // RouterClear
	CmdFixedRouteRead Command = 31 // FixedRouteRead

	CmdIPTagSet        Command = 26 // IPTagSet (IPTAG sub-op)
	CmdIPTagClear      Command = 26
	CmdIPTagGet        Command = 26
	CmdReverseIPTagSet Command = 26

	CmdLED Command = 25 // LED

	// BMP-only commands.
	CmdBMPPower        Command = 36
	CmdBMPFPGARead     Command = 37
	CmdBMPFPGAWrite    Command = 38
	CmdBMPADCRead      Command = 39
	CmdBMPSetLED       Command = 40
	CmdBMPVersion      Command = 0 // BMP shares CmdVersion

	CmdDPRIExit                 Command = 48
	CmdDPRISetRouterEmergencyTimeout Command = 49
)

// IPTag sub-operations, carried in arg1 of an IPTagSet-family request.
const (
	IPTagSetOp        uint32 = 0
	IPTagClearOp      uint32 = 1
	IPTagGetOp        uint32 = 2
	IPTagGetInfoOp    uint32 = 3
	ReverseIPTagSetOp uint32 = 4
)

// Router sub-operations, carried in arg1 of an RTR-family request.
const (
	RouterAllocOp uint32 = 0
	RouterInitOp  uint32 = 1
	RouterClearOp uint32 = 2
)

// Result is the 16-bit SCP response code (spec §4.1).
type Result uint16

const (
	RCOk          Result = 0x80
	RCLen         Result = 0x81
	RCSum         Result = 0x82
	RCCmd         Result = 0x83
	RCArg         Result = 0x84
	RCPort        Result = 0x85
	RCTimeout     Result = 0x86
	RCRoute       Result = 0x87
	RCCPU         Result = 0x88
	RCDead        Result = 0x89
	RCBufferFull  Result = 0x8A
	RCP2PNoReply  Result = 0x8B
	RCP2PRejected Result = 0x8C
	RCP2PBusy     Result = 0x8D
	RCP2PTimeout  Result = 0x8E
	RCPacketTransmissionFailed Result = 0x8F
)

// String renders a result code the way log lines and error messages do:
// the symbolic name if known, else a hex fallback.
func (r Result) String() string {
	switch r {
	case RCOk:
		return "RC_OK"
	case RCLen:
		return "RC_LEN"
	case RCSum:
		return "RC_SUM"
	case RCCmd:
		return "RC_CMD"
	case RCArg:
		return "RC_ARG"
	case RCPort:
		return "RC_PORT"
	case RCTimeout:
		return "RC_TIMEOUT"
	case RCRoute:
		return "RC_ROUTE"
	case RCCPU:
		return "RC_CPU"
	case RCDead:
		return "RC_DEAD"
	case RCBufferFull:
		return "RC_BUFFER_FULL"
	case RCP2PNoReply:
		return "RC_P2P_NOREPLY"
	case RCP2PRejected:
		return "RC_P2P_REJECTED"
	case RCP2PBusy:
		return "RC_P2P_BUSY"
	case RCP2PTimeout:
		return "RC_P2P_TIMEOUT"
	case RCPacketTransmissionFailed:
		return "RC_PACKET_TX_FAILED"
	default:
		return "RC_UNKNOWN"
	}
}

// DefaultRetrySet is the pipeline's default retry-on set (spec §4.4).
func DefaultRetrySet() map[Result]bool {
	return map[Result]bool{
		RCTimeout:    true,
		RCP2PTimeout: true,
		RCLen:        true,
		RCP2PNoReply: true,
	}
}

// VersionRetrySet is the narrower retry set used by get_scamp_version
// (spec §4.5): {RC_P2P_TIMEOUT, RC_TIMEOUT, RC_LEN}.
func VersionRetrySet() map[Result]bool {
	return map[Result]bool{
		RCP2PTimeout: true,
		RCTimeout:    true,
		RCLen:        true,
	}
}
