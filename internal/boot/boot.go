// Package boot defines the send-only boot frame interface (spec §6: "the
// boot-image payload and boot UDP framing" are an external collaborator;
// only its send interface is specified here). A boot frame carries an
// opcode, three 32-bit operands, and an optional data payload, streamed to
// the machine's boot endpoint without soliciting a reply.
package boot

import (
	"encoding/binary"

	"github.com/spinnaker-go/spinnman/internal/errors"
)

// OpCode identifies a boot frame's purpose.
type OpCode uint32

const (
	OpHello       OpCode = 0x41
	OpFlood       OpCode = 0x01
	OpFloodFill   OpCode = 0x03
	OpFloodEnd    OpCode = 0x05
	OpStart       OpCode = 0x06
)

// FrameHeaderSize is the fixed boot frame header: version word, opcode,
// three operands (spec §6 boot framing, grounded on the original boot
// message assembly: opcode + operand_1/2/3).
const FrameHeaderSize = 20

// MaxDataLength is the largest boot frame data payload, matching the
// largest SDRAM flood block SCAMP's boot ROM accepts per frame.
const MaxDataLength = 1024

// Frame is one boot message: an opcode, three operands, and optional data.
type Frame struct {
	Opcode   OpCode
	Operand1 uint32
	Operand2 uint32
	Operand3 uint32
	Data     []byte
}

// Encode serializes f into its wire form. Version is fixed at 1, matching
// every SpiNNaker boot ROM this library targets.
func (f Frame) Encode() ([]byte, error) {
	if len(f.Data) > MaxDataLength {
		return nil, errors.NewInvalidParameter("data", len(f.Data), "boot frame payload exceeds MaxDataLength")
	}

	buf := make([]byte, FrameHeaderSize+len(f.Data))
	binary.BigEndian.PutUint32(buf[0:4], 1)
	binary.BigEndian.PutUint32(buf[4:8], uint32(f.Opcode))
	binary.BigEndian.PutUint32(buf[8:12], f.Operand1)
	binary.BigEndian.PutUint32(buf[12:16], f.Operand2)
	binary.BigEndian.PutUint32(buf[16:20], f.Operand3)
	copy(buf[FrameHeaderSize:], f.Data)
	return buf, nil
}

// Hello builds the initial handshake frame sent before any flood data.
func Hello() Frame { return Frame{Opcode: OpHello, Operand3: 0xffffffff} }

// Start builds the final frame that tells the boot ROM to jump to the
// flooded image.
func Start(boardVersion uint32) Frame {
	return Frame{Opcode: OpStart, Operand1: boardVersion}
}

// FloodFill builds one data-carrying frame of a boot image flood, tagged
// with its block number within the flood sequence.
func FloodFill(blockNumber uint32, data []byte) Frame {
	return Frame{Opcode: OpFloodFill, Operand1: blockNumber, Operand2: uint32(len(data)), Data: data}
}

// FloodEnd builds the frame that closes a boot image flood sequence.
func FloodEnd() Frame { return Frame{Opcode: OpFloodEnd} }
