// Package sdp implements the SDP+SCP wire codec (spec §4.1, §6): two
// leading pad bytes, an 8-byte SDP header, a 16-byte SCP header, and up to
// 256 bytes of payload, all little-endian.
package sdp

import (
	"encoding/binary"

	"github.com/spinnaker-go/spinnman/internal/errors"
)

const (
	// PadBytes is the number of historical alignment bytes that precede
	// the SDP header on the wire.
	PadBytes = 2
	// HeaderSize is the length of the SDP header fields (flags through
	// src_chip_x), before the SCP command/sequence/argument block.
	HeaderSize = 8
	// SCPHeaderSize is the length of the SCP command/sequence/argument
	// block that follows the SDP header.
	SCPHeaderSize = 2 + 2 + 4 + 4 + 4
	// FrameHeaderSize is PadBytes+HeaderSize+SCPHeaderSize: the offset at
	// which payload begins on the wire.
	FrameHeaderSize = PadBytes + HeaderSize + SCPHeaderSize
	// MaxPayload is the largest SCP payload this codec will encode or
	// accept on decode.
	MaxPayload = 256
)

// Flag bits for SDPHeader.Flags. Only REPLY_EXPECTED is interpreted by
// this codec; the rest of the byte is carried through unexamined.
const (
	FlagReplyExpected byte = 0x87
	FlagNoReply       byte = 0x07
)

// SDPHeader is the carrier frame described in spec §3/§6.
type SDPHeader struct {
	Flags     byte
	Tag       byte
	DestPort  uint8 // 0..7
	DestCPU   uint8 // 0..31
	SrcPort   uint8
	SrcCPU    uint8
	DestChipX uint8
	DestChipY uint8
	SrcChipX  uint8
	SrcChipY  uint8
}

// ReplyExpected reports whether the REPLY_EXPECTED flag is set.
func (h SDPHeader) ReplyExpected() bool { return h.Flags&0x80 != 0 }

// SCPHeader is the command frame carried inside an SDP packet. Command is
// the request opcode on encode, and the result code on a decoded response.
type SCPHeader struct {
	Command  uint16
	Sequence uint16
	Arg1     uint32
	Arg2     uint32
	Arg3     uint32
}

// Encode concatenates the pad bytes, SDP header, SCP header, and payload
// into one little-endian wire frame, per spec §4.1.
func Encode(sdpHdr SDPHeader, scpHdr SCPHeader, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, errors.NewInvalidParameter("payload", len(payload), "must be 0..256 bytes")
	}
	if sdpHdr.DestPort > 7 || sdpHdr.SrcPort > 7 {
		return nil, errors.NewInvalidParameter("port", sdpHdr.DestPort, "must be 0..7")
	}
	if sdpHdr.DestCPU > 31 || sdpHdr.SrcCPU > 31 {
		return nil, errors.NewInvalidParameter("cpu", sdpHdr.DestCPU, "must be 0..31")
	}

	buf := make([]byte, FrameHeaderSize+len(payload))

	// Two pad bytes, left zero.
	buf[2] = sdpHdr.Flags
	buf[3] = sdpHdr.Tag
	buf[4] = (sdpHdr.DestPort << 5) | sdpHdr.DestCPU
	buf[5] = (sdpHdr.SrcPort << 5) | sdpHdr.SrcCPU
	buf[6] = sdpHdr.DestChipY
	buf[7] = sdpHdr.DestChipX
	buf[8] = sdpHdr.SrcChipY
	buf[9] = sdpHdr.SrcChipX

	binary.LittleEndian.PutUint16(buf[10:12], scpHdr.Command)
	binary.LittleEndian.PutUint16(buf[12:14], scpHdr.Sequence)
	binary.LittleEndian.PutUint32(buf[14:18], scpHdr.Arg1)
	binary.LittleEndian.PutUint32(buf[18:22], scpHdr.Arg2)
	binary.LittleEndian.PutUint32(buf[22:26], scpHdr.Arg3)

	copy(buf[FrameHeaderSize:], payload)

	return buf, nil
}

// Decode reverses Encode, exposing a zero-copy view of the payload as a
// subslice of data. Fails with MalformedPacketError if data is too short
// to hold a full header or the declared payload overruns MaxPayload.
func Decode(data []byte) (SDPHeader, SCPHeader, []byte, error) {
	if len(data) < FrameHeaderSize {
		return SDPHeader{}, SCPHeader{}, nil, errors.NewMalformedPacket("frame shorter than header")
	}
	if len(data)-FrameHeaderSize > MaxPayload {
		return SDPHeader{}, SCPHeader{}, nil, errors.NewMalformedPacket("declared payload exceeds 256 bytes")
	}

	sdpHdr := SDPHeader{
		Flags:     data[2],
		Tag:       data[3],
		DestPort:  data[4] >> 5,
		DestCPU:   data[4] & 0x1F,
		SrcPort:   data[5] >> 5,
		SrcCPU:    data[5] & 0x1F,
		DestChipY: data[6],
		DestChipX: data[7],
		SrcChipY:  data[8],
		SrcChipX:  data[9],
	}

	scpHdr := SCPHeader{
		Command:  binary.LittleEndian.Uint16(data[10:12]),
		Sequence: binary.LittleEndian.Uint16(data[12:14]),
		Arg1:     binary.LittleEndian.Uint32(data[14:18]),
		Arg2:     binary.LittleEndian.Uint32(data[18:22]),
		Arg3:     binary.LittleEndian.Uint32(data[22:26]),
	}

	payload := data[FrameHeaderSize:]

	return sdpHdr, scpHdr, payload, nil
}
