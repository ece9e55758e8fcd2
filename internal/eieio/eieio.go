// Package eieio describes the EIEIO event-message payload shape (spec §6:
// "framing described only at packet-layout level, not as a stream
// protocol" — this package has no send/receive loop, only the header and
// event encoding used by higher-level buffer management that is itself
// out of scope).
package eieio

import (
	"encoding/binary"

	"github.com/spinnaker-go/spinnman/internal/errors"
)

// Type selects the key width and whether each event carries a payload.
type Type uint8

const (
	Type16Bit            Type = 0
	Type16BitWithPayload Type = 1
	Type32Bit            Type = 2
	Type32BitWithPayload Type = 3
)

// KeyBytes is the wire width of one event's key for this type.
func (t Type) KeyBytes() int {
	switch t {
	case Type16Bit, Type16BitWithPayload:
		return 2
	default:
		return 4
	}
}

// HasPayload reports whether each event carries a payload word alongside
// its key.
func (t Type) HasPayload() bool {
	return t == Type16BitWithPayload || t == Type32BitWithPayload
}

// Header is the 16-bit EIEIO control word: a command bit, the key/payload
// type, payload-prefix/payload-is-timestamp flags, and the event count
// (spec §6).
type Header struct {
	IsCommand     bool
	EventType     Type
	HasPrefix     bool
	PrefixIsUpper bool
	IsTimed       bool
	Count         uint8
}

// Encode packs a Header into its 16-bit wire form.
func (h Header) Encode() uint16 {
	var v uint16
	v |= uint16(h.Count)
	if h.IsTimed {
		v |= 1 << 8
	}
	if h.HasPrefix {
		v |= 1 << 9
	}
	if h.PrefixIsUpper {
		v |= 1 << 10
	}
	v |= uint16(h.EventType) << 11
	if h.IsCommand {
		v |= 1 << 14
	}
	return v
}

// DecodeHeader unpacks a 16-bit EIEIO control word.
func DecodeHeader(v uint16) Header {
	return Header{
		IsCommand:     v&(1<<14) != 0,
		EventType:     Type((v >> 11) & 0x3),
		PrefixIsUpper: v&(1<<10) != 0,
		HasPrefix:     v&(1<<9) != 0,
		IsTimed:       v&(1<<8) != 0,
		Count:         uint8(v & 0xff),
	}
}

// Event is one key, plus its payload word when the message type carries
// one.
type Event struct {
	Key     uint32
	Payload uint32
}

// Packet is a full EIEIO data message: header, optional 16-bit prefix, and
// a run of same-shaped events.
type Packet struct {
	Header Header
	Prefix uint16
	Events []Event
}

// Encode serializes p per the EIEIO wire layout: header, prefix (if
// present), then each event's key followed by its payload word (if the
// type carries one).
func (p Packet) Encode() ([]byte, error) {
	if len(p.Events) > 255 {
		return nil, errors.NewInvalidParameter("events", len(p.Events), "eieio packet cannot carry more than 255 events")
	}
	h := p.Header
	h.Count = uint8(len(p.Events))

	keyWidth := h.EventType.KeyBytes()
	eventWidth := keyWidth
	if h.EventType.HasPayload() {
		eventWidth += keyWidth
	}

	size := 2
	if h.HasPrefix {
		size += 2
	}
	size += eventWidth * len(p.Events)

	buf := make([]byte, size)
	binary.LittleEndian.PutUint16(buf[0:2], h.Encode())
	off := 2
	if h.HasPrefix {
		binary.LittleEndian.PutUint16(buf[off:off+2], p.Prefix)
		off += 2
	}

	for _, ev := range p.Events {
		if keyWidth == 2 {
			binary.LittleEndian.PutUint16(buf[off:off+2], uint16(ev.Key))
			off += 2
		} else {
			binary.LittleEndian.PutUint32(buf[off:off+4], ev.Key)
			off += 4
		}
		if h.EventType.HasPayload() {
			if keyWidth == 2 {
				binary.LittleEndian.PutUint16(buf[off:off+2], uint16(ev.Payload))
				off += 2
			} else {
				binary.LittleEndian.PutUint32(buf[off:off+4], ev.Payload)
				off += 4
			}
		}
	}
	return buf, nil
}

// Decode parses an EIEIO data message from its wire form.
func Decode(data []byte) (*Packet, error) {
	if len(data) < 2 {
		return nil, errors.NewMalformedPacket("eieio packet shorter than header")
	}
	h := DecodeHeader(binary.LittleEndian.Uint16(data[0:2]))
	off := 2

	var prefix uint16
	if h.HasPrefix {
		if len(data) < off+2 {
			return nil, errors.NewMalformedPacket("eieio packet truncated before prefix")
		}
		prefix = binary.LittleEndian.Uint16(data[off : off+2])
		off += 2
	}

	keyWidth := h.EventType.KeyBytes()
	eventWidth := keyWidth
	if h.EventType.HasPayload() {
		eventWidth += keyWidth
	}

	events := make([]Event, 0, h.Count)
	for i := 0; i < int(h.Count); i++ {
		if len(data) < off+eventWidth {
			return nil, errors.NewMalformedPacket("eieio packet truncated in event data")
		}
		var ev Event
		if keyWidth == 2 {
			ev.Key = uint32(binary.LittleEndian.Uint16(data[off : off+2]))
			off += 2
		} else {
			ev.Key = binary.LittleEndian.Uint32(data[off : off+4])
			off += 4
		}
		if h.EventType.HasPayload() {
			if keyWidth == 2 {
				ev.Payload = uint32(binary.LittleEndian.Uint16(data[off : off+2]))
				off += 2
			} else {
				ev.Payload = binary.LittleEndian.Uint32(data[off : off+4])
				off += 4
			}
		}
		events = append(events, ev)
	}

	return &Packet{Header: h, Prefix: prefix, Events: events}, nil
}
