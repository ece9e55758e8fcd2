package transceiver

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/spinnaker-go/spinnman/internal/errors"
	"github.com/spinnaker-go/spinnman/internal/pipeline"
	"github.com/spinnaker-go/spinnman/internal/scp"
	"github.com/spinnaker-go/spinnman/internal/sdp"
)

// chunkSize is the largest payload a single ReadMemory/WriteMemory
// request can carry (spec §4.6).
const chunkSize = 256

// ReadMemory splits [base, base+length) into <=256-byte SCP ReadMemory
// chunks, submits them all concurrently via the chip's pipeline, and
// returns the reassembled bytes in address order. Fails with the first
// chunk's error if any chunk fails (spec §4.6).
func (t *Transceiver) ReadMemory(ctx context.Context, x, y uint8, base uint32, length uint32) ([]byte, error) {
	if err := t.checkOpen("read_memory"); err != nil {
		return nil, err
	}
	cid := correlationID()
	_, p, err := t.selectFor(x, y, "ReadMemory")
	if err != nil {
		return nil, err
	}

	out := make([]byte, length)
	type chunkResult struct {
		offset uint32
		err    error
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		firstErr error
		laterErrs int
	)

	for offset := uint32(0); offset < length; offset += chunkSize {
		size := uint32(chunkSize)
		if length-offset < size {
			size = length - offset
		}
		offset, size := offset, size
		wg.Add(1)

		req := pipeline.Request{
			Command:     scp.CmdReadMemory,
			Destination: fmt.Sprintf("(%d,%d)[%s]", x, y, cid),
			Encode: func(seq uint16) []byte {
				sdpHdr := sdp.SDPHeader{Flags: sdp.FlagReplyExpected, DestChipX: x, DestChipY: y}
				scpHdr := sdp.SCPHeader{Command: uint16(scp.CmdReadMemory), Sequence: seq, Arg1: base + offset, Arg2: size, Arg3: 2}
				raw, _ := sdp.Encode(sdpHdr, scpHdr, nil)
				return raw
			},
			Decode: okDecode,
			OnSuccess: func(v interface{}) {
				copy(out[offset:offset+size], v.([]byte))
				wg.Done()
			},
			OnError: func(err error) {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				} else {
					laterErrs++
				}
				mu.Unlock()
				wg.Done()
			},
		}
		if err := p.Submit(req); err != nil {
			return nil, err
		}
	}
	p.Finish()
	wg.Wait()

	if firstErr != nil {
		return nil, &errors.AggregateError{FirstError: firstErr, LaterCount: laterErrs, Destination: fmt.Sprintf("(%d,%d)", x, y), Command: "ReadMemory"}
	}
	return out, nil
}

// WriteMemory splits data into <=256-byte SCP WriteMemory chunks at
// 256-byte address boundaries and submits them all concurrently. Address
// and offset advance monotonically; chunks never overlap (spec §4.6).
func (t *Transceiver) WriteMemory(ctx context.Context, x, y uint8, base uint32, data []byte) error {
	if err := t.checkOpen("write_memory"); err != nil {
		return err
	}
	cid := correlationID()
	_, p, err := t.selectFor(x, y, "WriteMemory")
	if err != nil {
		return err
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		firstErr  error
		laterErrs int
	)

	for offset := 0; offset < len(data); offset += chunkSize {
		end := offset + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]
		offset := offset
		wg.Add(1)

		req := pipeline.Request{
			Command:     scp.CmdWriteMemory,
			Destination: fmt.Sprintf("(%d,%d)[%s]", x, y, cid),
			Encode: func(seq uint16) []byte {
				sdpHdr := sdp.SDPHeader{Flags: sdp.FlagReplyExpected, DestChipX: x, DestChipY: y}
				scpHdr := sdp.SCPHeader{Command: uint16(scp.CmdWriteMemory), Sequence: seq, Arg1: base + uint32(offset), Arg2: uint32(len(chunk)), Arg3: 2}
				raw, _ := sdp.Encode(sdpHdr, scpHdr, chunk)
				return raw
			},
			Decode: okDecode,
			OnSuccess: func(v interface{}) { wg.Done() },
			OnError: func(err error) {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				} else {
					laterErrs++
				}
				mu.Unlock()
				wg.Done()
			},
		}
		if err := p.Submit(req); err != nil {
			return err
		}
	}
	p.Finish()
	wg.Wait()

	if firstErr != nil {
		return &errors.AggregateError{FirstError: firstErr, LaterCount: laterErrs, Destination: fmt.Sprintf("(%d,%d)", x, y), Command: "WriteMemory"}
	}
	return nil
}

// WriteMemoryWidth writes a little-endian integer of 1..4 bytes, matching
// the Python original's "integer-with-width" data shape for write_memory.
func (t *Transceiver) WriteMemoryWidth(ctx context.Context, x, y uint8, base uint32, value uint32, width int) error {
	if width < 1 || width > 4 {
		return errors.NewInvalidParameter("width", width, "must be 1..4 bytes")
	}
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, value)
	return t.WriteMemory(ctx, x, y, base, buf[:width])
}

// sdramAllocOp / sdramFreeOp are the sub-operations MallocSDRAM/FreeSDRAM
// carry in arg1 of CmdRouterAlloc, mirroring scp.RouterAllocOp's sub-op
// convention for the SDRAM heap commands (original_source
// malloc_sdram_process.py).
const (
	sdramAllocOp uint32 = 0
	sdramFreeOp  uint32 = 1
)

// MallocSDRAM allocates size bytes of SDRAM on chip (x, y) tagged for
// appID/tag, returning the allocated base address (original_source
// processes/malloc_sdram_process.py, supplemented into SPEC_FULL).
func (t *Transceiver) MallocSDRAM(ctx context.Context, x, y uint8, size uint32, appID uint8, tag uint8) (uint32, error) {
	if err := t.checkOpen("malloc_sdram"); err != nil {
		return 0, err
	}
	arg1 := sdramAllocOp | uint32(appID)<<8 | uint32(tag)<<16
	result, err := t.submitAndWait(ctx, x, y, scp.CmdRouterAlloc, fmt.Sprintf("(%d,%d) malloc_sdram", x, y), arg1, size, 0, nil, decodeUint32, 3)
	if err != nil {
		return 0, err
	}
	base := result.(uint32)
	if base == 0 {
		return 0, errors.NewInvalidParameter("size", size, "sdram heap exhausted")
	}
	return base, nil
}

// FreeSDRAM releases a block previously allocated by MallocSDRAM
// (original_source processes/malloc_sdram_process.py).
func (t *Transceiver) FreeSDRAM(ctx context.Context, x, y uint8, pointer uint32) error {
	if err := t.checkOpen("free_sdram"); err != nil {
		return err
	}
	arg1 := sdramFreeOp
	_, err := t.submitAndWait(ctx, x, y, scp.CmdRouterAlloc, fmt.Sprintf("(%d,%d) free_sdram", x, y), arg1, pointer, 0, nil, okDecode, 3)
	return err
}

func decodeUint32(payload []byte) (interface{}, error) {
	if len(payload) < 4 {
		return nil, errors.NewMalformedPacket("expected a 4-byte word response")
	}
	return binary.LittleEndian.Uint32(payload[:4]), nil
}
