package transceiver

import (
	"context"
	"encoding/binary"
)

// sdramHeapAddressOffset is the system-variable-block field holding the
// per-chip SDRAM heap's first-block pointer, relative to
// SystemVariableBaseAddress (original_source
// messages/spinnaker_boot/system_variable_boot_values.py
// SystemVariableDefinition.sdram_heap_address; not independently
// verifiable against a retained constants module, same caveat as the other
// memory-map constants in transceiver.go).
const sdramHeapAddressOffset uint32 = 0x130

// HeapElement is one block of a chip's SDRAM heap free-list (spec
// supplement, original_source processes/get_heap_process.py).
type HeapElement struct {
	BlockAddress uint32
	NextAddress  uint32
	Free         uint32
}

// GetHeap walks the SDRAM heap's linked free-list on chip (x, y), starting
// from the heap pointer recorded in the system variable block (spec
// supplement: malloc_sdram/free_sdram siblings not named in the base spec
// but present in original_source).
func (t *Transceiver) GetHeap(ctx context.Context, x, y uint8) ([]HeapElement, error) {
	if err := t.checkOpen("get_heap"); err != nil {
		return nil, err
	}

	heapAddrRaw, err := t.ReadMemory(ctx, x, y, SystemVariableBaseAddress+sdramHeapAddressOffset, 4)
	if err != nil {
		return nil, err
	}
	heapAddress := leUint32(heapAddrRaw)

	pointerRaw, err := t.ReadMemory(ctx, x, y, heapAddress, 8)
	if err != nil {
		return nil, err
	}
	firstBlock := binary.LittleEndian.Uint32(pointerRaw[4:8])

	nodes, err := walkLinkedList(ctx, firstBlock, func(ctx context.Context, address uint32) (linkedListNode, error) {
		raw, err := t.ReadMemory(ctx, x, y, address, 8)
		if err != nil {
			return linkedListNode{}, err
		}
		next := binary.LittleEndian.Uint32(raw[0:4])
		free := binary.LittleEndian.Uint32(raw[4:8])
		payload := make([]byte, 4)
		binary.LittleEndian.PutUint32(payload, free)
		return linkedListNode{Address: address, NextAddress: next, Payload: payload}, nil
	})
	if err != nil {
		return nil, err
	}

	elements := make([]HeapElement, len(nodes))
	for i, n := range nodes {
		elements[i] = HeapElement{
			BlockAddress: n.Address,
			NextAddress:  n.NextAddress,
			Free:         binary.LittleEndian.Uint32(n.Payload),
		}
	}
	return elements, nil
}

// ioBufHeaderSize is {next_address(4), pad(8), bytes_to_read(4)}
// (original_source processes/read_iobuf_process.py: "<I8xI").
const ioBufHeaderSize = 16

// IOBuffer is one core's accumulated debug output, reassembled from its
// linked chain of SDRAM buffers (spec §4.6 supplement).
type IOBuffer struct {
	X, Y uint8
	P    uint8
	Text string
}

// GetIOBuf reads each requested core's iobuf chain. A core's iobuf_address
// comes from GetCPUInformation, which GetIOBuf calls itself so callers
// only need to name the cores; each buffer's length comes from its own
// header.
func (t *Transceiver) GetIOBuf(ctx context.Context, cores []CoreLocation) ([]IOBuffer, error) {
	if err := t.checkOpen("get_iobuf"); err != nil {
		return nil, err
	}

	infos, err := t.GetCPUInformation(ctx, cores)
	if err != nil {
		return nil, err
	}

	buffers := make([]IOBuffer, 0, len(infos))
	for _, info := range infos {
		if info.IOBufAddress == 0 {
			buffers = append(buffers, IOBuffer{X: info.X, Y: info.Y, P: info.P})
			continue
		}
		x, y := info.X, info.Y
		nodes, err := walkLinkedList(ctx, info.IOBufAddress, func(ctx context.Context, address uint32) (linkedListNode, error) {
			header, err := t.ReadMemory(ctx, x, y, address, ioBufHeaderSize)
			if err != nil {
				return linkedListNode{}, err
			}
			next := binary.LittleEndian.Uint32(header[0:4])
			bytesToRead := binary.LittleEndian.Uint32(header[12:16])
			var payload []byte
			if bytesToRead > 0 {
				payload, err = t.ReadMemory(ctx, x, y, address+ioBufHeaderSize, bytesToRead)
				if err != nil {
					return linkedListNode{}, err
				}
			}
			return linkedListNode{Address: address, NextAddress: next, Payload: payload}, nil
		})
		if err != nil {
			return nil, err
		}

		var text []byte
		for _, n := range nodes {
			text = append(text, n.Payload...)
		}
		buffers = append(buffers, IOBuffer{X: x, Y: y, P: info.P, Text: string(text)})
	}
	return buffers, nil
}
