package transceiver

import (
	"context"
	"fmt"
	"sync"

	"github.com/spinnaker-go/spinnman/internal/boot"
	"github.com/spinnaker-go/spinnman/internal/errors"
	"github.com/spinnaker-go/spinnman/internal/pipeline"
	"github.com/spinnaker-go/spinnman/internal/scp"
	"github.com/spinnaker-go/spinnman/internal/sdp"
)

// Boot streams a sequence of boot frames on the boot endpoint. No replies
// are solicited; this is non-idempotent but safe to retry if the machine
// did not actually come up (spec §4.6).
func (t *Transceiver) Boot(ctx context.Context, boardVersion int, dims [2]int, nBoards int) error {
	if err := t.checkOpen("boot"); err != nil {
		return err
	}

	frames := []boot.Frame{boot.Hello()}
	// A real boot image flood is supplied by the caller's APLX loader,
	// out of scope here (spec §1); this streams the handshake/start
	// bracket a loader's FloodFill frames would sit between.
	frames = append(frames, boot.FloodEnd(), boot.Start(uint32(boardVersion)))

	for _, f := range frames {
		raw, err := f.Encode()
		if err != nil {
			return err
		}
		if err := t.bootEP.Send(ctx, raw); err != nil {
			return err
		}
	}
	return nil
}

// WriteMemoryFlood broadcasts data to every chip's SDRAM at base via the
// flood-fill mechanism: acquires the flood lock, assigns a fresh
// nearest-neighbour id, sends FloodFillStart, streams FloodFillData
// blocks concurrently, then FloodFillEnd (spec §4.6). FloodFillStart must
// precede any FloodFillData, and FloodFillEnd must follow all of them, so
// those two bracket the concurrent block submission.
func (t *Transceiver) WriteMemoryFlood(ctx context.Context, base uint32, data []byte) error {
	if err := t.checkOpen("write_memory_flood"); err != nil {
		return err
	}
	t.floodLock.AcquireWriter()
	defer t.floodLock.ReleaseWriter()
	return t.writeMemoryFloodLocked(ctx, base, data)
}

// writeMemoryFloodLocked is WriteMemoryFlood's body without the flood
// writer lock acquisition, so ExecuteFlood can hold that lock across both
// the flood-fill and the ApplicationRun broadcast that follows it (spec
// §4.8: execute_flood must exclude chip execute for its whole duration,
// not just the flood-fill part).
func (t *Transceiver) writeMemoryFloodLocked(ctx context.Context, base uint32, data []byte) error {
	nnID := t.nextNearestNeighbourID()
	nWords := (len(data) + 3) / 4
	nBlocks := (nWords + chunkSize/4 - 1) / (chunkSize / 4)
	if nBlocks == 0 {
		nBlocks = 1
	}

	if _, err := t.submitAndWait(ctx, 0, 0, scp.CmdFloodFillStart, "flood_fill_start",
		uint32(nnID), uint32(nBlocks), 0, nil, okDecode, 3); err != nil {
		return err
	}

	_, p, err := t.selectFor(0, 0, "FloodFillData")
	if err != nil {
		return err
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		firstErr  error
		laterErrs int
	)

	for block := 0; block*chunkSize < len(data); block++ {
		start := block * chunkSize
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[start:end]
		block := block
		wg.Add(1)

		req := pipeline.Request{
			Command:     scp.CmdFloodFillData,
			Destination: fmt.Sprintf("flood_fill_data block=%d nn_id=%d", block, nnID),
			Encode: func(seq uint16) []byte {
				sdpHdr := sdp.SDPHeader{Flags: sdp.FlagReplyExpected}
				scpHdr := sdp.SCPHeader{
					Command: uint16(scp.CmdFloodFillData), Sequence: seq,
					Arg1: uint32(nnID), Arg2: uint32(block) << 8, Arg3: base + uint32(start),
				}
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
		return &errors.AggregateError{FirstError: firstErr, LaterCount: laterErrs, Destination: "flood", Command: "FloodFillData"}
	}

	_, err = t.submitAndWait(ctx, 0, 0, scp.CmdFloodFillEnd, "flood_fill_end", uint32(nnID), 0, 0, nil, okDecode, 3)
	return err
}

// Execute writes executable to the standard load address on chip (x, y)
// and starts it on processors via ApplicationRun, holding the per-chip
// execute lock and the flood lock's reader slot across both steps (spec
// §4.6, §4.8: a chip execute and execute_flood never run concurrently).
func (t *Transceiver) Execute(ctx context.Context, x, y uint8, processors []uint8, executable []byte, appID uint8) error {
	if err := t.checkOpen("execute"); err != nil {
		return err
	}
	t.floodLock.AcquireReader()
	defer t.floodLock.ReleaseReader()

	coord := chipLockCoord(x, y)
	t.chipLocks.Lock(coord)
	defer t.chipLocks.Unlock(coord)

	if err := t.WriteMemory(ctx, x, y, ExecutableLoadAddress, executable); err != nil {
		return err
	}

	var mask uint32
	for _, p := range processors {
		mask |= 1 << uint(p)
	}
	_, err := t.submitAndWait(ctx, x, y, scp.CmdApplicationRun, fmt.Sprintf("(%d,%d) execute", x, y),
		uint32(appID), mask, 0, nil, okDecode, 3)
	return err
}

// CoreSubset addresses a chip and the processors on it taking part in a
// flood execute.
type CoreSubset struct {
	X, Y       uint8
	Processors []uint8
}

// ExecuteFlood acquires the global flood lock's writer slot (excluding
// every chip execute for the whole call, not just the flood-fill), floods
// executable to every chip via WriteMemoryFlood, then issues ApplicationRun
// to every core subset concurrently, all under that same writer hold (spec
// §4.6, §4.8).
func (t *Transceiver) ExecuteFlood(ctx context.Context, coreSubsets []CoreSubset, executable []byte, appID uint8) error {
	if err := t.checkOpen("execute_flood"); err != nil {
		return err
	}
	t.floodLock.AcquireWriter()
	defer t.floodLock.ReleaseWriter()

	if err := t.writeMemoryFloodLocked(ctx, ExecutableLoadAddress, executable); err != nil {
		return err
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, cs := range coreSubsets {
		cs := cs
		wg.Add(1)
		go func() {
			defer wg.Done()
			var mask uint32
			for _, p := range cs.Processors {
				mask |= 1 << uint(p)
			}
			_, err := t.submitAndWait(ctx, cs.X, cs.Y, scp.CmdApplicationRun, fmt.Sprintf("(%d,%d) execute_flood", cs.X, cs.Y),
				uint32(appID), mask, 0, nil, okDecode, 3)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return firstErr
}
