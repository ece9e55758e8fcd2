package transceiver

import (
	"context"
	"fmt"
	"sync"

	"github.com/spinnaker-go/spinnman/internal/bmp"
	"github.com/spinnaker-go/spinnman/internal/errors"
	"github.com/spinnaker-go/spinnman/internal/pipeline"
	"github.com/spinnaker-go/spinnman/internal/scp"
	"github.com/spinnaker-go/spinnman/internal/sdp"
)

// bmpHandle resolves a configured BMP by index into its dialed endpoint
// and its cabinet/frame/boards configuration.
func (t *Transceiver) bmpHandle(bmpIndex int) (*endpointHandle, error) {
	if bmpIndex < 0 || bmpIndex >= len(t.cfg.Machine.BMPs) {
		return nil, errors.NewInvalidParameter("bmp_index", bmpIndex, "no such configured BMP")
	}
	b := t.cfg.Machine.BMPs[bmpIndex]
	addr := fmt.Sprintf("%s:%d", b.Host, t.cfg.Machine.SCPPort)
	t.mu.Lock()
	h, ok := t.bmpEPs[addr]
	t.mu.Unlock()
	if !ok {
		return nil, errors.NewInvalidParameter("bmp_index", bmpIndex, "bmp endpoint not dialed")
	}
	return h, nil
}

// submitOnHandle is submitAndWait's counterpart for a BMP endpoint, which
// isn't addressed through the chip-coordinate selector (spec §4.6 "BMP
// command shapes shared with SCP").
func (t *Transceiver) submitOnHandle(ctx context.Context, h *endpointHandle, command scp.Command, destination string, arg1, arg2, arg3 uint32, payload []byte, decode func([]byte) (interface{}, error)) (interface{}, error) {
	var (
		wg     sync.WaitGroup
		result interface{}
		opErr  error
	)
	wg.Add(1)
	req := pipeline.Request{
		Command:     command,
		Destination: destination,
		NRetries:    3,
		Encode: func(seq uint16) []byte {
			sdpHdr := sdp.SDPHeader{Flags: sdp.FlagReplyExpected}
			scpHdr := sdp.SCPHeader{Command: uint16(command), Sequence: seq, Arg1: arg1, Arg2: arg2, Arg3: arg3}
			raw, _ := sdp.Encode(sdpHdr, scpHdr, payload)
			return raw
		},
		Decode: decode,
		OnSuccess: func(v interface{}) {
			result = v
			wg.Done()
		},
		OnError: func(err error) {
			opErr = err
			wg.Done()
		},
	}
	if err := h.pipeline.Submit(req); err != nil {
		return nil, err
	}
	h.pipeline.Finish()
	wg.Wait()
	return result, opErr
}

// PowerOnBoards powers on the given boards of a configured BMP (spec §4.6
// BMP command shapes).
func (t *Transceiver) PowerOnBoards(ctx context.Context, bmpIndex int, boards []int, delaySeconds float64) error {
	return t.power(ctx, bmpIndex, bmp.PowerOn, boards, delaySeconds)
}

// PowerOffBoards powers off the given boards of a configured BMP.
func (t *Transceiver) PowerOffBoards(ctx context.Context, bmpIndex int, boards []int, delaySeconds float64) error {
	return t.power(ctx, bmpIndex, bmp.PowerOff, boards, delaySeconds)
}

func (t *Transceiver) power(ctx context.Context, bmpIndex int, cmd bmp.PowerCommand, boards []int, delaySeconds float64) error {
	if err := t.checkOpen("bmp_power"); err != nil {
		return err
	}
	h, err := t.bmpHandle(bmpIndex)
	if err != nil {
		return err
	}
	arg1, arg2, err := bmp.PowerArgs(cmd, boards, delaySeconds)
	if err != nil {
		return err
	}
	_, err = t.submitOnHandle(ctx, h, bmp.CommandPower, fmt.Sprintf("bmp[%d] power", bmpIndex), arg1, arg2, 0, nil, okDecode)
	return err
}

// powerOnAllBMPs powers on every configured BMP's boards, the fallback
// EnsureReady takes when get_scamp_version first times out (spec §4.6).
func (t *Transceiver) powerOnAllBMPs(ctx context.Context) error {
	for i, b := range t.cfg.Machine.BMPs {
		if err := t.PowerOnBoards(ctx, i, b.Boards, 0); err != nil {
			return err
		}
	}
	return nil
}

// SetLED drives the given LEDs to action on the given boards of a
// configured BMP.
func (t *Transceiver) SetLED(ctx context.Context, bmpIndex int, leds []int, action bmp.LEDAction, boards []int) error {
	if err := t.checkOpen("bmp_set_led"); err != nil {
		return err
	}
	h, err := t.bmpHandle(bmpIndex)
	if err != nil {
		return err
	}
	arg1, arg2, err := bmp.SetLEDArgs(leds, action, boards)
	if err != nil {
		return err
	}
	_, err = t.submitOnHandle(ctx, h, bmp.CommandSetLED, fmt.Sprintf("bmp[%d] set_led", bmpIndex), arg1, arg2, 0, nil, okDecode)
	return err
}

// ReadFPGARegister reads one 32-bit FPGA SPI register via a configured
// BMP.
func (t *Transceiver) ReadFPGARegister(ctx context.Context, bmpIndex int, fpgaNum int, addr uint32) (uint32, error) {
	if err := t.checkOpen("bmp_read_fpga_register"); err != nil {
		return 0, err
	}
	h, err := t.bmpHandle(bmpIndex)
	if err != nil {
		return 0, err
	}
	arg1, arg2, arg3 := bmp.ReadFPGARegisterArgs(fpgaNum, addr)
	result, err := t.submitOnHandle(ctx, h, bmp.CommandFPGARead, fmt.Sprintf("bmp[%d] read_fpga_register", bmpIndex), arg1, arg2, arg3, nil, okDecode)
	if err != nil {
		return 0, err
	}
	payload := result.([]byte)
	if len(payload) < 4 {
		return 0, errors.NewMalformedPacket("fpga register read payload too short")
	}
	return leUint32(payload), nil
}

// WriteFPGARegister writes one 32-bit FPGA SPI register via a configured
// BMP.
func (t *Transceiver) WriteFPGARegister(ctx context.Context, bmpIndex int, fpgaNum int, addr uint32, value uint32) error {
	if err := t.checkOpen("bmp_write_fpga_register"); err != nil {
		return err
	}
	h, err := t.bmpHandle(bmpIndex)
	if err != nil {
		return err
	}
	arg1, arg2, arg3, data := bmp.WriteFPGARegisterArgs(fpgaNum, addr, value)
	_, err = t.submitOnHandle(ctx, h, bmp.CommandFPGAWrite, fmt.Sprintf("bmp[%d] write_fpga_register", bmpIndex), arg1, arg2, arg3, data, okDecode)
	return err
}

// GetADCReading reads a configured BMP's temperature/voltage sensors.
func (t *Transceiver) GetADCReading(ctx context.Context, bmpIndex int) (*bmp.ADCReadResult, error) {
	if err := t.checkOpen("bmp_adc_read"); err != nil {
		return nil, err
	}
	h, err := t.bmpHandle(bmpIndex)
	if err != nil {
		return nil, err
	}
	result, err := t.submitOnHandle(ctx, h, bmp.CommandADCRead, fmt.Sprintf("bmp[%d] adc_read", bmpIndex), 0, 0, 0, nil, okDecode)
	if err != nil {
		return nil, err
	}
	return bmp.DecodeADCRead(result.([]byte))
}
