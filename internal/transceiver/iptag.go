package transceiver

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/spinnaker-go/spinnman/internal/errors"
	"github.com/spinnaker-go/spinnman/internal/scp"
	"github.com/spinnaker-go/spinnman/internal/transport"
)

// IPTag describes one tag to install at SetIPTag (spec §4.6).
type IPTag struct {
	Tag      uint8
	Host     string
	Port     uint16
	StripSDP bool
	Chip     *transport.ChipCoord // nil means every SCP-sender endpoint
}

// ipTagArgs packs the common (arg1, arg2, arg3, payload) shape shared by
// IPTagSet/IPTagClear/IPTagGet/ReverseIPTagSet (spec §4.6).
func ipTagArgs(subOp uint32, tag uint8, strip bool, host string, port uint16) (arg1, arg2, arg3 uint32, payload []byte) {
	arg1 = subOp | uint32(tag)<<8
	if strip {
		arg1 |= 1 << 16
	}
	arg2 = uint32(port)
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			arg3 = binary.LittleEndian.Uint32(v4)
		}
	}
	return arg1, arg2, arg3, nil
}

func (t *Transceiver) ipTagDestinations(chip *transport.ChipCoord) []transport.ChipCoord {
	if chip != nil {
		return []transport.ChipCoord{*chip}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	dests := make([]transport.ChipCoord, 0, len(t.endpoints))
	for _, h := range t.endpoints {
		dests = append(dests, transport.ChipCoord{X: h.chip.X, Y: h.chip.Y})
	}
	return dests
}

// SetIPTag sends IPTagSet on every SCP-sender endpoint, or a single
// board-address-matched endpoint when tag.Chip is set (spec §4.6).
func (t *Transceiver) SetIPTag(ctx context.Context, tag IPTag) error {
	if err := t.checkOpen("set_ip_tag"); err != nil {
		return err
	}
	arg1, arg2, arg3, payload := ipTagArgs(uint32(scp.IPTagSetOp), tag.Tag, tag.StripSDP, tag.Host, tag.Port)
	return t.broadcastIPTagCommand(ctx, scp.CmdIPTagSet, "set_ip_tag", tag.Chip, arg1, arg2, arg3, payload)
}

// ClearIPTag sends IPTagClear (spec §4.6).
func (t *Transceiver) ClearIPTag(ctx context.Context, tagNumber uint8, chip *transport.ChipCoord) error {
	if err := t.checkOpen("clear_ip_tag"); err != nil {
		return err
	}
	arg1 := uint32(scp.IPTagClearOp) | uint32(tagNumber)<<8
	return t.broadcastIPTagCommand(ctx, scp.CmdIPTagClear, "clear_ip_tag", chip, arg1, 0, 0, nil)
}

// ReverseIPTag describes a reverse IP tag to install: SCAMP delivers
// inbound traffic on sdpPort to the given tag rather than resolving it to
// a host address (spec §4.6).
type ReverseIPTag struct {
	Tag     uint8
	SDPPort uint16
	Chip    *transport.ChipCoord
}

// SetReverseIPTag sends ReverseIPTagSet. SDPPort must not equal the SCAMP
// port or the boot port, else InvalidParameter (spec §4.6).
func (t *Transceiver) SetReverseIPTag(ctx context.Context, tag ReverseIPTag) error {
	if err := t.checkOpen("set_reverse_ip_tag"); err != nil {
		return err
	}
	if int(tag.SDPPort) == t.cfg.Machine.SCPPort || int(tag.SDPPort) == t.cfg.Machine.BootPort {
		return errors.NewInvalidParameter("sdp_port", tag.SDPPort, "must not equal the scamp or boot port")
	}
	arg1 := uint32(scp.ReverseIPTagSetOp) | uint32(tag.Tag)<<8
	arg2 := uint32(tag.SDPPort)
	return t.broadcastIPTagCommand(ctx, scp.CmdReverseIPTagSet, "set_reverse_ip_tag", tag.Chip, arg1, arg2, 0, nil)
}

// TagInfo is one tag's in-use status on one endpoint's chip, as GetTags
// reports it (spec §4.6).
type TagInfo struct {
	Chip  transport.ChipCoord
	Tag   uint8
	InUse bool
}

// GetTags sends IPTagGet(info) on every SCP-sender endpoint and collects
// the results.
func (t *Transceiver) GetTags(ctx context.Context) ([]TagInfo, error) {
	if err := t.checkOpen("get_tags"); err != nil {
		return nil, err
	}
	dests := t.ipTagDestinations(nil)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		infos []TagInfo
		first error
	)
	for _, d := range dests {
		d := d
		wg.Add(1)
		go func() {
			defer wg.Done()
			arg1 := uint32(scp.IPTagGetInfoOp)
			result, err := t.submitAndWait(ctx, d.X, d.Y, scp.CmdIPTagGet, fmt.Sprintf("(%d,%d) get_tags", d.X, d.Y), arg1, 0, 0, nil, okDecode, 3)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if first == nil {
					first = err
				}
				return
			}
			payload := result.([]byte)
			for i := 0; i*2 < len(payload); i++ {
				infos = append(infos, TagInfo{Chip: d, Tag: uint8(i), InUse: payload[i] != 0})
			}
		}()
	}
	wg.Wait()
	if first != nil {
		return nil, first
	}
	return infos, nil
}

func (t *Transceiver) broadcastIPTagCommand(ctx context.Context, command scp.Command, name string, chip *transport.ChipCoord, arg1, arg2, arg3 uint32, payload []byte) error {
	dests := t.ipTagDestinations(chip)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, d := range dests {
		d := d
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := t.submitAndWait(ctx, d.X, d.Y, command, fmt.Sprintf("(%d,%d) %s", d.X, d.Y, name), arg1, arg2, arg3, payload, okDecode, 3)
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
