package probe

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// pcapngMagic is the Section Header Block byte-order magic; classic pcap
// files start with 0xA1B2C3D4 or one of its byte-order/precision variants.
const pcapngMagic = 0x0A0D0D0A

// ReplayPacket is one TCP payload lifted from a capture file. Gap is the
// time between this packet and the previous kept one, so replaying with the
// gaps reproduces the capture's pacing.
type ReplayPacket struct {
	Payload []byte
	Gap     time.Duration
	SrcPort uint16
	DstPort uint16
}

// captureReader is satisfied by both pcapgo readers.
type captureReader interface {
	LinkType() layers.LinkType
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// LoadReplayPackets extracts the non-empty TCP payloads from a pcap or
// pcapng file, sniffing the format from the magic number. Non-zero srcPort
// or dstPort keep only packets matching that side, so a capture of a full
// conversation can be reduced to the direction being replayed.
func LoadReplayPackets(path string, srcPort, dstPort uint16) ([]ReplayPacket, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return nil, fmt.Errorf("%s: not a capture file: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	var src captureReader
	if binary.LittleEndian.Uint32(magic) == pcapngMagic {
		src, err = pcapgo.NewNgReader(f, pcapgo.DefaultNgReaderOptions)
	} else {
		src, err = pcapgo.NewReader(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var out []ReplayPacket
	var prev time.Time
	packets := gopacket.NewPacketSource(src, src.LinkType())
	for packet := range packets.Packets() {
		tcpLayer := packet.Layer(layers.LayerTypeTCP)
		if tcpLayer == nil {
			continue
		}
		tcp := tcpLayer.(*layers.TCP)
		if len(tcp.Payload) == 0 {
			continue
		}
		if srcPort != 0 && uint16(tcp.SrcPort) != srcPort {
			continue
		}
		if dstPort != 0 && uint16(tcp.DstPort) != dstPort {
			continue
		}

		var gap time.Duration
		ts := packet.Metadata().Timestamp
		if !prev.IsZero() && ts.After(prev) {
			gap = ts.Sub(prev)
		}
		prev = ts

		out = append(out, ReplayPacket{
			Payload: append([]byte(nil), tcp.Payload...),
			Gap:     gap,
			SrcPort: uint16(tcp.SrcPort),
			DstPort: uint16(tcp.DstPort),
		})
	}
	return out, nil
}

// RunReplay writes previously loaded packets to host:port, honoring each
// packet's capture gap. Like the other probes it only ever logs.
func RunReplay(ctx context.Context, host string, port uint16, packets []ReplayPacket, onLog func(string)) {
	logf := func(format string, args ...interface{}) {
		if onLog != nil {
			onLog(fmt.Sprintf(format, args...))
		}
	}

	if len(packets) == 0 {
		logf("no payloads to replay")
		return
	}

	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
	c, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		logf("connect to %s failed: %v", addr, err)
		return
	}
	defer c.Close()
	logf("replaying %d payloads to %s", len(packets), addr)

	for i, pkt := range packets {
		if pkt.Gap > 0 {
			select {
			case <-time.After(pkt.Gap):
			case <-ctx.Done():
				logf("aborted after %d of %d payloads", i, len(packets))
				return
			}
		} else {
			select {
			case <-ctx.Done():
				logf("aborted after %d of %d payloads", i, len(packets))
				return
			default:
			}
		}

		_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := c.Write(pkt.Payload); err != nil {
			logf("payload %d/%d failed: %v", i+1, len(packets), err)
			return
		}
		logf("payload %d/%d sent (%d bytes, gap %s)", i+1, len(packets), len(pkt.Payload), pkt.Gap)
	}
	logf("replay complete: %d payloads", len(packets))
}
