package probe_test

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/cmbsolver/tuitcptester/internal/probe"
)

type capEntry struct {
	at      time.Duration
	src     uint16
	dst     uint16
	payload []byte
}

func buildFrame(t *testing.T, e capEntry) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(e.src),
		DstPort: layers.TCPPort(e.dst),
		PSH:     len(e.payload) > 0,
		ACK:     true,
		Window:  64240,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("checksum layer: %v", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(e.payload)); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return buf.Bytes()
}

func writeCapture(t *testing.T, entries []capEntry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.pcap")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("file header: %v", err)
	}

	base := time.Unix(1700000000, 0)
	for _, e := range entries {
		frame := buildFrame(t, e)
		ci := gopacket.CaptureInfo{
			Timestamp:     base.Add(e.at),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		if err := w.WritePacket(ci, frame); err != nil {
			t.Fatalf("write packet: %v", err)
		}
	}
	return path
}

func TestLoadReplayPackets(t *testing.T) {
	path := writeCapture(t, []capEntry{
		{at: 0, src: 52000, dst: 8080, payload: []byte("GET ")},
		{at: 30 * time.Millisecond, src: 8080, dst: 52000, payload: nil},
		{at: 50 * time.Millisecond, src: 8080, dst: 52000, payload: []byte("HTTP")},
		{at: 170 * time.Millisecond, src: 52000, dst: 8080, payload: []byte("BYE!")},
	})

	pkts, err := probe.LoadReplayPackets(path, 0, 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(pkts) != 3 {
		t.Fatalf("got %d payloads, want 3 (empty packet must be skipped)", len(pkts))
	}

	wantPayloads := []string{"GET ", "HTTP", "BYE!"}
	wantGaps := []time.Duration{0, 50 * time.Millisecond, 120 * time.Millisecond}
	for n, pkt := range pkts {
		if string(pkt.Payload) != wantPayloads[n] {
			t.Errorf("payload %d = %q, want %q", n, pkt.Payload, wantPayloads[n])
		}
		if pkt.Gap != wantGaps[n] {
			t.Errorf("gap %d = %v, want %v", n, pkt.Gap, wantGaps[n])
		}
	}
	if pkts[0].SrcPort != 52000 || pkts[0].DstPort != 8080 {
		t.Fatalf("ports not carried: %+v", pkts[0])
	}
}

func TestLoadReplayPacketsPortFilter(t *testing.T) {
	path := writeCapture(t, []capEntry{
		{at: 0, src: 52000, dst: 8080, payload: []byte("keep")},
		{at: 10 * time.Millisecond, src: 52001, dst: 9090, payload: []byte("drop")},
		{at: 20 * time.Millisecond, src: 8080, dst: 52000, payload: []byte("also")},
	})

	toServer, err := probe.LoadReplayPackets(path, 0, 8080)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(toServer) != 1 || string(toServer[0].Payload) != "keep" {
		t.Fatalf("dst filter kept %v", toServer)
	}

	fromServer, err := probe.LoadReplayPackets(path, 8080, 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(fromServer) != 1 || string(fromServer[0].Payload) != "also" {
		t.Fatalf("src filter kept %v", fromServer)
	}

	none, err := probe.LoadReplayPackets(path, 0, 1234)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("filter 1234 kept %d payloads", len(none))
	}
}

func TestLoadReplayPacketsPcapng(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pcapng")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	w, err := pcapgo.NewNgWriter(f, layers.LinkTypeEthernet)
	if err != nil {
		t.Fatalf("ng writer: %v", err)
	}
	frame := buildFrame(t, capEntry{src: 1111, dst: 2222, payload: []byte("NGDATA")})
	ci := gopacket.CaptureInfo{
		Timestamp:     time.Unix(1700000000, 0),
		CaptureLength: len(frame),
		Length:        len(frame),
	}
	if err := w.WritePacket(ci, frame); err != nil {
		t.Fatalf("write packet: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	f.Close()

	pkts, err := probe.LoadReplayPackets(path, 0, 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(pkts) != 1 || string(pkts[0].Payload) != "NGDATA" {
		t.Fatalf("pcapng payloads = %v", pkts)
	}
}

func TestLoadReplayPacketsRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noise.bin")
	if err := os.WriteFile(path, []byte("this is not a capture file"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := probe.LoadReplayPackets(path, 0, 0); err == nil {
		t.Fatal("garbage accepted as capture")
	}
	if _, err := probe.LoadReplayPackets(filepath.Join(t.TempDir(), "missing.pcap"), 0, 0); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestRunReplay(t *testing.T) {
	port, total := startCountingSink(t)

	logs := &logSink{}
	probe.RunReplay(context.Background(), "127.0.0.1", port, []probe.ReplayPacket{
		{Payload: []byte("AB")},
		{Payload: []byte("CDE"), Gap: 20 * time.Millisecond},
	}, logs.add)

	deadline := time.Now().Add(2 * time.Second)
	for total.Load() < 5 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := total.Load(); got != 5 {
		t.Fatalf("sink received %d bytes, want 5", got)
	}
	if !logs.has("replay complete: 2 payloads") {
		t.Fatal("missing completion line")
	}
}

func TestRunReplayEmpty(t *testing.T) {
	logs := &logSink{}
	probe.RunReplay(context.Background(), "127.0.0.1", 1, nil, logs.add)
	if !logs.has("no payloads to replay") {
		t.Fatal("missing empty-input line")
	}
}

func TestReplayPayloadIsCopied(t *testing.T) {
	path := writeCapture(t, []capEntry{
		{at: 0, src: 1, dst: 2, payload: bytes.Repeat([]byte{0x41}, 8)},
	})
	pkts, err := probe.LoadReplayPackets(path, 0, 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(pkts) != 1 || !bytes.Equal(pkts[0].Payload, bytes.Repeat([]byte{0x41}, 8)) {
		t.Fatalf("payload = % x", pkts[0].Payload)
	}
}
