// Package replay implements the `tuitcptester replay` subcommand — fires a
// hex payload at a target N times, or replays the TCP payloads of a capture
// file with their original pacing.
package replay

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cmbsolver/tuitcptester/internal/probe"
	"github.com/cmbsolver/tuitcptester/internal/wire"
	"github.com/cmbsolver/tuitcptester/pkg/types"
)

var (
	exitSuccess = 0
	exitFailure = 1
	exitUsage   = 2
)

const defaultMaxGapMs = 1000

func Run(args []string, version string) int {
	flagSet := flag.NewFlagSet("tuitcptester replay", flag.ContinueOnError)
	flagSet.SetOutput(os.Stdout)

	var (
		host       string
		port       int
		hexPayload string
		count      int
		delayMs    int
		pcapPath   string
		srcPort    int
		dstPort    int
		maxGapMs   int
	)
	flagSet.StringVar(&host, "host", "127.0.0.1", "Target host")
	flagSet.StringVar(&host, "H", "127.0.0.1", "Target host (short)")
	flagSet.IntVar(&port, "port", 0, "Target port")
	flagSet.IntVar(&port, "p", 0, "Target port (short)")
	flagSet.StringVar(&hexPayload, "hex", "", "Hex payload to send (spaces/dashes allowed)")
	flagSet.IntVar(&count, "count", 1, "Number of sends (hex mode)")
	flagSet.IntVar(&delayMs, "delay", 100, "Delay between sends in ms (hex mode)")
	flagSet.StringVar(&pcapPath, "pcap", "", "Capture file to replay (pcap or pcapng)")
	flagSet.IntVar(&srcPort, "sport", 0, "Keep only capture packets from this source port")
	flagSet.IntVar(&dstPort, "dport", 0, "Keep only capture packets to this destination port")
	flagSet.IntVar(&maxGapMs, "max-gap", defaultMaxGapMs, "Cap between-packet gaps in ms (pcap mode)")
	help := flagSet.Bool("help", false, "Show help")
	flagSet.BoolVar(help, "h", false, "Show help (short)")

	if err := flagSet.Parse(args); err != nil {
		return exitUsage
	}
	if *help {
		printUsage()
		return exitSuccess
	}

	if port < 1 || port > 65535 {
		fmt.Fprintln(os.Stderr, "tuitcptester replay: a target port between 1 and 65535 is required")
		return exitUsage
	}
	if (hexPayload == "") == (pcapPath == "") {
		fmt.Fprintln(os.Stderr, "tuitcptester replay: exactly one of -hex or -pcap is required")
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	onLog := func(msg string) {
		fmt.Printf("%s %s\n", time.Now().Format("15:04:05.000"), msg)
	}

	if hexPayload != "" {
		if count < 1 {
			fmt.Fprintln(os.Stderr, "tuitcptester replay: count must be at least 1")
			return exitUsage
		}
		if delayMs < 0 {
			fmt.Fprintln(os.Stderr, "tuitcptester replay: delay must be >= 0")
			return exitUsage
		}
		if _, err := wire.Encode(hexPayload, types.EncodingHex); err != nil {
			fmt.Fprintf(os.Stderr, "tuitcptester replay: invalid hex payload: %v\n", err)
			return exitUsage
		}

		probe.RunPacketGenerator(ctx, host, uint16(port), hexPayload, count,
			time.Duration(delayMs)*time.Millisecond, onLog)
		return exitSuccess
	}

	if srcPort < 0 || srcPort > 65535 || dstPort < 0 || dstPort > 65535 {
		fmt.Fprintln(os.Stderr, "tuitcptester replay: filter ports must be between 0 and 65535")
		return exitUsage
	}
	if maxGapMs < 0 {
		fmt.Fprintln(os.Stderr, "tuitcptester replay: max-gap must be >= 0")
		return exitUsage
	}

	packets, err := probe.LoadReplayPackets(pcapPath, uint16(srcPort), uint16(dstPort))
	if err != nil {
		fmt.Fprintf(os.Stderr, "tuitcptester replay: %v\n", err)
		return exitFailure
	}
	if len(packets) == 0 {
		fmt.Fprintln(os.Stderr, "tuitcptester replay: no matching TCP payloads in capture")
		return exitFailure
	}

	// Long capture pauses are capped so replays stay interactive.
	maxGap := time.Duration(maxGapMs) * time.Millisecond
	for i := range packets {
		if packets[i].Gap > maxGap {
			packets[i].Gap = maxGap
		}
	}

	probe.RunReplay(ctx, host, uint16(port), packets, onLog)
	return exitSuccess
}

func printUsage() {
	fmt.Fprintf(os.Stdout, `Usage: tuitcptester replay [flags]

Hex mode sends one hex payload repeatedly. Pcap mode extracts the non-empty
TCP payloads from a capture and writes them through a fresh connection,
keeping the capture's pacing (gaps capped by --max-gap).

Flags:
  -h, --help          Show help
  -H, --host string   Target host (default: 127.0.0.1)
  -p, --port int      Target port (required)
  --hex string        Hex payload to send; spaces and dashes are ignored
  --count int         Sends in hex mode (default: 1)
  --delay int         Delay between sends in ms (default: 100)
  --pcap string       Capture file to replay (pcap or pcapng)
  --sport int         Keep only capture packets from this source port
  --dport int         Keep only capture packets to this destination port
  --max-gap int       Cap between-packet gaps in ms (default: 1000)

Exit codes:
  0   Replay ran (send failures are reported in the log, not the exit code)
  1   Capture unreadable or no payloads matched the filter
  2   Invalid arguments

Examples:
  tuitcptester replay -H 10.0.0.5 -p 7000 --hex "de ad be ef" --count 10
  tuitcptester replay -H 10.0.0.5 -p 80 --pcap session.pcapng --dport 80
`)
}
