// Package bench implements the `tuitcptester bench` subcommand — a raw TCP
// throughput test that floods a listener with random bytes and reports the
// sustained rate.
package bench

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/cmbsolver/tuitcptester/internal/probe"
)

var (
	exitSuccess = 0
	exitFailure = 1
	exitUsage   = 2
)

const (
	minSeconds = 1
	maxSeconds = 300
)

// BenchOutput is the structured output of tuitcptester bench.
type BenchOutput struct {
	SchemaVersion  string  `json:"schema_version"`
	Host           string  `json:"host"`
	Port           int     `json:"port"`
	Seconds        int     `json:"seconds"`
	TotalBytes     uint64  `json:"total_bytes"`
	BytesPerSecond float64 `json:"bytes_per_second"`
	Rate           string  `json:"rate"`
	Success        bool    `json:"success"`
	DurationMs     int64   `json:"duration_ms"`
}

func Run(args []string, version string) int {
	flagSet := flag.NewFlagSet("tuitcptester bench", flag.ContinueOnError)
	flagSet.SetOutput(os.Stdout)

	var (
		host    string
		port    int
		seconds int
		jsonOut bool
	)
	flagSet.StringVar(&host, "host", "127.0.0.1", "Target host")
	flagSet.StringVar(&host, "H", "127.0.0.1", "Target host (short)")
	flagSet.IntVar(&port, "port", 0, "Target port")
	flagSet.IntVar(&port, "p", 0, "Target port (short)")
	flagSet.IntVar(&seconds, "seconds", 10, "Test duration in seconds")
	flagSet.BoolVar(&jsonOut, "json", false, "Output as JSON")
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
		fmt.Fprintln(os.Stderr, "tuitcptester bench: a target port between 1 and 65535 is required")
		return exitUsage
	}
	if seconds < minSeconds || seconds > maxSeconds {
		fmt.Fprintf(os.Stderr, "tuitcptester bench: seconds must be between %d and %d\n", minSeconds, maxSeconds)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !jsonOut {
		fmt.Printf("Benchmarking %s:%d for %ds\n", host, port, seconds)
	}

	progressTTY := !jsonOut && term.IsTerminal(int(os.Stderr.Fd()))
	var lastPrint time.Time
	onProgress := func(total uint64) {
		if !progressTTY {
			return
		}
		if time.Since(lastPrint) < 100*time.Millisecond {
			return
		}
		lastPrint = time.Now()
		fmt.Fprintf(os.Stderr, "\r%s sent", humanBytes(total))
	}

	start := time.Now()
	result := probe.RunThroughputTest(ctx, host, uint16(port),
		time.Duration(seconds)*time.Second, onProgress)
	if progressTTY {
		fmt.Fprintln(os.Stderr)
	}

	out := &BenchOutput{
		SchemaVersion:  "1.0",
		Host:           host,
		Port:           port,
		Seconds:        seconds,
		TotalBytes:     result.TotalBytes,
		BytesPerSecond: result.BytesPerSecond,
		Rate:           humanRate(result.BytesPerSecond),
		Success:        result.Success,
		DurationMs:     time.Since(start).Milliseconds(),
	}

	if jsonOut {
		if encErr := json.NewEncoder(os.Stdout).Encode(out); encErr != nil {
			fmt.Fprintf(os.Stderr, "tuitcptester bench: json encode error: %v\n", encErr)
			return exitFailure
		}
	} else if out.Success {
		fmt.Printf("Sent %s in %.1fs (%s)\n",
			humanBytes(out.TotalBytes), result.Elapsed.Seconds(), out.Rate)
	} else {
		fmt.Fprintf(os.Stderr, "tuitcptester bench: test failed after %s sent\n", humanBytes(out.TotalBytes))
	}

	if !out.Success {
		return exitFailure
	}
	return exitSuccess
}

func humanBytes(n uint64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.2f GB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.2f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func humanRate(bps float64) string {
	switch {
	case bps >= 1<<30:
		return fmt.Sprintf("%.2f GB/s", bps/(1<<30))
	case bps >= 1<<20:
		return fmt.Sprintf("%.2f MB/s", bps/(1<<20))
	case bps >= 1<<10:
		return fmt.Sprintf("%.2f KB/s", bps/(1<<10))
	default:
		return fmt.Sprintf("%.0f B/s", bps)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stdout, `Usage: tuitcptester bench [flags]

Raw TCP throughput test: connects once and writes random 64 KB chunks for
the configured duration. The receiver must drain the socket (any TCP sink
works, e.g. a tuitcptester server connection).

Flags:
  -h, --help          Show help
  -H, --host string   Target host (default: 127.0.0.1)
  -p, --port int      Target port (required)
  --seconds int       Test duration in seconds (default: 10)
  --json              Output as JSON

Exit codes:
  0   Test completed (Ctrl-C ends the test early but still succeeds)
  1   Connect refused or write failed mid-test
  2   Invalid arguments

Examples:
  tuitcptester bench -H 192.168.1.20 -p 7000
  tuitcptester bench -H 10.0.0.5 -p 9000 --seconds 30 --json
`)
}
