// Package scan implements the `tuitcptester scan` subcommand — a concurrent
// TCP connect sweep over a port range with well-known service names in the
// summary.
package scan

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
	"github.com/cmbsolver/tuitcptester/pkg/types"
)

var (
	exitSuccess = 0
	exitFailure = 1
	exitUsage   = 2
)

const (
	minTimeoutMs = 1
	maxTimeoutMs = 60000
)

// ScanOutput is the structured output of tuitcptester scan.
type ScanOutput struct {
	SchemaVersion string             `json:"schema_version"`
	Host          string             `json:"host"`
	StartPort     int                `json:"start_port"`
	EndPort       int                `json:"end_port"`
	ScannedPorts  int                `json:"scanned_ports"`
	OpenCount     int                `json:"open_count"`
	DurationMs    int64              `json:"duration_ms"`
	Interrupted   bool               `json:"interrupted,omitempty"`
	Results       []types.ScanResult `json:"results"`
}

func Run(args []string, version string) int {
	flagSet := flag.NewFlagSet("tuitcptester scan", flag.ContinueOnError)
	flagSet.SetOutput(os.Stdout)

	var (
		host      string
		startPort int
		endPort   int
		timeoutMs int
		openOnly  bool
		jsonOut   bool
	)
	flagSet.StringVar(&host, "host", "127.0.0.1", "Target host")
	flagSet.StringVar(&host, "H", "127.0.0.1", "Target host (short)")
	flagSet.IntVar(&startPort, "start", 1, "First port of the range")
	flagSet.IntVar(&endPort, "end", 1024, "Last port of the range")
	flagSet.IntVar(&timeoutMs, "timeout", 500, "Per-port connect timeout in milliseconds")
	flagSet.BoolVar(&openOnly, "open-only", false, "Report only open ports")
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

	if startPort < 1 || startPort > 65535 || endPort < 1 || endPort > 65535 {
		fmt.Fprintln(os.Stderr, "tuitcptester scan: ports must be between 1 and 65535")
		return exitUsage
	}
	if startPort > endPort {
		fmt.Fprintf(os.Stderr, "tuitcptester scan: start port %d exceeds end port %d\n", startPort, endPort)
		return exitUsage
	}
	if timeoutMs < minTimeoutMs || timeoutMs > maxTimeoutMs {
		fmt.Fprintf(os.Stderr, "tuitcptester scan: timeout must be between %d and %d ms\n", minTimeoutMs, maxTimeoutMs)
		return exitUsage
	}
	if host == "" {
		fmt.Fprintln(os.Stderr, "tuitcptester scan: host is required")
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	total := endPort - startPort + 1
	progressTTY := !jsonOut && term.IsTerminal(int(os.Stderr.Fd()))
	if !jsonOut {
		fmt.Printf("Scanning %s ports %d-%d (timeout %dms)\n", host, startPort, endPort, timeoutMs)
	}

	probed := 0
	onProgress := func(types.ScanResult) {
		probed++
		if progressTTY {
			fmt.Fprintf(os.Stderr, "\rprobed %d/%d", probed, total)
		}
	}

	start := time.Now()
	results, err := probe.ScanRange(ctx, host, uint16(startPort), uint16(endPort),
		time.Duration(timeoutMs)*time.Millisecond, onProgress)
	if progressTTY {
		fmt.Fprintln(os.Stderr)
	}

	interrupted := err != nil
	out := &ScanOutput{
		SchemaVersion: "1.0",
		Host:          host,
		StartPort:     startPort,
		EndPort:       endPort,
		ScannedPorts:  len(results),
		DurationMs:    time.Since(start).Milliseconds(),
		Interrupted:   interrupted,
	}
	for _, r := range results {
		if r.Open {
			out.OpenCount++
		}
		if !openOnly || r.Open {
			out.Results = append(out.Results, r)
		}
	}

	if jsonOut {
		if encErr := json.NewEncoder(os.Stdout).Encode(out); encErr != nil {
			fmt.Fprintf(os.Stderr, "tuitcptester scan: json encode error: %v\n", encErr)
			return exitFailure
		}
	} else {
		printHuman(out, openOnly)
	}

	if interrupted {
		if !jsonOut {
			fmt.Fprintln(os.Stderr, "tuitcptester scan: interrupted, results are partial")
		}
		return exitFailure
	}
	return exitSuccess
}

func printHuman(out *ScanOutput, openOnly bool) {
	if len(out.Results) > 0 {
		fmt.Printf("%-7s %-7s %s\n", "PORT", "STATE", "SERVICE")
		for _, r := range out.Results {
			state := "closed"
			if r.Open {
				state = "open"
			}
			fmt.Printf("%-7d %-7s %s\n", r.Port, state, r.Service)
		}
	}

	closed := out.ScannedPorts - out.OpenCount
	fmt.Printf("\n%d open, %d closed of %d scanned (%.1fs)\n",
		out.OpenCount, closed, out.ScannedPorts, float64(out.DurationMs)/1000)
	if openOnly && out.OpenCount == 0 {
		fmt.Println("no open ports in range")
	}
}

func printUsage() {
	fmt.Fprintf(os.Stdout, `Usage: tuitcptester scan [flags]

Concurrent TCP connect sweep over a port range. Closed and filtered ports
both count as closed; no packet crafting, just full connects.

Flags:
  -h, --help          Show help
  -H, --host string   Target host (default: 127.0.0.1)
  --start int         First port of the range (default: 1)
  --end int           Last port of the range (default: 1024)
  --timeout int       Per-port connect timeout in ms (default: 500)
  --open-only         Report only open ports
  --json              Output as JSON

Exit codes:
  0   Sweep completed
  1   Sweep interrupted (partial results printed)
  2   Invalid arguments

Examples:
  tuitcptester scan -H 192.168.1.20 --start 1 --end 1024
  tuitcptester scan -H 10.0.0.5 --start 8000 --end 9000 --open-only --json
`)
}
