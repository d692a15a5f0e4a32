// Command tuitcptester dispatches to the subcommand packages. Each one
// exports Run(args, version) so the dispatcher stays a thin switch and the
// packages stay independently testable.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/cmbsolver/tuitcptester/cmd/bench"
	mcpcmd "github.com/cmbsolver/tuitcptester/cmd/mcp"
	"github.com/cmbsolver/tuitcptester/cmd/replay"
	"github.com/cmbsolver/tuitcptester/cmd/runner"
	"github.com/cmbsolver/tuitcptester/cmd/scan"
	"github.com/cmbsolver/tuitcptester/cmd/tui"
)

var version = "dev"

// Dispatch seams, swapped out by tests.
var (
	runTui    = tui.Run
	runRunner = runner.Run
	runScan   = scan.Run
	runBench  = bench.Run
	runReplay = replay.Run
	runMCP    = mcpcmd.Run
)

func main() {
	os.Exit(run(os.Args[1:], version))
}

func run(args []string, version string) int {
	if len(args) == 0 {
		return runTui(nil, version)
	}

	switch args[0] {
	case "tui":
		return runTui(args[1:], version)
	case "run":
		return runRunner(args[1:], version)
	case "scan":
		return runScan(args[1:], version)
	case "bench":
		return runBench(args[1:], version)
	case "replay":
		return runReplay(args[1:], version)
	case "mcp":
		return runMCP(version)
	case "help", "-h", "--help":
		printUsage()
		return 0
	case "version", "--version":
		fmt.Printf("tuitcptester %s\n", version)
		return 0
	default:
		if strings.HasPrefix(args[0], "-") {
			fmt.Fprintf(os.Stderr, "tuitcptester: unknown flag %q (flags belong after a command)\n\n", args[0])
		} else {
			fmt.Fprintf(os.Stderr, "tuitcptester: unknown command %q\n\n", args[0])
		}
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintf(os.Stdout, `Usage: tuitcptester <command> [args]

Commands:
  tui       Interactive terminal front-end (default when no command provided)
  run       Headless runner: start every connection in the document
  scan      TCP port sweep with service names
  bench     Raw TCP throughput test
  replay    Send a hex payload or a captured conversation
  mcp       Run as MCP server (stdio transport, for AI agents)

Examples:
  tuitcptester
  tuitcptester run -c ./connections.json -monitor :8089
  tuitcptester scan -host 192.168.1.10 -start 1 -end 1024
  tuitcptester bench -host 10.0.0.2 -p 9000 -seconds 10
  tuitcptester replay -host 10.0.0.2 -p 9000 -pcap capture.pcap
  tuitcptester mcp
`)
}
