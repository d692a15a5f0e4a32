// Package tui implements the `tuitcptester tui` subcommand, the interactive
// terminal front-end. It loads the connection document, registers every
// definition with an engine manager and renders the manager's state; all
// socket work happens inside the engine.
package tui

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cmbsolver/tuitcptester/internal/config"
	"github.com/cmbsolver/tuitcptester/internal/engine"
	"github.com/cmbsolver/tuitcptester/internal/logging"
)

var (
	exitSuccess = 0
	exitFailure = 1
	exitUsage   = 2
)

const logTimeFormat = "15:04:05.000"

func Run(args []string, version string) int {
	flagSet := flag.NewFlagSet("tuitcptester tui", flag.ContinueOnError)
	flagSet.SetOutput(os.Stdout)

	var (
		docPath      string
		settingsPath string
	)
	flagSet.StringVar(&docPath, "config", "", "Connection document path (default: from settings)")
	flagSet.StringVar(&docPath, "c", "", "Connection document path (short)")
	flagSet.StringVar(&settingsPath, "settings", "", "App settings YAML (default: ~/.config/tuitcptester/config.yaml)")
	help := flagSet.Bool("help", false, "Show help")
	flagSet.BoolVar(help, "h", false, "Show help (short)")

	if err := flagSet.Parse(args); err != nil {
		return exitUsage
	}
	if *help {
		printUsage()
		return exitSuccess
	}

	cfg, err := config.Load(settingsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tuitcptester tui: %v\n", err)
		return exitFailure
	}
	if docPath == "" {
		docPath = cfg.DocumentPath
	}

	doc, err := config.LoadDocument(docPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tuitcptester tui: %v\n", err)
		return exitFailure
	}
	if len(doc.Connections) == 0 {
		fmt.Fprintf(os.Stderr, "tuitcptester tui: no connections defined in %s\n", docPath)
		return exitFailure
	}

	// Process logs must not reach stderr once the alternate screen is up,
	// so they go to a per-document session file instead.
	initSessionLog(docPath, cfg.LogLevel)

	mgr := engine.NewManager()
	tap := newEventTap()
	for _, cc := range doc.Connections {
		inst, err := mgr.Create(cc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "tuitcptester tui: %v\n", err)
			mgr.DisposeAll()
			return exitFailure
		}
		watchInstance(inst, tap)
	}

	m := newModel(mgr, tap, docPath, version)
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()

	mgr.StopAll()
	mgr.DisposeAll()

	if err != nil {
		fmt.Fprintf(os.Stderr, "tuitcptester tui: %v\n", err)
		return exitFailure
	}
	return exitSuccess
}

// watchInstance bridges one instance's observers into the event tap. Log
// and error lines carry text; status changes only wake the program loop,
// the view re-reads the status itself.
func watchInstance(inst *engine.Instance, tap *eventTap) {
	inst.OnLog(func(ts time.Time, name, msg string) {
		tap.push(fmt.Sprintf("%s [%s] %s", ts.Format(logTimeFormat), name, msg))
	})
	inst.OnStatus(func() {
		tap.notify()
	})
	inst.OnError(func(msg string) {
		tap.push(fmt.Sprintf("%s [%s] error: %s", time.Now().Format(logTimeFormat), inst.Name(), msg))
	})
}

// initSessionLog routes process logs to logs/<document>.log. Failing to open
// the file is not fatal; logs are dropped rather than corrupting the screen.
func initSessionLog(docPath, level string) {
	base := strings.TrimSuffix(filepath.Base(docPath), filepath.Ext(docPath))

	var out io.Writer = io.Discard
	if err := os.MkdirAll("logs", 0o755); err == nil {
		path := filepath.Join("logs", base+".log")
		if f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
			out = f
		}
	}
	logging.InitWithOutput(out, logging.ParseLevel(level))
}

func printUsage() {
	fmt.Print(`Usage: tuitcptester tui [flags]

Interactive terminal front-end. Shows every connection from the document
with its live status, a details panel for the selected connection and a
scrolling log of all traffic.

Flags:
  -config, -c PATH   Connection document path (default: from settings)
  -settings PATH     App settings YAML (default: ~/.config/tuitcptester/config.yaml)
  -help, -h          Show this help

Keys:
  up/down            Select a connection
  enter              Start or stop the selected connection
  s                  Send the selected connection's first transaction now
  tab                Switch focus between connections and logs
  g / G              Jump to top / bottom of the log (logs focused)
  q, ctrl+c          Quit (stops every connection)

Exit codes:
  0  Clean exit
  1  Settings, document or terminal failure

Examples:
  tuitcptester tui
  tuitcptester tui -c ./connections.json
`)
}
