// Package runner implements the `tuitcptester run` subcommand — loads the
// connection document, starts every definition, and runs headless until
// SIGINT/SIGTERM. Traffic and subscriber log lines go to stdout; process
// logs go to stderr. An optional websocket monitor mirrors the events.
package runner

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cmbsolver/tuitcptester/internal/config"
	"github.com/cmbsolver/tuitcptester/internal/engine"
	"github.com/cmbsolver/tuitcptester/internal/logging"
	"github.com/cmbsolver/tuitcptester/internal/monitor"
)

var (
	exitSuccess = 0
	exitFailure = 1
	exitUsage   = 2
)

func Run(args []string, version string) int {
	flagSet := flag.NewFlagSet("tuitcptester run", flag.ContinueOnError)
	flagSet.SetOutput(os.Stdout)

	var (
		docPath      string
		settingsPath string
		monitorAddr  string
	)
	flagSet.StringVar(&docPath, "config", "", "Connection document path (default: from settings)")
	flagSet.StringVar(&docPath, "c", "", "Connection document path (short)")
	flagSet.StringVar(&settingsPath, "settings", "", "App settings YAML (default: ~/.config/tuitcptester/config.yaml)")
	flagSet.StringVar(&monitorAddr, "monitor", "", "Serve the websocket monitor on this address (host:port)")
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
		fmt.Fprintf(os.Stderr, "tuitcptester run: %v\n", err)
		return exitFailure
	}
	logging.Init(logging.ParseLevel(cfg.LogLevel))

	if docPath == "" {
		docPath = cfg.DocumentPath
	}
	if monitorAddr == "" {
		monitorAddr = cfg.MonitorAddr
	}

	doc, err := config.LoadDocument(docPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tuitcptester run: %v\n", err)
		return exitFailure
	}
	if len(doc.Connections) == 0 {
		fmt.Fprintf(os.Stderr, "tuitcptester run: no connections defined in %s\n", docPath)
		return exitFailure
	}

	var hub *monitor.Hub
	var monSrv *monitor.Server
	if monitorAddr != "" {
		hub = monitor.NewHub(cfg.AllowedOrigins, cfg.PingInterval)
		monSrv = monitor.NewServer(monitorAddr, hub)
		if err := monSrv.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "tuitcptester run: %v\n", err)
			hub.Close()
			return exitFailure
		}
	}

	mgr := engine.NewManager()
	started := 0
	for _, cc := range doc.Connections {
		inst, err := mgr.Create(cc)
		if err != nil {
			logging.Error("connection rejected",
				logging.Field{Key: "name", Value: cc.Name},
				logging.Field{Key: "error", Value: err})
			continue
		}
		wireObservers(inst, hub)
		if err := inst.Start(); err != nil {
			logging.Error("connection failed to start",
				logging.Field{Key: "name", Value: inst.Name()},
				logging.Field{Key: "error", Value: err})
			continue
		}
		started++
	}

	if started == 0 {
		logging.Error("no connections started")
		shutdown(mgr, monSrv)
		return exitFailure
	}

	logging.Info("runner started",
		logging.Field{Key: "version", Value: version},
		logging.Field{Key: "document", Value: docPath},
		logging.Field{Key: "connections", Value: started})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	sig := <-quit
	logging.Info("shutting down", logging.Field{Key: "signal", Value: sig.String()})

	shutdown(mgr, monSrv)
	return exitSuccess
}

// wireObservers taps the instance fan-out: log lines go to stdout in the
// dump-file line format, status and error changes go to the process log and
// the monitor hub when one is serving.
func wireObservers(inst *engine.Instance, hub *monitor.Hub) {
	id, name := inst.ID(), inst.Name()

	inst.OnLog(func(ts time.Time, connName, msg string) {
		fmt.Printf("%s [%s] %s\n", ts.Format("2006-01-02 15:04:05.000"), connName, msg)
		if hub != nil {
			hub.BroadcastLog(id, connName, msg)
		}
	})
	inst.OnStatus(func() {
		status := inst.Status()
		logging.Info("status changed",
			logging.Field{Key: "conn", Value: name},
			logging.Field{Key: "status", Value: status.String()})
		if hub != nil {
			hub.BroadcastStatus(id, name, status)
		}
	})
	inst.OnError(func(msg string) {
		logging.Error("connection error",
			logging.Field{Key: "conn", Value: name},
			logging.Field{Key: "error", Value: msg})
		if hub != nil {
			hub.BroadcastError(id, name, msg)
		}
	})
}

func shutdown(mgr *engine.Manager, monSrv *monitor.Server) {
	mgr.StopAll()
	mgr.DisposeAll()

	if monSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := monSrv.Shutdown(ctx); err != nil {
			logging.Warn("monitor shutdown", logging.Field{Key: "error", Value: err})
		}
	}
}

func printUsage() {
	fmt.Fprintf(os.Stdout, `Usage: tuitcptester run [flags]

Headless runner: creates and starts every connection in the document, then
waits for SIGINT/SIGTERM. Connection log lines (sends, receives, accepts)
stream to stdout; process events go to stderr.

Flags:
  -h, --help            Show help
  -c, --config string   Connection document path (default: from settings)
  --settings string     App settings YAML (default: ~/.config/tuitcptester/config.yaml)
  --monitor string      Serve the websocket monitor on host:port (ws://.../ws)

Exit codes:
  0   Ran and shut down cleanly
  1   Config/document error, or nothing could be started
  2   Invalid arguments

Examples:
  tuitcptester run -c connections.json
  tuitcptester run -c lab.json --monitor 127.0.0.1:8089
`)
}
