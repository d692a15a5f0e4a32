// Package engine composes connections, transaction schedulers and log
// fan-out into managed instances. It is the layer every front end (TUI,
// runner daemon, MCP server) drives; none of them touch sockets directly.
package engine

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cmbsolver/tuitcptester/internal/conn"
	"github.com/cmbsolver/tuitcptester/internal/wire"
	errs "github.com/cmbsolver/tuitcptester/pkg/errors"
	"github.com/cmbsolver/tuitcptester/pkg/types"
)

// LogFunc receives one timestamped log line from an instance.
type LogFunc func(ts time.Time, name, msg string)

// Instance is one configured connection plus its scheduler and log sinks.
// Observers must be registered before Start; registration is cheap and
// never blocks the connection's goroutines.
type Instance struct {
	id   string
	name string
	cfg  types.ConnectionConfig

	conn  conn.Conn
	sched *scheduler

	omu       sync.RWMutex
	logFns    []LogFunc
	statusFns []func()
	errorFns  []func(msg string)

	smu      sync.Mutex
	lastErr  string
	disposed bool
}

// NewInstance validates cfg and builds the instance. The returned instance
// is idle; nothing touches the network until Start.
func NewInstance(cfg types.ConnectionConfig) (*Instance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errs.ErrInvalidConfig(err.Error(), nil)
	}

	inst := &Instance{
		id:   uuid.New().String(),
		name: cfg.Name,
		cfg:  cfg,
	}

	c, err := conn.New(cfg, conn.Callbacks{
		OnLog:    inst.logLine,
		OnStatus: inst.onStatus,
		OnError:  inst.onError,
		OnData:   inst.onData,
	})
	if err != nil {
		return nil, err
	}
	inst.conn = c
	inst.sched = newScheduler(cfg, c.Send)
	return inst, nil
}

func (i *Instance) ID() string   { return i.id }
func (i *Instance) Name() string { return i.name }

// Config returns a copy of the immutable configuration.
func (i *Instance) Config() types.ConnectionConfig { return i.cfg }

func (i *Instance) Status() types.Status { return i.conn.Status() }

// LocalAddr reports the bound or dialed local address, nil while idle.
// Servers on port 0 learn their real port from this.
func (i *Instance) LocalAddr() net.Addr { return i.conn.LocalAddr() }

// Cursor reports which automatic transaction fires next.
func (i *Instance) Cursor() int { return i.sched.Cursor() }

// LastError returns the most recent error notification, "" if none.
func (i *Instance) LastError() string {
	i.smu.Lock()
	defer i.smu.Unlock()
	return i.lastErr
}

// OnLog registers a sink for timestamped log lines.
func (i *Instance) OnLog(fn LogFunc) {
	i.omu.Lock()
	i.logFns = append(i.logFns, fn)
	i.omu.Unlock()
}

// OnStatus registers a status-change notification. It carries no payload;
// read Status() for the current value.
func (i *Instance) OnStatus(fn func()) {
	i.omu.Lock()
	i.statusFns = append(i.statusFns, fn)
	i.omu.Unlock()
}

// OnError registers an error-message sink.
func (i *Instance) OnError(fn func(msg string)) {
	i.omu.Lock()
	i.errorFns = append(i.errorFns, fn)
	i.omu.Unlock()
}

// Start opens the connection. Errors reach both the return value and the
// registered error sinks.
func (i *Instance) Start() error {
	if i.isDisposed() {
		return errs.ErrDisposed(i.name)
	}
	return i.conn.Start()
}

// Stop halts the scheduler and closes the connection. The instance can be
// started again afterwards.
func (i *Instance) Stop() {
	i.sched.Stop()
	i.conn.Stop()
}

// SendManual sends one transaction outside the automatic schedule. It is
// not serialized against scheduler sends.
func (i *Instance) SendManual(tx types.Transaction) error {
	if i.isDisposed() {
		return errs.ErrDisposed(i.name)
	}
	return i.conn.Send(tx)
}

// Dispose stops the instance and makes it permanently unusable.
func (i *Instance) Dispose() {
	i.smu.Lock()
	if i.disposed {
		i.smu.Unlock()
		return
	}
	i.disposed = true
	i.smu.Unlock()

	i.Stop()
}

func (i *Instance) isDisposed() bool {
	i.smu.Lock()
	defer i.smu.Unlock()
	return i.disposed
}

// logLine timestamps one line, mirrors it to the dump file when configured,
// then fans it out. A failed mirror is reported to the log sinks but never
// written back to the file.
func (i *Instance) logLine(msg string) {
	ts := time.Now()
	if i.cfg.DumpFilePath != "" {
		if err := appendDumpLine(i.cfg.DumpFilePath, ts, i.name, msg); err != nil {
			i.fanoutLog(ts, fmt.Sprintf("dump file append failed: %v", err))
		}
	}
	i.fanoutLog(ts, msg)
}

func (i *Instance) fanoutLog(ts time.Time, msg string) {
	i.omu.RLock()
	fns := make([]LogFunc, len(i.logFns))
	copy(fns, i.logFns)
	i.omu.RUnlock()
	for _, fn := range fns {
		fn(ts, i.name, msg)
	}
}

// onStatus keys the scheduler off the new status and notifies observers.
// The notification itself is payload-free.
func (i *Instance) onStatus() {
	switch i.conn.Status() {
	case types.StatusConnected:
		i.sched.Start()
	case types.StatusDisconnected:
		i.sched.Stop()
	}

	i.omu.RLock()
	fns := make([]func(), len(i.statusFns))
	copy(fns, i.statusFns)
	i.omu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

func (i *Instance) onError(msg string) {
	i.smu.Lock()
	i.lastErr = msg
	i.smu.Unlock()

	i.omu.RLock()
	fns := make([]func(string), len(i.errorFns))
	copy(fns, i.errorFns)
	i.omu.RUnlock()
	for _, fn := range fns {
		fn(msg)
	}
}

// onData logs the inbound chunk and, in receive-triggered mode, fires the
// next automatic transaction.
func (i *Instance) onData(p []byte) {
	i.logLine(fmt.Sprintf("received %d bytes\n%s", len(p), wire.DumpAll(p)))
	i.sched.OnReceive()
}

// appendDumpLine opens the file append-only for this one write, so many
// instances may share a dump path without coordination.
func appendDumpLine(path string, ts time.Time, name, msg string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "%s [%s] %s\n", ts.Format("2006-01-02 15:04:05.000"), name, msg); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
