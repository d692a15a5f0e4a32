// Package conn implements the three connection roles: a dialing client, a
// single-client listening server, and a bidirectional forwarding proxy. Each
// owns exactly one socket lifecycle and reports everything it does through a
// callback set wired up by the owning instance.
package conn

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cmbsolver/tuitcptester/internal/wire"
	errs "github.com/cmbsolver/tuitcptester/pkg/errors"
	"github.com/cmbsolver/tuitcptester/pkg/types"
)

const (
	// pollInterval bounds how long a read or accept can sit blocked before
	// the loop re-checks cancellation.
	pollInterval = 100 * time.Millisecond

	recvBufferSize = 8 * 1024

	dialTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
)

// Callbacks deliver connection events to the owner. Any field may be nil.
// OnStatus carries no payload on purpose; the receiver re-reads Status() so a
// stale notification can never disagree with current state.
type Callbacks struct {
	OnLog    func(msg string)
	OnStatus func()
	OnError  func(msg string)
	OnData   func(data []byte)
}

// Conn is the capability surface shared by the client, server and proxy
// variants. Start reports connect/bind failures both through the error
// callback and its return value so callers can react without waiting.
type Conn interface {
	Start() error
	Stop()
	Send(tx types.Transaction) error
	Status() types.Status

	// LocalAddr is the dialed socket's local address (client) or the bound
	// listener address (server/proxy). Nil before Start.
	LocalAddr() net.Addr
}

// New builds the connection variant for cfg.Role. The config is assumed to
// have passed validation.
func New(cfg types.ConnectionConfig, cb Callbacks) (Conn, error) {
	switch cfg.Role {
	case types.RoleClient:
		return NewClient(cfg, cb), nil
	case types.RoleServer:
		return NewServer(cfg, cb), nil
	case types.RoleProxy:
		return NewProxy(cfg, cb), nil
	}
	return nil, errs.ErrInvalidConfig("unknown role "+string(cfg.Role), nil)
}

// state is the notification plumbing embedded by every variant.
type state struct {
	name string
	cb   Callbacks

	mu     sync.RWMutex
	status types.Status
}

func newState(name string, cb Callbacks) state {
	return state{name: name, cb: cb, status: types.StatusDisconnected}
}

func (s *state) Status() types.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// setStatus stores the new status and then notifies. Duplicate transitions
// still notify; downstream consumers are required to be idempotent.
func (s *state) setStatus(st types.Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
	if s.cb.OnStatus != nil {
		s.cb.OnStatus()
	}
}

func (s *state) log(msg string) {
	if s.cb.OnLog != nil {
		s.cb.OnLog(msg)
	}
}

func (s *state) emitError(msg string) {
	if s.cb.OnError != nil {
		s.cb.OnError(msg)
	}
}

func (s *state) emitData(p []byte) {
	if s.cb.OnData != nil {
		s.cb.OnData(p)
	}
}

// send encodes tx and writes it to c, logging the encoding name, byte count
// and a dump of exactly what went out. A nil c means "not connected": the
// skip is logged and nothing is an error. Encode and write failures are
// surfaced through the error callback and the return value; neither tears
// the connection down.
func (s *state) send(c net.Conn, tx types.Transaction) error {
	if c == nil {
		s.log("not connected, send skipped")
		return nil
	}

	data, err := wire.EncodeTransaction(tx)
	if err != nil {
		s.emitError(err.Error())
		return err
	}

	_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := c.Write(data); err != nil {
		serr := errs.ErrSendFailed(s.name, err)
		s.emitError(serr.Error())
		return serr
	}

	s.log(fmt.Sprintf("sent %s %d bytes\n%s", tx.Encoding, len(data), wire.DumpAll(data)))
	return nil
}
