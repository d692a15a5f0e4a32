package conn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	errs "github.com/cmbsolver/tuitcptester/pkg/errors"
	"github.com/cmbsolver/tuitcptester/pkg/types"
)

// Server listens on one port and talks to one client at a time. Accepting a
// new client silently supersedes the previous one; that eviction contract is
// deliberate and relied upon by users who reconnect probes against a live
// listener. Multi-client fan-out belongs to the proxy, not here.
type Server struct {
	state
	listenAddr string

	lmu      sync.Mutex
	listener *net.TCPListener
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	cmu          sync.Mutex
	client       net.Conn
	clientCancel context.CancelFunc
}

func NewServer(cfg types.ConnectionConfig, cb Callbacks) *Server {
	return &Server{
		state:      newState(cfg.Name, cb),
		listenAddr: cfg.Address(),
	}
}

// Start binds the listen port and begins polling for clients. Bind failures
// are reported through the error callback and the return value.
func (s *Server) Start() error {
	s.lmu.Lock()
	if s.cancel != nil {
		s.lmu.Unlock()
		return errs.ErrInvalidConfig("server already started", nil)
	}
	s.lmu.Unlock()

	addr, err := net.ResolveTCPAddr("tcp", s.listenAddr)
	if err != nil {
		berr := errs.ErrBindFailed(s.name, "resolve "+s.listenAddr, err)
		s.emitError(berr.Error())
		s.setStatus(types.StatusError)
		return berr
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		berr := errs.ErrBindFailed(s.name, "listen on "+s.listenAddr, err)
		s.emitError(berr.Error())
		s.setStatus(types.StatusError)
		return berr
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.lmu.Lock()
	if s.cancel != nil {
		s.lmu.Unlock()
		cancel()
		_ = ln.Close()
		return errs.ErrInvalidConfig("server already started", nil)
	}
	s.listener = ln
	s.cancel = cancel
	s.wg.Add(1)
	s.lmu.Unlock()

	s.log("listening on " + ln.Addr().String())
	s.setStatus(types.StatusListening)

	go s.acceptLoop(ctx, ln)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, ln *net.TCPListener) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = ln.SetDeadline(time.Now().Add(pollInterval))
		sock, err := ln.AcceptTCP()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			s.emitError(errs.ErrReadFailed(s.name, fmt.Errorf("accept: %w", err)).Error())
			continue
		}

		_ = sock.SetNoDelay(true)
		s.adopt(ctx, sock)
	}
}

// adopt swaps the accepted socket in as the current client. The previous
// client's reader is cancelled before its socket closes so the handover
// never surfaces as an error.
func (s *Server) adopt(parent context.Context, sock *net.TCPConn) {
	clientCtx, clientCancel := context.WithCancel(parent)

	s.cmu.Lock()
	replaced := s.client != nil
	if s.clientCancel != nil {
		s.clientCancel()
	}
	if s.client != nil {
		_ = s.client.Close()
	}
	s.client = sock
	s.clientCancel = clientCancel
	s.cmu.Unlock()

	if replaced {
		s.log("previous client replaced")
	}
	s.log("client connected from " + sock.RemoteAddr().String())
	s.setStatus(types.StatusConnected)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readLoop(clientCtx, sock)
	}()
}

func (s *Server) Stop() {
	s.lmu.Lock()
	if s.cancel == nil {
		s.lmu.Unlock()
		return
	}
	s.cancel()
	s.cancel = nil
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
	s.lmu.Unlock()

	s.cmu.Lock()
	if s.client != nil {
		_ = s.client.Close()
		s.client = nil
	}
	s.clientCancel = nil
	s.cmu.Unlock()

	s.wg.Wait()
	s.log("stopped")
	s.setStatus(types.StatusDisconnected)
}

// Send writes to the currently accepted client, if there is one.
func (s *Server) Send(tx types.Transaction) error {
	s.cmu.Lock()
	sock := s.client
	s.cmu.Unlock()
	return s.send(sock, tx)
}

func (s *Server) LocalAddr() net.Addr {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
