package conn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cmbsolver/tuitcptester/internal/wire"
	errs "github.com/cmbsolver/tuitcptester/pkg/errors"
	"github.com/cmbsolver/tuitcptester/pkg/types"
)

// Proxy accepts clients on the local port and splices each one to its own
// outbound connection, logging every forwarded chunk in both renderings.
// Unlike Server it handles any number of simultaneous tunnels; unlike both
// other roles it never originates traffic, so Send is a logged no-op.
type Proxy struct {
	state
	listenAddr string
	remoteAddr string

	lmu      sync.Mutex
	listener *net.TCPListener
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	sessions atomic.Int64
}

func NewProxy(cfg types.ConnectionConfig, cb Callbacks) *Proxy {
	return &Proxy{
		state:      newState(cfg.Name, cb),
		listenAddr: cfg.Address(),
		remoteAddr: cfg.RemoteAddress(),
	}
}

func (p *Proxy) Start() error {
	p.lmu.Lock()
	if p.cancel != nil {
		p.lmu.Unlock()
		return errs.ErrInvalidConfig("proxy already started", nil)
	}
	p.lmu.Unlock()

	addr, err := net.ResolveTCPAddr("tcp", p.listenAddr)
	if err != nil {
		berr := errs.ErrBindFailed(p.name, "resolve "+p.listenAddr, err)
		p.emitError(berr.Error())
		p.setStatus(types.StatusError)
		return berr
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		berr := errs.ErrBindFailed(p.name, "listen on "+p.listenAddr, err)
		p.emitError(berr.Error())
		p.setStatus(types.StatusError)
		return berr
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.lmu.Lock()
	if p.cancel != nil {
		p.lmu.Unlock()
		cancel()
		_ = ln.Close()
		return errs.ErrInvalidConfig("proxy already started", nil)
	}
	p.listener = ln
	p.cancel = cancel
	p.wg.Add(1)
	p.lmu.Unlock()

	p.log(fmt.Sprintf("forwarding %s to %s", ln.Addr(), p.remoteAddr))
	p.setStatus(types.StatusListening)

	go p.acceptLoop(ctx, ln)
	return nil
}

func (p *Proxy) acceptLoop(ctx context.Context, ln *net.TCPListener) {
	defer p.wg.Done()

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
			p.emitError(errs.ErrReadFailed(p.name, fmt.Errorf("accept: %w", err)).Error())
			continue
		}

		_ = sock.SetNoDelay(true)
		p.wg.Add(1)
		go p.handleSession(ctx, sock)
	}
}

// handleSession owns one tunnel. The two directions run concurrently and the
// first to finish wins: its exit tears down both sockets, which unblocks the
// other direction. The listener is unaffected by any single session ending.
func (p *Proxy) handleSession(ctx context.Context, client *net.TCPConn) {
	defer p.wg.Done()
	id := p.sessions.Add(1)

	remote, err := net.DialTimeout("tcp", p.remoteAddr, dialTimeout)
	if err != nil {
		cerr := errs.ErrConnectFailed(p.name, fmt.Sprintf("session %d: connect to %s", id, p.remoteAddr), err)
		p.emitError(cerr.Error())
		_ = client.Close()
		return
	}

	p.log(fmt.Sprintf("session %d: %s tunneled to %s", id, client.RemoteAddr(), p.remoteAddr))

	sessCtx, sessCancel := context.WithCancel(ctx)
	defer sessCancel()

	done := make(chan struct{}, 2)
	go p.forward(sessCtx, id, "client -> remote", client, remote, done)
	go p.forward(sessCtx, id, "remote -> client", remote, client, done)

	<-done
	sessCancel()
	_ = client.Close()
	_ = remote.Close()
	<-done

	p.log(fmt.Sprintf("session %d closed", id))
}

func (p *Proxy) forward(ctx context.Context, id int64, dir string, src, dst net.Conn, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	buf := make([]byte, recvBufferSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = src.SetReadDeadline(time.Now().Add(pollInterval))
		n, err := src.Read(buf)
		if n > 0 {
			_ = dst.SetWriteDeadline(time.Now().Add(writeTimeout))
			if _, werr := dst.Write(buf[:n]); werr != nil {
				if ctx.Err() == nil {
					p.emitError(errs.ErrSendFailed(p.name, fmt.Errorf("session %d %s: %w", id, dir, werr)).Error())
				}
				return
			}
			chunk := buf[:n]
			p.log(fmt.Sprintf("session %d %s %d bytes: %s [%s]",
				id, dir, n, wire.EscapeControl(string(chunk)), wire.HexString(chunk)))
		}
		if err == nil {
			continue
		}

		var netErr net.Error
		switch {
		case errors.As(err, &netErr) && netErr.Timeout():
			continue
		case ctx.Err() != nil:
			return
		case errors.Is(err, io.EOF):
			p.log(fmt.Sprintf("session %d %s: source closed", id, dir))
			return
		default:
			p.emitError(errs.ErrReadFailed(p.name, fmt.Errorf("session %d %s: %w", id, dir, err)).Error())
			return
		}
	}
}

func (p *Proxy) Stop() {
	p.lmu.Lock()
	if p.cancel == nil {
		p.lmu.Unlock()
		return
	}
	p.cancel()
	p.cancel = nil
	if p.listener != nil {
		_ = p.listener.Close()
		p.listener = nil
	}
	p.lmu.Unlock()

	p.wg.Wait()
	p.log("stopped")
	p.setStatus(types.StatusDisconnected)
}

// Send is unsupported for proxies; a proxy never originates data.
func (p *Proxy) Send(tx types.Transaction) error {
	p.log("proxy connections do not support manual sends")
	return nil
}

func (p *Proxy) LocalAddr() net.Addr {
	p.lmu.Lock()
	defer p.lmu.Unlock()
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}
