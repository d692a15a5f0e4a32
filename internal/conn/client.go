package conn

import (
	"context"
	"net"
	"sync"

	errs "github.com/cmbsolver/tuitcptester/pkg/errors"
	"github.com/cmbsolver/tuitcptester/pkg/types"
)

// Client dials a remote endpoint and streams bytes both ways over the single
// resulting socket.
type Client struct {
	state
	target string

	lmu    sync.Mutex
	conn   net.Conn
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewClient(cfg types.ConnectionConfig, cb Callbacks) *Client {
	return &Client{
		state:  newState(cfg.Name, cb),
		target: cfg.Address(),
	}
}

// Start blocks on the dial. A failure is reported twice on purpose: through
// the error callback for subscribers and through the return value so the
// immediate caller can react without waiting on a notification.
func (c *Client) Start() error {
	c.lmu.Lock()
	if c.cancel != nil {
		c.lmu.Unlock()
		return errs.ErrInvalidConfig("client already started", nil)
	}
	c.lmu.Unlock()

	c.setStatus(types.StatusConnecting)
	c.log("connecting to " + c.target)

	sock, err := net.DialTimeout("tcp", c.target, dialTimeout)
	if err != nil {
		cerr := errs.ErrConnectFailed(c.name, "connect to "+c.target, err)
		c.emitError(cerr.Error())
		c.setStatus(types.StatusError)
		return cerr
	}
	if tcp, ok := sock.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.lmu.Lock()
	if c.cancel != nil {
		c.lmu.Unlock()
		cancel()
		_ = sock.Close()
		return errs.ErrInvalidConfig("client already started", nil)
	}
	c.conn = sock
	c.cancel = cancel
	c.wg.Add(1)
	c.lmu.Unlock()

	// Status flips before the reader starts so a receive-triggered
	// consumer is armed by the time the first chunk can arrive.
	c.log("connected to " + c.target)
	c.setStatus(types.StatusConnected)

	go func() {
		defer c.wg.Done()
		c.readLoop(ctx, sock)
	}()
	return nil
}

func (c *Client) Stop() {
	c.lmu.Lock()
	if c.cancel == nil {
		c.lmu.Unlock()
		return
	}
	c.cancel()
	c.cancel = nil
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.lmu.Unlock()

	c.wg.Wait()
	c.log("stopped")
	c.setStatus(types.StatusDisconnected)
}

func (c *Client) Send(tx types.Transaction) error {
	c.lmu.Lock()
	sock := c.conn
	c.lmu.Unlock()
	return c.send(sock, tx)
}

func (c *Client) LocalAddr() net.Addr {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.LocalAddr()
}
