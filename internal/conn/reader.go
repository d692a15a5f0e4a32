package conn

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	errs "github.com/cmbsolver/tuitcptester/pkg/errors"
	"github.com/cmbsolver/tuitcptester/pkg/types"
)

// readLoop drains c until ctx is cancelled or the peer goes away. Reads carry
// a short deadline so the loop observes cancellation within one poll
// interval. A clean EOF is a normal lifecycle event: status flips to
// Disconnected and nothing is reported as an error. Any other read failure
// flips status to Error and ends the loop.
func (s *state) readLoop(ctx context.Context, c net.Conn) {
	buf := make([]byte, recvBufferSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = c.SetReadDeadline(time.Now().Add(pollInterval))
		n, err := c.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			s.emitData(data)
		}
		if err == nil {
			continue
		}

		var netErr net.Error
		switch {
		case errors.As(err, &netErr) && netErr.Timeout():
			continue
		case ctx.Err() != nil:
			// Stop or eviction closed the socket under us.
			return
		case errors.Is(err, io.EOF):
			s.log("remote closed the connection")
			s.setStatus(types.StatusDisconnected)
			return
		default:
			s.emitError(errs.ErrReadFailed(s.name, err).Error())
			s.setStatus(types.StatusError)
			return
		}
	}
}
