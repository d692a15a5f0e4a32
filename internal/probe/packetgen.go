package probe

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/cmbsolver/tuitcptester/internal/wire"
	"github.com/cmbsolver/tuitcptester/pkg/types"
)

// RunPacketGenerator decodes hexPayload and writes it iterations times to
// host:port with a fixed delay between writes and none after the last.
// Everything it has to say goes through onLog; a malformed payload aborts
// before any connect, and I/O failures stop the run without propagating.
func RunPacketGenerator(ctx context.Context, host string, port uint16, hexPayload string, iterations int, delay time.Duration, onLog func(string)) {
	logf := func(format string, args ...interface{}) {
		if onLog != nil {
			onLog(fmt.Sprintf(format, args...))
		}
	}

	payload, err := wire.Encode(hexPayload, types.EncodingHex)
	if err != nil {
		logf("invalid payload: %v", err)
		return
	}
	if len(payload) == 0 {
		logf("empty payload, nothing to send")
		return
	}
	if iterations <= 0 {
		logf("iterations must be positive, got %d", iterations)
		return
	}

	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
	c, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		logf("connect to %s failed: %v", addr, err)
		return
	}
	defer c.Close()
	logf("connected to %s, sending %d bytes x %d", addr, len(payload), iterations)

	for i := 0; i < iterations; i++ {
		select {
		case <-ctx.Done():
			logf("aborted after %d of %d sends", i, iterations)
			return
		default:
		}

		_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := c.Write(payload); err != nil {
			logf("send %d/%d failed: %v", i+1, iterations, err)
			return
		}
		logf("sent %d/%d (%d bytes)", i+1, iterations, len(payload))

		if i < iterations-1 && delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				logf("aborted after %d of %d sends", i+1, iterations)
				return
			}
		}
	}
	logf("done: %d sends to %s", iterations, addr)
}
