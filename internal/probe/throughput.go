package probe

import (
	"context"
	"math/rand"
	"net"
	"strconv"
	"time"

	"github.com/cmbsolver/tuitcptester/pkg/types"
)

// throughputChunkSize is the write unit for throughput runs. The buffer is
// filled once; TCP does not care that the payload repeats.
const throughputChunkSize = 64 * 1024

// RunThroughputTest pushes random bytes at host:port for duration and
// reports the achieved rate. Failures never surface as errors: a refused
// connect yields the zero result, a mid-run write failure keeps the bytes
// counted so far, both with Success=false. Cancelling ctx ends the run
// early without marking it failed.
func RunThroughputTest(ctx context.Context, host string, port uint16, duration time.Duration, onProgress func(totalBytes uint64)) types.ThroughputResult {
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
	c, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		return types.ThroughputResult{}
	}
	defer c.Close()

	buf := make([]byte, throughputChunkSize)
	fillRandom(buf)

	var total uint64
	success := true
	start := time.Now()
	stop := start.Add(duration)

loop:
	for time.Now().Before(stop) {
		select {
		case <-ctx.Done():
			break loop
		default:
		}

		_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
		n, werr := c.Write(buf)
		total += uint64(n)
		if onProgress != nil {
			onProgress(total)
		}
		if werr != nil {
			success = false
			break
		}
	}

	elapsed := time.Since(start)
	result := types.ThroughputResult{
		TotalBytes: total,
		Elapsed:    elapsed,
		Success:    success,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		result.BytesPerSecond = float64(total) / secs
	}
	return result
}

func fillRandom(buf []byte) {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := range buf {
		buf[i] = byte(r.Intn(256))
	}
}
