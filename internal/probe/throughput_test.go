package probe_test

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cmbsolver/tuitcptester/internal/probe"
)

// startSink accepts connections and discards everything read from them.
func startSink(t *testing.T) uint16 {
	t.Helper()
	ln, port := listen(t)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				_, _ = io.Copy(io.Discard, c)
			}(c)
		}
	}()
	return port
}

func TestRunThroughputTest(t *testing.T) {
	port := startSink(t)

	var mu sync.Mutex
	var progress []uint64
	res := probe.RunThroughputTest(context.Background(), "127.0.0.1", port, 300*time.Millisecond,
		func(total uint64) {
			mu.Lock()
			progress = append(progress, total)
			mu.Unlock()
		})

	if !res.Success {
		t.Fatal("run against a healthy sink failed")
	}
	if res.TotalBytes == 0 {
		t.Fatal("no bytes counted")
	}
	if res.Elapsed < 300*time.Millisecond {
		t.Fatalf("elapsed %v shorter than the requested duration", res.Elapsed)
	}
	if res.BytesPerSecond <= 0 {
		t.Fatalf("rate = %f", res.BytesPerSecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(progress) == 0 {
		t.Fatal("progress never fired")
	}
	for n := 1; n < len(progress); n++ {
		if progress[n] < progress[n-1] {
			t.Fatalf("progress went backwards: %d then %d", progress[n-1], progress[n])
		}
	}
	if last := progress[len(progress)-1]; last != res.TotalBytes {
		t.Fatalf("last progress %d != total %d", last, res.TotalBytes)
	}
}

func TestRunThroughputTestConnectRefused(t *testing.T) {
	ln, port := listen(t)
	ln.Close()

	res := probe.RunThroughputTest(context.Background(), "127.0.0.1", port, 200*time.Millisecond, nil)
	if res.Success {
		t.Fatal("refused connect reported success")
	}
	if res.TotalBytes != 0 || res.BytesPerSecond != 0 {
		t.Fatalf("refused connect counted bytes: %+v", res)
	}
}

func TestRunThroughputTestCancel(t *testing.T) {
	port := startSink(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res := probe.RunThroughputTest(ctx, "127.0.0.1", port, 30*time.Second, nil)
	if since := time.Since(start); since > 5*time.Second {
		t.Fatalf("cancel took %v to take effect", since)
	}
	// An operator abort is not a failure.
	if !res.Success {
		t.Fatal("cancelled run reported as failed")
	}
	if res.TotalBytes == 0 {
		t.Fatal("no bytes before cancel")
	}
}
