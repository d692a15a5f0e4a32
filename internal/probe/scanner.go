// Package probe holds the one-shot diagnostics: port scanning, throughput
// measurement and packet replay. Probes report through results and log
// callbacks; they never return transport errors and never touch the
// connection engine.
package probe

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	errs "github.com/cmbsolver/tuitcptester/pkg/errors"
	"github.com/cmbsolver/tuitcptester/pkg/types"
)

const (
	// maxConcurrentProbes bounds a range scan so wide sweeps do not
	// exhaust file descriptors.
	maxConcurrentProbes = 100

	connectTimeout = 10 * time.Second
	writeTimeout   = 2 * time.Second
)

// ScanPort reports whether a TCP connect to host:port succeeds within
// timeout. The socket is closed immediately; nothing is sent.
func ScanPort(host string, port uint16, timeout time.Duration) bool {
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
	c, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// ScanRange probes every port in [start, end] with bounded concurrency.
// onProgress fires once per completed probe, serialized, in completion
// order. The returned slice is sorted by port. Cancelling ctx stops new
// probes; in-flight ones run out their timeout.
func ScanRange(ctx context.Context, host string, start, end uint16, timeout time.Duration, onProgress func(types.ScanResult)) ([]types.ScanResult, error) {
	if start == 0 || start > end {
		return nil, errs.ErrInvalidConfig(fmt.Sprintf("invalid port range %d-%d", start, end), nil)
	}

	results := make([]types.ScanResult, 0, int(end)-int(start)+1)
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrentProbes)

	// uint16 would wrap at 65535 and loop forever.
	for p := uint32(start); p <= uint32(end); p++ {
		if ctx.Err() != nil {
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			sortByPort(results)
			return results, ctx.Err()
		}

		wg.Add(1)
		go func(port uint16) {
			defer wg.Done()
			defer func() { <-sem }()

			r := types.ScanResult{
				Port:    port,
				Open:    ScanPort(host, port, timeout),
				Service: PortDescription(port),
			}
			mu.Lock()
			results = append(results, r)
			if onProgress != nil {
				onProgress(r)
			}
			mu.Unlock()
		}(uint16(p))
	}

	wg.Wait()
	sortByPort(results)
	return results, ctx.Err()
}

func sortByPort(results []types.ScanResult) {
	sort.Slice(results, func(i, j int) bool { return results[i].Port < results[j].Port })
}
