package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/cmbsolver/tuitcptester/pkg/types"
)

// sendFunc delivers one transaction to the wire. Failures surface through
// the connection's own callbacks, never through the scheduler.
type sendFunc func(types.Transaction) error

// scheduler replays an ordered transaction list. With a positive interval it
// runs a timed loop (optionally jittered); with no interval each inbound
// chunk triggers exactly one send. The cursor walks the list cyclically and
// resets to zero on every (re)start.
type scheduler struct {
	txs       []types.Transaction
	interval  time.Duration
	jitterMin time.Duration
	jitterMax time.Duration
	send      sendFunc

	mu      sync.Mutex
	running bool
	cursor  int
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	rng     *rand.Rand
}

func newScheduler(cfg types.ConnectionConfig, send sendFunc) *scheduler {
	s := &scheduler{
		txs:  cfg.AutoTransactions,
		send: send,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if cfg.IntervalMs != nil {
		s.interval = time.Duration(*cfg.IntervalMs) * time.Millisecond
	}
	// Jitter without a timed interval has nothing to shorten.
	if s.interval > 0 && cfg.JitterMinMs != nil && cfg.JitterMaxMs != nil {
		s.jitterMin = time.Duration(*cfg.JitterMinMs) * time.Millisecond
		s.jitterMax = time.Duration(*cfg.JitterMaxMs) * time.Millisecond
	}
	return s
}

// Start begins automatic sends. Calling it while already running is a no-op,
// so repeated Connected notifications are harmless.
func (s *scheduler) Start() {
	s.mu.Lock()
	if s.running || len(s.txs) == 0 {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.cursor = 0
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	timed := s.interval > 0
	if timed {
		s.wg.Add(1)
	}
	s.mu.Unlock()

	if timed {
		go s.run(ctx)
	}
}

// Stop halts the loop and waits for it to exit. Safe to call when idle.
func (s *scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// OnReceive fires one send in receive-triggered mode. Timed schedulers
// ignore inbound traffic.
func (s *scheduler) OnReceive() {
	if s.interval > 0 {
		return
	}
	s.fire()
}

// Cursor reports the index of the next transaction to send.
func (s *scheduler) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// First send happens immediately, the wait comes after.
		s.fire()

		wait := s.nextWait()
		if wait <= 0 {
			continue
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

// fire sends the cursor transaction and advances the cursor. It is a no-op
// once the scheduler has been stopped.
func (s *scheduler) fire() {
	s.mu.Lock()
	if !s.running || len(s.txs) == 0 {
		s.mu.Unlock()
		return
	}
	tx := s.txs[s.cursor]
	s.cursor = (s.cursor + 1) % len(s.txs)
	s.mu.Unlock()

	_ = s.send(tx)
}

func (s *scheduler) nextWait() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return jitteredWait(s.interval, s.jitterMin, s.jitterMax, s.rng)
}

// jitteredWait shortens interval by a random amount in [min, max] inclusive.
// A non-positive result means send without waiting.
func jitteredWait(interval, min, max time.Duration, rng *rand.Rand) time.Duration {
	if max <= 0 {
		return interval
	}
	jitter := min
	if span := max - min; span > 0 {
		jitter += time.Duration(rng.Int63n(int64(span) + 1))
	}
	return interval - jitter
}
