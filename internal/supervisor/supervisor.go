// Package supervisor is the process lifecycle owner (C8): it owns the bus,
// starts the gateway, order manager, portfolio manager, strategy, and risk
// manager as independent workers, exposes EmergencyShutdown for use as the
// breaker's emergency callback, and drains every worker on exit.
package supervisor

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"trading-core/internal/bus"
)

// drainTimeout bounds how long Run waits for workers to return after ctx
// is canceled, per §5's "drains in <=2s".
const drainTimeout = 2 * time.Second

// Worker is one component's event loop: Run blocks until ctx is canceled
// or the worker fails.
type Worker interface {
	Run(ctx context.Context) error
}

// Supervisor starts a fixed set of named workers and tears them down
// together, either on external cancellation or on the breaker forcing an
// emergency shutdown.
type Supervisor struct {
	b       bus.Bus
	workers map[string]Worker

	shutdown atomic.Bool
}

// New builds a Supervisor over bus b. Workers are registered with Register
// before Run.
func New(b bus.Bus) *Supervisor {
	return &Supervisor{b: b, workers: make(map[string]Worker)}
}

// Register adds a named worker to be started by Run. Call before Run.
func (s *Supervisor) Register(name string, w Worker) {
	s.workers[name] = w
}

// EmergencyShutdown is installed as the breaker's EmergencyCallback: it
// flips the shutdown flag that Run's watchShutdown polls, which then
// cancels every worker's context. Only the first call logs, per §4.2's
// one-shot semantics and §8's C2 observing-component contract.
func (s *Supervisor) EmergencyShutdown(reason string) {
	if s.shutdown.CompareAndSwap(false, true) {
		log.Printf("supervisor: emergency shutdown triggered: %s", reason)
	}
}

// ShuttingDown reports whether an emergency shutdown has been triggered.
func (s *Supervisor) ShuttingDown() bool {
	return s.shutdown.Load()
}

// Run starts every registered worker on its own goroutine and blocks
// until ctx is canceled or the emergency shutdown flag is observed via
// watchShutdown, then drains workers within drainTimeout before closing
// the bus.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for name, w := range s.workers {
		wg.Add(1)
		go func(name string, w Worker) {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				log.Printf("supervisor: worker %q exited: %v", name, err)
			}
		}(name, w)
	}

	go s.watchShutdown(ctx, cancel)

	<-ctx.Done()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		log.Printf("supervisor: workers did not drain within %s", drainTimeout)
	}

	return s.b.Close()
}

// watchShutdown polls the emergency flag and cancels ctx the moment it is
// set, so every worker's select loop observes ctx.Done() and exits
// cleanly, per §4.8's shutdown routing.
func (s *Supervisor) watchShutdown(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.shutdown.Load() {
				cancel()
				return
			}
		}
	}
}
