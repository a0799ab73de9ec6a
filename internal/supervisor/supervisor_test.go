package supervisor

import (
	"context"
	"testing"
	"time"

	"trading-core/internal/bus"
)

type fakeWorker struct {
	started chan struct{}
	done    chan struct{}
}

func newFakeWorker() *fakeWorker {
	return &fakeWorker{started: make(chan struct{}), done: make(chan struct{})}
}

func (w *fakeWorker) Run(ctx context.Context) error {
	close(w.started)
	<-ctx.Done()
	close(w.done)
	return nil
}

func TestRunStartsWorkersAndDrainsOnContextCancel(t *testing.T) {
	b := bus.NewLocalBus()
	sup := New(b)

	w := newFakeWorker()
	sup.Register("fake", w)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	select {
	case <-w.started:
	case <-time.After(time.Second):
		t.Fatalf("worker never started")
	}

	cancel()

	select {
	case <-w.done:
	case <-time.After(time.Second):
		t.Fatalf("worker never observed ctx cancellation")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not return")
	}
}

func TestEmergencyShutdownTriggersDrain(t *testing.T) {
	b := bus.NewLocalBus()
	sup := New(b)

	w := newFakeWorker()
	sup.Register("fake", w)

	done := make(chan error, 1)
	go func() { done <- sup.Run(context.Background()) }()

	select {
	case <-w.started:
	case <-time.After(time.Second):
		t.Fatalf("worker never started")
	}

	if sup.ShuttingDown() {
		t.Fatalf("expected ShuttingDown() false before EmergencyShutdown")
	}
	sup.EmergencyShutdown("test breach")
	if !sup.ShuttingDown() {
		t.Fatalf("expected ShuttingDown() true after EmergencyShutdown")
	}

	select {
	case <-w.done:
	case <-time.After(time.Second):
		t.Fatalf("worker never observed the emergency shutdown")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after emergency shutdown")
	}
}

func TestEmergencyShutdownIsOneShot(t *testing.T) {
	sup := New(bus.NewLocalBus())
	sup.EmergencyShutdown("first")
	sup.EmergencyShutdown("second")
	if !sup.ShuttingDown() {
		t.Fatalf("expected ShuttingDown() true after EmergencyShutdown")
	}
}
