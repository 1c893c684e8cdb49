package shutdown

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"reelrender/internal/pkg/logger"
)

func TestRegister(t *testing.T) {
	mgr := NewManager(logger.NewDiscard(), 0)
	if mgr.timeout != 30*time.Second {
		t.Errorf("expected default timeout, got %v", mgr.timeout)
	}

	mgr.Register("settings-store", func(context.Context) error { return nil })
	mgr.RegisterSimple("work-dir", func() {})

	if len(mgr.handlers) != 2 || mgr.handlers[0].Name != "settings-store" {
		t.Errorf("unexpected handlers %+v", mgr.handlers)
	}
}

func TestShutdownRunsNewestFirst(t *testing.T) {
	mgr := NewManager(logger.NewDiscard(), 5*time.Second)

	var order []string
	for _, name := range []string{"redis", "postgres", "http-server"} {
		name := name
		mgr.RegisterSimple(name, func() { order = append(order, name) })
	}

	mgr.Shutdown()

	want := []string{"http-server", "postgres", "redis"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	mgr := NewManager(logger.NewDiscard(), time.Second)

	var calls atomic.Int32
	mgr.RegisterSimple("once", func() { calls.Add(1) })

	mgr.Shutdown()
	mgr.Shutdown()

	if calls.Load() != 1 {
		t.Errorf("expected one call, got %d", calls.Load())
	}
}

func TestShutdownContinuesAfterFailure(t *testing.T) {
	mgr := NewManager(logger.NewDiscard(), time.Second)

	var ran atomic.Bool
	mgr.RegisterSimple("after", func() { ran.Store(true) })
	mgr.Register("failing", func(context.Context) error { return errors.New("close failed") })

	mgr.Shutdown()

	if !ran.Load() {
		t.Error("a failing handler must not stop the others")
	}
}

func TestDoneAndContext(t *testing.T) {
	mgr := NewManager(logger.NewDiscard(), time.Second)
	ctx := mgr.Context()

	select {
	case <-mgr.Done():
		t.Fatal("done closed before shutdown")
	case <-ctx.Done():
		t.Fatal("context canceled before shutdown")
	default:
	}

	mgr.Shutdown()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Error("expected context to be canceled after shutdown")
	}
}

func TestShutdownTimeout(t *testing.T) {
	mgr := NewManager(logger.NewDiscard(), 100*time.Millisecond)

	mgr.Register("slow", func(ctx context.Context) error {
		time.Sleep(5 * time.Second)
		return nil
	})

	start := time.Now()
	mgr.Shutdown()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("shutdown took too long: %v", elapsed)
	}
}

func TestWaitReturnsOnContextCancel(t *testing.T) {
	mgr := NewManager(logger.NewDiscard(), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	finished := make(chan struct{})
	go func() {
		mgr.Wait(ctx)
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after context cancel")
	}
}
