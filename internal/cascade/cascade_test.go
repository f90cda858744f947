package cascade

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsTask(t *testing.T) {
	d := NewDispatcher(time.Second, 0)

	var ran atomic.Bool
	d.Submit("test", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	d.Wait()

	if !ran.Load() {
		t.Fatalf("expected task to run")
	}
}

func TestSubmitRetriesUntilSuccess(t *testing.T) {
	d := NewDispatcher(time.Second, 2)

	var attempts atomic.Int32
	d.Submit("flaky", func(ctx context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})
	d.Wait()

	if got := attempts.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestSubmitStopsAfterRetryBudget(t *testing.T) {
	d := NewDispatcher(time.Second, 1)

	var attempts atomic.Int32
	d.Submit("doomed", func(ctx context.Context) error {
		attempts.Add(1)
		return errors.New("permanent")
	})
	d.Wait()

	if got := attempts.Load(); got != 2 {
		t.Fatalf("expected 2 attempts (initial + 1 retry), got %d", got)
	}
}

func TestSubmitRecoversPanic(t *testing.T) {
	d := NewDispatcher(time.Second, 0)

	d.Submit("panicky", func(ctx context.Context) error {
		panic("boom")
	})
	// Wait returning at all proves the panic did not escape the goroutine.
	d.Wait()
}

func TestTaskContextHasDeadline(t *testing.T) {
	d := NewDispatcher(50*time.Millisecond, 0)

	var hadDeadline atomic.Bool
	d.Submit("bounded", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		hadDeadline.Store(ok)
		return nil
	})
	d.Wait()

	if !hadDeadline.Load() {
		t.Fatalf("expected task context to carry a deadline")
	}
}
