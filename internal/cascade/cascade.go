// Package cascade runs post-commit side effects. Each submitted task gets its
// own goroutine, context, and failure boundary: a failing or panicking task is
// retried a bounded number of times and then logged, never surfaced to the
// caller that committed the primary transaction.
package cascade

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

type Dispatcher struct {
	wg      sync.WaitGroup
	timeout time.Duration
	retries int
}

func NewDispatcher(timeout time.Duration, retries int) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &Dispatcher{timeout: timeout, retries: retries}
}

// Submit schedules run on its own goroutine. The task receives a fresh
// context detached from the request that triggered it, since the request may
// complete before the task does.
func (d *Dispatcher) Submit(name string, run func(ctx context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		var lastErr error
		for attempt := 0; attempt <= d.retries; attempt++ {
			lastErr = d.attempt(run)
			if lastErr == nil {
				return
			}
		}
		log.Printf("[cascade] WARN: task %s failed after %d attempts: %v", name, d.retries+1, lastErr)
	}()
}

func (d *Dispatcher) attempt(run func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	return run(ctx)
}

// Wait blocks until all submitted tasks have finished. Called on shutdown and
// by tests that need deterministic cascade completion.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
