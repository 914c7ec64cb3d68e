package session

import (
	"context"
	"sync"
)

type flightResult struct {
	token string
	err   error
}

// flight runs at most one operation at a time and hands its outcome to every
// caller that joined while it was running, in the order they joined.
type flight struct {
	mu      sync.Mutex
	running bool
	waiters []chan flightResult
	idle    sync.WaitGroup
}

// join enqueues the caller and, when no operation is running, starts fn on a
// context detached from the caller's cancellation. The caller stops waiting
// when ctx is done; the operation itself always runs to completion.
func (f *flight) join(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	ch, _ := f.enqueue(ctx, fn)
	return wait(ctx, ch)
}

// enqueue is join without the wait. started reports whether this call
// launched the operation.
func (f *flight) enqueue(ctx context.Context, fn func(context.Context) (string, error)) (ch chan flightResult, started bool) {
	ch = make(chan flightResult, 1)

	f.mu.Lock()
	f.waiters = append(f.waiters, ch)
	if !f.running {
		f.running = true
		started = true
	}
	f.mu.Unlock()

	if started {
		f.idle.Add(1)
		go f.run(context.WithoutCancel(ctx), fn)
	}
	return ch, started
}

// joinIfRunning enqueues the caller only when an operation is in flight.
func (f *flight) joinIfRunning() (chan flightResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return nil, false
	}
	ch := make(chan flightResult, 1)
	f.waiters = append(f.waiters, ch)
	return ch, true
}

func (f *flight) run(ctx context.Context, fn func(context.Context) (string, error)) {
	defer f.idle.Done()
	token, err := fn(ctx)

	f.mu.Lock()
	waiters := f.waiters
	f.waiters = nil
	f.running = false
	f.mu.Unlock()

	// Channels are buffered, so abandoned waiters never block the fan-out.
	res := flightResult{token: token, err: err}
	for _, ch := range waiters {
		ch <- res
	}
}

// waitIdle blocks until no operation is running.
func (f *flight) waitIdle() {
	f.idle.Wait()
}

func (f *flight) inFlight() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func wait(ctx context.Context, ch chan flightResult) (string, error) {
	select {
	case res := <-ch:
		return res.token, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
