// Package bridge hosts the single worker that owns all wireless operations.
//
// The BLE stack is driven through blocking calls that must not run
// concurrently with each other. Every wireless operation (scan, connect,
// subscribe, write, disconnect) is submitted to one dedicated goroutine and
// the synchronous caller blocks on a Future with an explicit timeout. The
// worker itself never waits on a caller: a future whose deadline passes is
// simply abandoned, and the in-flight operation's late result is discarded.
package bridge

import (
	"errors"
	"sync"
	"time"

	"github.com/ahk4918/microlink/pkg/log"
)

// ErrTimeout is returned by Future.Wait when the deadline passes before the
// operation completes.
var ErrTimeout = errors.New("bridge: operation timed out")

// ErrClosed is returned by Submit after the bridge has been shut down.
var ErrClosed = errors.New("bridge: closed")

// Future is the caller-side handle for a submitted operation.
type Future struct {
	done   chan struct{}
	result any
	err    error
}

// Wait blocks until the operation completes or the timeout elapses.
// A timed-out operation keeps running on the worker; its eventual result is
// dropped because nobody is listening anymore.
func (f *Future) Wait(timeout time.Duration) (any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-time.After(timeout):
		return nil, ErrTimeout
	}
}

type task struct {
	name string
	fn   func() (any, error)
	fut  *Future
}

// Bridge serializes wireless work onto one long-lived goroutine.
type Bridge struct {
	tasks chan task
	quit  chan struct{}

	mu         sync.Mutex
	closed     bool
	submitters sync.WaitGroup
	wg         sync.WaitGroup
}

// New starts the worker and returns the bridge. There is exactly one bridge
// per process, created at startup and closed at shutdown.
func New() *Bridge {
	b := &Bridge{
		tasks: make(chan task, 8),
		quit:  make(chan struct{}),
	}

	b.wg.Add(1)
	go b.run()

	return b
}

func (b *Bridge) run() {
	defer b.wg.Done()

	for {
		select {
		case t, ok := <-b.tasks:
			if !ok {
				return
			}
			b.exec(t)
		case <-b.quit:
			// Close seals the queue once the last in-flight Submit has
			// resolved; finish whatever made it in, then exit.
			for t := range b.tasks {
				b.exec(t)
			}
			return
		}
	}
}

func (b *Bridge) exec(t task) {
	started := time.Now()
	t.fut.result, t.fut.err = t.fn()
	close(t.fut.done)

	log.Debug("wireless op finished", "op", t.name, "elapsed", time.Since(started), "err", t.fut.err)
}

// Submit queues fn for execution on the worker and returns its future.
// Submitting after Close, or while a full queue outlives Close, returns a
// future already resolved with ErrClosed. The lock only guards the closed
// flag; the queue send happens outside it so a blocked Submit can never
// stall Close.
func (b *Bridge) Submit(name string, fn func() (any, error)) *Future {
	fut := &Future{done: make(chan struct{})}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		fut.err = ErrClosed
		close(fut.done)
		return fut
	}
	b.submitters.Add(1)
	b.mu.Unlock()
	defer b.submitters.Done()

	select {
	case b.tasks <- task{name: name, fn: fn, fut: fut}:
	case <-b.quit:
		fut.err = ErrClosed
		close(fut.done)
	}
	return fut
}

// Run is a convenience wrapper: submit fn and wait up to timeout.
func (b *Bridge) Run(name string, timeout time.Duration, fn func() (any, error)) (any, error) {
	return b.Submit(name, fn).Wait(timeout)
}

// Close stops accepting work, lets queued operations finish, and waits for
// the worker to exit.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.quit)
	b.mu.Unlock()

	// No new Submit can pass the closed check; once the in-flight ones have
	// either enqueued or resolved with ErrClosed, the queue can be sealed.
	b.submitters.Wait()
	close(b.tasks)

	b.wg.Wait()
}
