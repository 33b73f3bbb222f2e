// Package workerpool runs a fixed number of workers over a shared FIFO queue.
//
// A pool is one phase of work: Run starts the workers, Submit feeds them, Wait
// returns once every submitted item has been fully processed and Close releases the
// workers. An error or panic raised while processing one item is logged and counted;
// the worker carries on with the next item.
package workerpool

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"

	"github.com/x1thexxx-lgtm/devconf/pkg/logging"
)

// DefaultSize is the worker count used when a non-positive size is given.
const DefaultSize = 3

// ErrClosed is returned by Submit once the pool has been closed.
var ErrClosed = errors.New("workerpool: closed")

// Action processes one item.
type Action[T any] func(ctx context.Context, item T) error

// Stats counts how submitted items ended.
type Stats struct {
	Processed int // action returned nil
	Failed    int // action returned an error
	Panicked  int // action panicked
	Skipped   int // context was cancelled before the item was started
}

// Pool is a bounded set of workers draining one queue.
type Pool[T any] struct {
	size   int
	logger *logging.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []T
	inflight int
	started  bool
	closed   bool
	stats    Stats
	workers  sync.WaitGroup
}

// New creates a pool with size workers. Workers start on Run.
func New[T any](size int, logger *logging.Logger) *Pool[T] {
	if size <= 0 {
		size = DefaultSize
	}
	p := &Pool[T]{size: size, logger: logger}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Size returns the number of workers.
func (p *Pool[T]) Size() int {
	return p.size
}

// Run starts the workers. Calling it more than once has no effect.
func (p *Pool[T]) Run(ctx context.Context, action Action[T]) {
	p.mu.Lock()
	if p.started || p.closed {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.workers.Add(p.size)
	for i := 0; i < p.size; i++ {
		go p.work(ctx, i, action)
	}
}

// Submit appends items to the queue. It never blocks on the workers.
func (p *Pool[T]) Submit(items ...T) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.queue = append(p.queue, items...)
	p.cond.Broadcast()
	return nil
}

// Wait blocks until the queue is empty and no action is running. Items submitted
// before Run is called are only drained once Run starts the workers.
func (p *Pool[T]) Wait() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) > 0 || p.inflight > 0 {
		p.cond.Wait()
	}
}

// Close lets the workers finish whatever is queued, then stops them.
func (p *Pool[T]) Close() {
	p.mu.Lock()
	p.closed = true
	started := p.started
	p.cond.Broadcast()
	p.mu.Unlock()
	if started {
		p.workers.Wait()
	}
}

// Stats returns a snapshot of the outcome counters.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Pool[T]) work(ctx context.Context, id int, action Action[T]) {
	defer p.workers.Done()
	for {
		item, ok := p.next()
		if !ok {
			return
		}
		outcome := p.invoke(ctx, id, item, action)
		p.complete(outcome)
	}
}

func (p *Pool[T]) next() (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	var zero T
	if len(p.queue) == 0 {
		return zero, false
	}
	item := p.queue[0]
	p.queue[0] = zero
	p.queue = p.queue[1:]
	p.inflight++
	return item, true
}

type outcome int

const (
	processed outcome = iota
	failed
	panicked
	skipped
)

func (p *Pool[T]) invoke(ctx context.Context, id int, item T, action Action[T]) (res outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("worker %d: panic while processing %v: %v\n%s", id, item, r, debug.Stack())
			res = panicked
		}
	}()
	if ctx.Err() != nil {
		p.logger.Debugf("worker %d: skipping %v: %v", id, item, ctx.Err())
		return skipped
	}
	if err := action(ctx, item); err != nil {
		p.logger.Errorf("worker %d: %v: %v", id, item, err)
		return failed
	}
	return processed
}

func (p *Pool[T]) complete(o outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inflight--
	switch o {
	case processed:
		p.stats.Processed++
	case failed:
		p.stats.Failed++
	case panicked:
		p.stats.Panicked++
	case skipped:
		p.stats.Skipped++
	}
	p.cond.Broadcast()
}

// Process runs action over items on a fresh pool of size workers and returns once
// every item has completed.
func Process[T any](ctx context.Context, size int, logger *logging.Logger, items []T, action Action[T]) Stats {
	p := New[T](size, logger)
	p.Run(ctx, action)
	_ = p.Submit(items...)
	p.Wait()
	p.Close()
	return p.Stats()
}
