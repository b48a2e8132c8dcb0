// Package worker runs blocking background tasks with bounded concurrency.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrPoolClosed is reported to tasks submitted after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// PanicError is a recovered task panic.
type PanicError struct {
	Task  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task %s panicked: %v", e.Task, e.Value)
}

// Task is one unit of background work.
type Task func(ctx context.Context) error

// Pool runs at most size tasks at once. Extra tasks wait for a slot.
type Pool struct {
	sem     *semaphore.Weighted
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running map[string]context.CancelFunc
	counter int
	closed  bool
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:     semaphore.NewWeighted(int64(size)),
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[string]context.CancelFunc),
	}
}

// Submit starts fn in the background and returns its task id. done, if not
// nil, receives fn's result (or the recovered panic) exactly once. The task
// context ends when ctx does, when Cancel is called or the pool is closed.
func (p *Pool) Submit(ctx context.Context, name string, fn Task, done func(error)) string {
	if done == nil {
		done = func(error) {}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		done(ErrPoolClosed)
		return ""
	}
	id := fmt.Sprintf("%s_%d", name, p.counter)
	p.counter++
	taskCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(p.ctx, cancel)
	p.running[id] = cancel
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer func() {
			stop()
			cancel()
			p.mu.Lock()
			delete(p.running, id)
			p.mu.Unlock()
		}()

		if err := p.sem.Acquire(taskCtx, 1); err != nil {
			done(err)
			return
		}
		defer p.sem.Release(1)

		done(p.run(taskCtx, id, fn))
	}()
	return id
}

func (p *Pool) run(ctx context.Context, id string, fn Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Task: id, Value: r, Stack: debug.Stack()}
			slog.Error("worker: task panicked", "task", id, "panic", r)
		}
	}()
	slog.Debug("worker: task started", "task", id)
	return fn(ctx)
}

// Cancel cancels a running task by id. Returns true if found.
func (p *Pool) Cancel(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	cancel, ok := p.running[id]
	if !ok {
		return false
	}
	cancel()
	return true
}

// Running returns the ids of tasks that have not finished, in order.
func (p *Pool) Running() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.running))
	for id := range p.running {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Wait blocks until every submitted task has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close rejects new tasks, cancels running ones and waits for them.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()
	p.wg.Wait()
}
