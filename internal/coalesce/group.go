// Package coalesce deduplicates concurrent work per key: all callers asking
// for the same key attach to one in-flight execution and share its result.
//
// Unlike singleflight, attachment is cancellable on its own: a caller whose
// ctx ends detaches without disturbing the others, and the shared execution
// is cancelled only when its last attachment leaves.
package coalesce

import (
	"context"
	"sync"
)

type task[V any] struct {
	cancel  context.CancelFunc
	done    chan struct{}
	waiters int
	val     V
	err     error
}

// Group coalesces executions by key. The zero value is not usable; call New.
type Group[V any] struct {
	mu    sync.Mutex
	tasks map[string]*task[V]
}

func New[V any]() *Group[V] {
	return &Group[V]{tasks: make(map[string]*task[V])}
}

// Do attaches to the in-flight execution for key, starting one when none
// exists. fn receives a context owned by the execution, not by any single
// caller; it is cancelled when every attachment has detached. shared
// reports whether this caller joined an execution started by another.
func (g *Group[V]) Do(ctx context.Context, key string, fn func(ctx context.Context) (V, error)) (val V, shared bool, err error) {
	g.mu.Lock()
	t, ok := g.tasks[key]
	if ok {
		t.waiters++
	} else {
		tctx, cancel := context.WithCancel(context.Background())
		t = &task[V]{cancel: cancel, done: make(chan struct{}), waiters: 1}
		g.tasks[key] = t
		go g.run(tctx, key, t, fn)
	}
	g.mu.Unlock()

	select {
	case <-t.done:
		return t.val, ok, t.err
	case <-ctx.Done():
		g.detach(key, t)
		var zero V
		return zero, ok, ctx.Err()
	}
}

// InFlight reports the number of distinct keys currently executing.
func (g *Group[V]) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tasks)
}

func (g *Group[V]) run(ctx context.Context, key string, t *task[V], fn func(ctx context.Context) (V, error)) {
	t.val, t.err = fn(ctx)

	g.mu.Lock()
	if g.tasks[key] == t {
		delete(g.tasks, key)
	}
	g.mu.Unlock()

	close(t.done)
	t.cancel()
}

// detach drops one attachment; the last one out cancels the execution.
func (g *Group[V]) detach(key string, t *task[V]) {
	g.mu.Lock()
	t.waiters--
	last := t.waiters == 0
	if last && g.tasks[key] == t {
		delete(g.tasks, key)
	}
	g.mu.Unlock()

	if last {
		t.cancel()
	}
}
