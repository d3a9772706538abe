package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ESETdropout/kframe/internal/tree"
)

// Action is a queued dispatch request.
type Action struct {
	Name    string
	Payload tree.Value
}

// Loop feeds a Store from any number of goroutines. Actions are queued in
// FIFO order and dispatched one at a time on the goroutine running Run, so
// every dispatch stays a single atomic step.
//
// Thread-safety model:
//   - Enqueue, Stop, Len: safe from any goroutine
//   - Run: must be called from exactly one goroutine, which then owns the Store
type Loop struct {
	store *Store
	queue *actionQueue
}

// NewLoop creates a Loop for s.
func NewLoop(s *Store) *Loop {
	return &Loop{
		store: s,
		queue: newActionQueue(),
	}
}

// Enqueue submits an action. It returns ErrLoopClosed after Stop or after
// Run returned.
func (l *Loop) Enqueue(name string, payload tree.Value) error {
	if !l.queue.Enqueue(Action{Name: name, Payload: payload}) {
		return ErrLoopClosed
	}
	return nil
}

// Len returns the number of queued actions.
func (l *Loop) Len() int {
	return l.queue.Len()
}

// Stop closes the queue. Run drains what is already queued, then returns.
func (l *Loop) Stop() {
	l.queue.Close()
}

// Run dispatches queued actions until ctx is cancelled or the loop is
// stopped and drained.
//
// A failed dispatch is logged with the action and payload and processing
// continues with the next action. Nothing is retried.
func (l *Loop) Run(ctx context.Context) error {
	slog.Info("dispatch loop starting")

	for {
		if a, ok := l.queue.TryDequeue(); ok {
			if _, err := l.store.Dispatch(a.Name, a.Payload); err != nil {
				logDispatchError(a, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("dispatch loop stopping: context cancelled")
			l.queue.Close()
			return ctx.Err()

		case <-l.queue.Wait():
			// The signal channel is closed on Close, so an empty queue here
			// means the loop was stopped.
			if l.queue.Len() == 0 && l.queue.Closed() {
				slog.Info("dispatch loop stopping: queue closed")
				return nil
			}
		}
	}
}

func logDispatchError(a Action, err error) {
	payload := ""
	if a.Payload != nil {
		if b, mErr := tree.MarshalValue(a.Payload); mErr == nil {
			payload = string(b)
		}
	}
	slog.Error("dispatch failed",
		"action", a.Name,
		"payload", payload,
		"error", err,
	)
}

// actionQueue is an unbounded FIFO with a coalescing wake-up signal, so Run
// can wait on it inside a select with ctx.Done.
type actionQueue struct {
	mu      sync.Mutex
	actions []Action
	closed  bool
	signal  chan struct{}
}

func newActionQueue() *actionQueue {
	return &actionQueue{
		actions: make([]Action, 0, 64),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue appends a and reports false when the queue is closed.
func (q *actionQueue) Enqueue(a Action) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.actions = append(q.actions, a)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front action without blocking.
func (q *actionQueue) TryDequeue() (Action, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.actions) == 0 {
		return Action{}, false
	}
	a := q.actions[0]
	q.actions[0] = Action{} // release the payload
	if len(q.actions) == 1 {
		q.actions = q.actions[:0]
	} else {
		q.actions = q.actions[1:]
	}
	return a, true
}

// Wait returns the wake-up channel. It is closed by Close.
func (q *actionQueue) Wait() <-chan struct{} {
	return q.signal
}

func (q *actionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}

func (q *actionQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops further enqueues and wakes any waiter.
func (q *actionQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
