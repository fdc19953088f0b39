package timedqueue

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// entry is a pending key and the time it becomes deliverable.
type entry[K comparable] struct {
	key      K
	expireAt time.Time
}

// TimedQueue coalesces repeated signals for the same key into a single
// delayed delivery.
//
// Thread Safety:
//   - ReQueue may be called concurrently from any number of goroutines.
//   - Pop and WaitUntilExpired are intended for a single consumer goroutine.
type TimedQueue[K comparable] struct {
	delay time.Duration

	mu    sync.Mutex
	order *list.List // *entry[K], ascending expireAt
	index map[K]*list.Element

	// signal wakes the consumer when the head of the queue changes
	// (buffered, size 1).
	signal chan struct{}
}

// New creates an empty queue that delivers keys delay after their most
// recent ReQueue. A negative delay is treated as zero.
func New[K comparable](delay time.Duration) *TimedQueue[K] {
	if delay < 0 {
		delay = 0
	}
	return &TimedQueue[K]{
		delay:  delay,
		order:  list.New(),
		index:  make(map[K]*list.Element),
		signal: make(chan struct{}, 1),
	}
}

// Delay returns the fixed debounce delay.
func (q *TimedQueue[K]) Delay() time.Duration {
	return q.delay
}

// ReQueue inserts key with expiry now+delay, or moves an already pending key
// to a fresh now+delay. Delays never accumulate.
func (q *TimedQueue[K]) ReQueue(key K) {
	q.mu.Lock()
	head := q.order.Front()
	expireAt := time.Now().Add(q.delay)

	if el, ok := q.index[key]; ok {
		el.Value.(*entry[K]).expireAt = expireAt
		q.order.MoveToBack(el)
	} else {
		q.index[key] = q.order.PushBack(&entry[K]{key: key, expireAt: expireAt})
	}

	headChanged := q.order.Front() != head
	q.mu.Unlock()

	if headChanged {
		q.notify()
	}
}

// Pop blocks until the earliest entry has expired, removes it and returns
// its key. An empty queue blocks until a key is added.
//
// Returns ctx.Err() if the context is cancelled first.
func (q *TimedQueue[K]) Pop(ctx context.Context) (K, error) {
	var zero K
	for {
		key, wait, ok := q.tryPop()
		if ok {
			return key, nil
		}
		if err := q.wait(ctx, wait); err != nil {
			return zero, err
		}
	}
}

// WaitUntilExpired pops expired keys forever, invoking fn for each one
// outside the queue lock. It returns only when ctx is cancelled.
func (q *TimedQueue[K]) WaitUntilExpired(ctx context.Context, fn func(key K)) error {
	for {
		key, err := q.Pop(ctx)
		if err != nil {
			return err
		}
		fn(key)
	}
}

// Len returns the number of pending keys.
func (q *TimedQueue[K]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.index)
}

// Deadline returns when key becomes deliverable, or false if it is not pending.
func (q *TimedQueue[K]) Deadline(key K) (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	el, ok := q.index[key]
	if !ok {
		return time.Time{}, false
	}
	return el.Value.(*entry[K]).expireAt, true
}

// tryPop removes and returns the head if it has expired. Otherwise it
// reports how long until the head expires, or -1 when the queue is empty.
func (q *TimedQueue[K]) tryPop() (K, time.Duration, bool) {
	var zero K

	q.mu.Lock()
	defer q.mu.Unlock()

	front := q.order.Front()
	if front == nil {
		return zero, -1, false
	}

	e := front.Value.(*entry[K])
	if remaining := time.Until(e.expireAt); remaining > 0 {
		return zero, remaining, false
	}

	q.order.Remove(front)
	delete(q.index, e.key)
	return e.key, 0, true
}

// wait sleeps until the head may have changed or d has elapsed.
// A negative d waits for a signal only.
func (q *TimedQueue[K]) wait(ctx context.Context, d time.Duration) error {
	if d < 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.signal:
			return nil
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.signal:
		return nil
	case <-timer.C:
		return nil
	}
}

// notify wakes the consumer without blocking; the buffer of 1 coalesces
// multiple wake-ups.
func (q *TimedQueue[K]) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
