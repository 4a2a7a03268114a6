// Package queue provides a generic priority queue for ordered task selection.
package queue

import (
	"container/heap"
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Next once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// Item is a queued value with its priority. Lower values are more urgent.
type Item[T any] struct {
	Value    T
	Priority int
	seq      uint64
}

type itemHeap[T any] []*Item[T]

func (h itemHeap[T]) Len() int { return len(h) }

func (h itemHeap[T]) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	// FIFO among equal priorities
	return h[i].seq < h[j].seq
}

func (h itemHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap[T]) Push(x any) { *h = append(*h, x.(*Item[T])) }

func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

// PriorityQueue orders values by priority. The most recently dequeued value
// is the focused item; enqueuing something more urgent than it preempts the
// focus, putting the focused value back in the queue.
type PriorityQueue[T any] struct {
	mu      sync.Mutex
	items   itemHeap[T]
	focused *Item[T]
	nextSeq uint64
	notify  chan struct{}
	closed  bool

	// OnPreempt, when set, is called with the value that lost focus.
	OnPreempt func(T)
}

// New returns an empty queue.
func New[T any]() *PriorityQueue[T] {
	q := &PriorityQueue[T]{notify: make(chan struct{}, 1)}
	heap.Init(&q.items)
	return q
}

// Enqueue adds value with the given priority.
func (q *PriorityQueue[T]) Enqueue(value T, priority int) {
	q.mu.Lock()
	q.nextSeq++
	heap.Push(&q.items, &Item[T]{Value: value, Priority: priority, seq: q.nextSeq})

	var preempted *Item[T]
	if q.focused != nil && priority < q.focused.Priority {
		preempted = q.focused
		q.focused = nil
		heap.Push(&q.items, preempted)
	}
	cb := q.OnPreempt
	q.mu.Unlock()

	q.signal()
	if preempted != nil && cb != nil {
		cb(preempted.Value)
	}
}

// Dequeue removes and focuses the most urgent value. ok is false when empty.
func (q *PriorityQueue[T]) Dequeue() (value T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *PriorityQueue[T]) popLocked() (value T, ok bool) {
	if q.items.Len() == 0 {
		return value, false
	}
	it := heap.Pop(&q.items).(*Item[T])
	q.focused = it
	return it.Value, true
}

// Next blocks until a value is available, the context ends or the queue is
// closed and empty.
func (q *PriorityQueue[T]) Next(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if v, ok := q.popLocked(); ok {
			q.mu.Unlock()
			return v, nil
		}
		closed := q.closed
		q.mu.Unlock()

		var zero T
		if closed {
			return zero, ErrClosed
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-q.notify:
		}
	}
}

// Peek returns the most urgent value without removing it.
func (q *PriorityQueue[T]) Peek() (value T, priority int, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return value, 0, false
	}
	return q.items[0].Value, q.items[0].Priority, true
}

// Focused returns the value currently in focus.
func (q *PriorityQueue[T]) Focused() (value T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.focused == nil {
		return value, false
	}
	return q.focused.Value, true
}

// Release clears the focused value once its work is done.
func (q *PriorityQueue[T]) Release() {
	q.mu.Lock()
	q.focused = nil
	q.mu.Unlock()
}

// Len returns the number of queued values, excluding the focused one.
func (q *PriorityQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// IsEmpty reports whether nothing is queued.
func (q *PriorityQueue[T]) IsEmpty() bool { return q.Len() == 0 }

// Close wakes blocked Next calls; they drain remaining values then return ErrClosed.
func (q *PriorityQueue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
}

func (q *PriorityQueue[T]) signal() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
