package dsa

import "sync"

// ─── FIFO Queue (Growable Ring Buffer) ──────────────────────────────────────
// Unbounded, strictly ordered, safe for many producers and one consumer.
//
// Operations:
//   Push:    O(1) amortized, doubles capacity when full
//   Pop:     O(1)
//   Len:     O(1)
//
// Memory: the buffer shrinks by half once it is less than a quarter full,
// so a burst of events does not pin memory forever.

const minQueueCap = 16

// Queue is a thread-safe FIFO queue.
type Queue[T any] struct {
	mu   sync.Mutex
	buf  []T
	head int // index of the oldest item
	size int
}

// NewQueue creates an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{buf: make([]T, minQueueCap)}
}

// Push appends an item at the tail. Never blocks on capacity.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == len(q.buf) {
		q.resize(len(q.buf) * 2)
	}
	q.buf[(q.head+q.size)%len(q.buf)] = item
	q.size++
}

// Pop removes and returns the oldest item.
// Returns the item and true, or zero-value and false if empty.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.size == 0 {
		return zero, false
	}

	item := q.buf[q.head]
	q.buf[q.head] = zero // release reference for GC
	q.head = (q.head + 1) % len(q.buf)
	q.size--

	if len(q.buf) > minQueueCap && q.size < len(q.buf)/4 {
		q.resize(len(q.buf) / 2)
	}
	return item, true
}

// Peek returns the oldest item without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		var zero T
		return zero, false
	}
	return q.buf[q.head], true
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// resize copies items into a buffer of capacity n, oldest first. Caller holds mu.
func (q *Queue[T]) resize(n int) {
	next := make([]T, n)
	for i := 0; i < q.size; i++ {
		next[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = next
	q.head = 0
}
