package core

import (
	"sync"
)

const (
	defaultDequeCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// workItem is a single entry in a worker's ready queue: either a task that
// has not started yet, or a suspended fiber that has been marked ready.
type workItem struct {
	task  TaskItem
	fiber *fiber // non-nil for a ready-to-resume fiber
}

// workDeque is a worker's ready queue. The owning worker pops from the front
// (FIFO) while thieves remove from the back. A narrow mutex keeps concurrent
// push/pop/steal safe; an item is handed out exactly once.
type workDeque struct {
	mu    sync.Mutex
	items []workItem
}

func newWorkDeque() *workDeque {
	return &workDeque{
		items: make([]workItem, 0, defaultDequeCap),
	}
}

// Push appends an item at the back of the deque.
func (q *workDeque) Push(item workItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

// PopFront removes the oldest item. Only the owning worker calls this,
// preserving FIFO order for locally queued work.
func (q *workDeque) PopFront() (workItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return workItem{}, false
	}

	item := q.items[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.items[0] = workItem{}
	q.items = q.items[1:]
	q.maybeCompactLocked()

	return item, true
}

// Steal removes the newest item. Called by idle workers; taking from the
// back keeps thieves and the owner off the same end of the deque.
func (q *workDeque) Steal() (workItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	if n == 0 {
		return workItem{}, false
	}

	item := q.items[n-1]
	q.items[n-1] = workItem{}
	q.items = q.items[:n-1]
	q.maybeCompactLocked()

	return item, true
}

func (q *workDeque) maybeCompactLocked() {
	n := len(q.items)
	c := cap(q.items)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.items = make([]workItem, 0, defaultDequeCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultDequeCap), n)

	newSlice := make([]workItem, n, newCap)
	copy(newSlice, q.items)
	q.items = newSlice
}

func (q *workDeque) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear removes all items from the deque and releases references
func (q *workDeque) Clear() []workItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	dropped := q.items
	q.items = make([]workItem, 0, defaultDequeCap)
	return dropped
}
