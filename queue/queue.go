// Package queue provides a generic blocking priority queue ordered by a
// key tuple extracted from each item.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var ErrClosed = errors.New("queue: closed")

// KeyFunc extracts the ordering tuple for an item. Tuples compare
// lexicographically element by element; a shorter tuple that is a prefix of a
// longer one orders first. Supported element kinds: string, signed and
// unsigned integers, floats, bool and time.Time. Items in the same queue must
// produce the same kind at each position.
type KeyFunc[T any] func(T) []any

// Ordered is a mutex-guarded min-queue backed by a binary heap. Pops come
// out in non-decreasing key order; ties break by heap shape, which is not
// stable across insertions.
type Ordered[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	key    KeyFunc[T]
	items  []T
	closed bool
}

func New[T any](key KeyFunc[T]) *Ordered[T] {
	if key == nil {
		panic("queue: nil key func")
	}
	q := &Ordered[T]{key: key}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put inserts an item and wakes one blocked getter.
func (q *Ordered[T]) Put(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	q.up(len(q.items) - 1)
	q.cond.Signal()
}

// Get removes and returns the minimum item, blocking until one is available,
// the context is cancelled, or the queue is closed.
func (q *Ordered[T]) Get(ctx context.Context) (T, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		if q.closed {
			return zero, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		q.cond.Wait()
	}
	return q.popMin(), nil
}

// TryGet removes and returns the minimum item without blocking.
func (q *Ordered[T]) TryGet() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.popMin(), true
}

// Peek returns the minimum item without removing it.
func (q *Ordered[T]) Peek() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.items[0], true
}

// Contains reports whether any queued item has a key tuple equal to the
// given item's. Equality is by extracted tuple, not object identity.
func (q *Ordered[T]) Contains(item T) bool {
	want := q.key(item)
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		if compareKeys(q.key(it), want) == 0 {
			return true
		}
	}
	return false
}

func (q *Ordered[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// At returns the i-th item in sorted order. The backing slice is sorted and
// re-heapified, so indexed reads are O(n log n); they exist for inspection
// and editing, not the hot path.
func (q *Ordered[T]) At(i int) (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if i < 0 || i >= len(q.items) {
		return zero, false
	}
	q.sortLocked()
	item := q.items[i]
	q.heapifyLocked()
	return item, true
}

// Update replaces the i-th item in sorted order.
func (q *Ordered[T]) Update(i int, item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i < 0 || i >= len(q.items) {
		return false
	}
	q.sortLocked()
	q.items[i] = item
	q.heapifyLocked()
	return true
}

// Delete removes and returns the i-th item in sorted order.
func (q *Ordered[T]) Delete(i int) (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if i < 0 || i >= len(q.items) {
		return zero, false
	}
	q.sortLocked()
	item := q.items[i]
	q.items = append(q.items[:i], q.items[i+1:]...)
	q.heapifyLocked()
	return item, true
}

// Snapshot returns a fully sorted copy of the queue contents. The queue
// itself is left in heap order; the copy is taken under the lock so it never
// interleaves with Put or Get.
func (q *Ordered[T]) Snapshot() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, len(q.items))
	copy(out, q.items)
	sort.SliceStable(out, func(i, j int) bool {
		return compareKeys(q.key(out[i]), q.key(out[j])) < 0
	})
	return out
}

// Close wakes all blocked getters with ErrClosed. Items still queued can be
// drained with TryGet.
func (q *Ordered[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *Ordered[T]) popMin() T {
	n := len(q.items) - 1
	item := q.items[0]
	q.items[0] = q.items[n]
	var zero T
	q.items[n] = zero
	q.items = q.items[:n]
	if n > 0 {
		q.down(0)
	}
	return item
}

func (q *Ordered[T]) less(i, j int) bool {
	return compareKeys(q.key(q.items[i]), q.key(q.items[j])) < 0
}

func (q *Ordered[T]) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !q.less(i, parent) {
			return
		}
		q.items[i], q.items[parent] = q.items[parent], q.items[i]
		i = parent
	}
}

func (q *Ordered[T]) down(i int) {
	n := len(q.items)
	for {
		left := 2*i + 1
		if left >= n {
			return
		}
		smallest := left
		if right := left + 1; right < n && q.less(right, left) {
			smallest = right
		}
		if !q.less(smallest, i) {
			return
		}
		q.items[i], q.items[smallest] = q.items[smallest], q.items[i]
		i = smallest
	}
}

func (q *Ordered[T]) sortLocked() {
	sort.SliceStable(q.items, func(i, j int) bool { return q.less(i, j) })
}

func (q *Ordered[T]) heapifyLocked() {
	// A sorted slice already satisfies the heap invariant, but Update and
	// Delete call this after arbitrary edits, so sift everything.
	for i := len(q.items)/2 - 1; i >= 0; i-- {
		q.down(i)
	}
}

func compareKeys(a, b []any) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := compareElem(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func compareElem(a, b any) int {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		mustMatch(ok, a, b)
		return cmpOrdered(x, y)
	case int:
		y, ok := b.(int)
		mustMatch(ok, a, b)
		return cmpOrdered(x, y)
	case int8:
		y, ok := b.(int8)
		mustMatch(ok, a, b)
		return cmpOrdered(x, y)
	case int16:
		y, ok := b.(int16)
		mustMatch(ok, a, b)
		return cmpOrdered(x, y)
	case int32:
		y, ok := b.(int32)
		mustMatch(ok, a, b)
		return cmpOrdered(x, y)
	case int64:
		y, ok := b.(int64)
		mustMatch(ok, a, b)
		return cmpOrdered(x, y)
	case uint:
		y, ok := b.(uint)
		mustMatch(ok, a, b)
		return cmpOrdered(x, y)
	case uint8:
		y, ok := b.(uint8)
		mustMatch(ok, a, b)
		return cmpOrdered(x, y)
	case uint16:
		y, ok := b.(uint16)
		mustMatch(ok, a, b)
		return cmpOrdered(x, y)
	case uint32:
		y, ok := b.(uint32)
		mustMatch(ok, a, b)
		return cmpOrdered(x, y)
	case uint64:
		y, ok := b.(uint64)
		mustMatch(ok, a, b)
		return cmpOrdered(x, y)
	case float32:
		y, ok := b.(float32)
		mustMatch(ok, a, b)
		return cmpOrdered(x, y)
	case float64:
		y, ok := b.(float64)
		mustMatch(ok, a, b)
		return cmpOrdered(x, y)
	case bool:
		y, ok := b.(bool)
		mustMatch(ok, a, b)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case time.Time:
		y, ok := b.(time.Time)
		mustMatch(ok, a, b)
		switch {
		case x.Before(y):
			return -1
		case x.After(y):
			return 1
		default:
			return 0
		}
	default:
		panic(fmt.Sprintf("queue: unsupported key element type %T", a))
	}
}

func mustMatch(ok bool, a, b any) {
	if !ok {
		panic(fmt.Sprintf("queue: mismatched key element types %T and %T", a, b))
	}
}

func cmpOrdered[T interface {
	~string | ~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
