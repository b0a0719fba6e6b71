// Package mempool implements C5: a priority-ordered, bounded transaction
// buffer feeding block proposals. It is a max-heap by fee, guarded by a
// plain mutex (not a reader/writer lock) because every operation mutates
// the heap, matching spec.md §5's "mempool ... uses a mutex-style exclusive
// guard because every operation mutates counters".
package mempool

import (
	"container/heap"
	"sync"
)

const defaultMaxSize = 10000

// entry is one slot of the internal priority heap.
type entry struct {
	tx       *Transaction
	priority uint64
	index    int
}

// txHeap is a max-heap by priority.
type txHeap []*entry

func (h txHeap) Len() int            { return len(h) }
func (h txHeap) Less(i, j int) bool  { return h[i].priority > h[j].priority } // max-heap
func (h txHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *txHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *txHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Mempool is a bounded max-heap priority queue of transactions.
type Mempool struct {
	mu                sync.Mutex
	heap              txHeap
	byID              map[string]*entry
	maxSize           int
	compareBeforeEvict bool
}

// Option configures a Mempool at construction.
type Option func(*Mempool)

// CompareBeforeEvict switches Add to the "compare against min and
// reject-or-replace" alternative spec.md §9 recommends instead of the
// default pop-then-push quirk. Off by default, so the default behavior
// matches spec.md §4.5 and §9 exactly (including the bug where a
// newly-submitted low-priority transaction can evict an existing
// higher-priority one).
func CompareBeforeEvict(enabled bool) Option {
	return func(m *Mempool) { m.compareBeforeEvict = enabled }
}

// WithMaxSize overrides the default bound of 10,000.
func WithMaxSize(n int) Option {
	return func(m *Mempool) { m.maxSize = n }
}

// New creates an empty, bounded mempool.
func New(opts ...Option) *Mempool {
	m := &Mempool{
		byID:    make(map[string]*entry),
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add inserts tx with the given priority (its fee). When the pool is full:
//
//   - by default, the current minimum-priority element is evicted *before*
//     tx is pushed — the eviction never compares priorities against the
//     newcomer, so tx is always inserted, even when its priority is below
//     the evicted one; it is then the new minimum and the first entry
//     evicted by the next overflowing Add (spec.md §4.5, §9).
//   - with CompareBeforeEvict(true), tx is rejected outright if its
//     priority is <= the current minimum; otherwise the minimum is evicted
//     and tx is pushed.
func (m *Mempool) Add(tx *Transaction, priority uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.byID[tx.ID]; ok {
		old.priority = priority
		old.tx = tx
		heap.Fix(&m.heap, old.index)
		return
	}

	if len(m.heap) >= m.maxSize {
		min := m.minLocked()
		if m.compareBeforeEvict && min != nil && priority <= min.priority {
			return
		}
		if min != nil {
			m.removeLocked(min)
		}
	}

	e := &entry{tx: tx, priority: priority}
	heap.Push(&m.heap, e)
	m.byID[tx.ID] = e
}

// minLocked returns the lowest-priority entry in the heap (callers must
// hold m.mu). It is not the heap's structural root (the root is the max),
// so this is a linear scan — mempools are bounded (default 10,000), so
// this stays cheap relative to network I/O.
func (m *Mempool) minLocked() *entry {
	if len(m.heap) == 0 {
		return nil
	}
	min := m.heap[0]
	for _, e := range m.heap {
		if e.priority < min.priority {
			min = e
		}
	}
	return min
}

func (m *Mempool) removeLocked(e *entry) {
	heap.Remove(&m.heap, e.index)
	delete(m.byID, e.tx.ID)
}

// Remove drops a transaction by ID, if present.
func (m *Mempool) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.byID[id]; ok {
		m.removeLocked(e)
	}
}

// Contains reports whether a transaction ID is currently in the pool.
func (m *Mempool) Contains(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byID[id]
	return ok
}

// Get returns a transaction by ID.
func (m *Mempool) Get(id string) (*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return nil, false
	}
	return e.tx, true
}

// GetTransactions returns every transaction currently in the pool, in heap
// order (not guaranteed sorted by priority).
func (m *Mempool) GetTransactions() []*Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Transaction, len(m.heap))
	for i, e := range m.heap {
		out[i] = e.tx
	}
	return out
}

// TopN pops up to n highest-priority transactions without removing them
// from the pool, used by block proposal assembly
// (max_transactions_per_block, default 1000).
func (m *Mempool) TopN(n int) []*Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make(txHeap, len(m.heap))
	copy(cp, m.heap)
	for i := range cp {
		e := *cp[i]
		cp[i] = &e
	}
	heap.Init(&cp)

	if n > len(cp) {
		n = len(cp)
	}
	out := make([]*Transaction, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, heap.Pop(&cp).(*entry).tx)
	}
	return out
}

// Len returns the current number of transactions in the pool.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.heap)
}
