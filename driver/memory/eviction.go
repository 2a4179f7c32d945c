package memory

import (
	"container/heap"
	"time"
)

// expiry schedules key for eviction at the given time.
type expiry struct {
	at  time.Time
	key string
}

// expiryHeap is a min-heap of expiry entries ordered by time.
type expiryHeap []expiry

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h expiryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *expiryHeap) Push(e any) {
	*h = append(*h, e.(expiry))
}

func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// expiryQueue yields keys in order of their scheduled expiration. A key may
// be scheduled more than once (e.g., when rewritten with a fresh TTL); the
// caller is responsible for checking whether the key is still due.
type expiryQueue struct {
	h expiryHeap
}

func newExpiryQueue() *expiryQueue {
	q := new(expiryQueue)
	heap.Init(&q.h)
	return q
}

func (q *expiryQueue) schedule(key string, at time.Time) {
	heap.Push(&q.h, expiry{at: at, key: key})
}

// due pops and returns every key scheduled strictly before t, earliest first.
func (q *expiryQueue) due(t time.Time) []string {
	var keys []string
	for q.h.Len() > 0 && q.h[0].at.Before(t) {
		keys = append(keys, heap.Pop(&q.h).(expiry).key)
	}
	return keys
}

func (q *expiryQueue) len() int {
	return q.h.Len()
}
