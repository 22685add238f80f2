package scan

import (
	"container/heap"
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/equityrun/internal/domain"
)

// DefaultQueueCapacity bounds the candidate queue between scanners and the
// dispatcher.
const DefaultQueueCapacity = 1024

// Queue is the bounded, priority-ordered candidate buffer. Consumers pop the
// highest-priority candidate; within a priority, arrival order holds. When
// full, the lowest-priority entry is evicted to admit a higher-priority one;
// CRITICAL candidates are never dropped (the queue grows past capacity for
// them rather than lose one).
type Queue struct {
	mu       sync.Mutex
	items    candidateHeap
	capacity int
	seq      uint64
	dropped  map[domain.Priority]uint64
	wake     chan struct{}
}

// NewQueue creates a queue with the given capacity (<=0 means default).
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		capacity: capacity,
		dropped:  make(map[domain.Priority]uint64),
		wake:     make(chan struct{}, 1),
	}
}

// Push offers a candidate and reports whether it was admitted. A full queue
// either evicts a strictly lower-priority entry or drops the newcomer.
func (q *Queue) Push(c domain.Candidate) bool {
	q.mu.Lock()

	if len(q.items) >= q.capacity && c.Priority != domain.PriorityCritical {
		victim := q.lowestIndex()
		if victim < 0 || q.items[victim].c.Priority.Rank() >= c.Priority.Rank() {
			q.dropped[c.Priority]++
			q.mu.Unlock()
			log.Warn().Str("symbol", string(c.Symbol)).Str("priority", string(c.Priority)).
				Msg("Candidate queue full, dropping candidate")
			return false
		}
		evicted := q.items[victim].c
		heap.Remove(&q.items, victim)
		q.dropped[evicted.Priority]++
		log.Warn().Str("symbol", string(evicted.Symbol)).Str("priority", string(evicted.Priority)).
			Msg("Candidate queue full, evicting lower priority candidate")
	}

	q.seq++
	heap.Push(&q.items, queued{c: c, seq: q.seq})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Pop blocks until a candidate is available or the context is cancelled.
func (q *Queue) Pop(ctx context.Context) (domain.Candidate, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			c := heap.Pop(&q.items).(queued).c
			q.mu.Unlock()
			return c, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return domain.Candidate{}, ctx.Err()
		case <-q.wake:
		}
	}
}

// Len returns the queued candidate count.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns drop counts per priority.
func (q *Queue) Dropped() map[domain.Priority]uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[domain.Priority]uint64, len(q.dropped))
	for k, v := range q.dropped {
		out[k] = v
	}
	return out
}

// lowestIndex finds the entry with the lowest priority, latest arrival. Must
// be called with the lock held. Returns -1 for an empty queue.
func (q *Queue) lowestIndex() int {
	best := -1
	for i, it := range q.items {
		if it.c.Priority == domain.PriorityCritical {
			continue
		}
		if best < 0 ||
			it.c.Priority.Rank() < q.items[best].c.Priority.Rank() ||
			(it.c.Priority.Rank() == q.items[best].c.Priority.Rank() && it.seq > q.items[best].seq) {
			best = i
		}
	}
	return best
}

type queued struct {
	c   domain.Candidate
	seq uint64
}

// candidateHeap orders by priority rank descending, then arrival order.
type candidateHeap []queued

func (h candidateHeap) Len() int { return len(h) }
func (h candidateHeap) Less(i, j int) bool {
	if ri, rj := h[i].c.Priority.Rank(), h[j].c.Priority.Rank(); ri != rj {
		return ri > rj
	}
	return h[i].seq < h[j].seq
}
func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x any) { *h = append(*h, x.(queued)) }
func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
