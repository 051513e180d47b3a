// Package promptqueue implements the PromptQueue component: a single
// global FIFO-with-priority queue of operator-submitted prompts, drained
// only at AgentCore turn boundaries.
package promptqueue

import (
	"container/heap"
	"sync"

	"github.com/google/uuid"
)

// Item is a queued prompt awaiting injection into an AgentCore's context.
type Item struct {
	ID       string
	Text     string
	Priority int
	sequence uint64
	index    int
}

// PromptQueue is a thread-safe priority queue ordered by (priority desc,
// sequence asc), grounded on the teacher's internal/tools/subagent.
// AnnounceQueue enqueue/dequeue shape but generalized from a per-session
// FIFO to a single global priority heap.
type PromptQueue struct {
	mu   sync.Mutex
	heap itemHeap
	next uint64
}

// New creates an empty PromptQueue.
func New() *PromptQueue {
	q := &PromptQueue{}
	heap.Init(&q.heap)
	return q
}

// Enqueue adds text with the given priority and returns its assigned id.
// Higher priority values are drained first; ties break FIFO.
func (q *PromptQueue) Enqueue(text string, priority int) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := &Item{
		ID:       uuid.NewString(),
		Text:     text,
		Priority: priority,
		sequence: q.next,
	}
	q.next++
	heap.Push(&q.heap, item)
	return item.ID
}

// Drain removes and returns every queued item in priority order, leaving
// the queue empty.
func (q *PromptQueue) Drain() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Item, 0, q.heap.Len())
	for q.heap.Len() > 0 {
		item := heap.Pop(&q.heap).(*Item)
		out = append(out, *item)
	}
	return out
}

// Remove deletes a queued item by id, reporting whether it was found.
func (q *PromptQueue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, item := range q.heap {
		if item.ID == id {
			heap.Remove(&q.heap, i)
			return true
		}
	}
	return false
}

// Len reports the number of queued items.
func (q *PromptQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// itemHeap implements container/heap.Interface ordered by
// (priority desc, sequence asc).
type itemHeap []*Item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].sequence < h[j].sequence
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x any) {
	item := x.(*Item)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}
