// Package queue implements the per-class ready queue: a min-ordered
// structure keyed by (epoch ascending, insertion order ascending), as
// described in spec §4.2. The broker owns one of these per proof class.
package queue

import "container/heap"

// entry pairs a job ID with the ordering key the queue sorts on. The queue
// package does not know about jobs.Job — it only needs an opaque ID plus
// the two-part priority key, which keeps it reusable and trivially testable
// without pulling in the domain model.
type entry struct {
	id       string
	epoch    uint64
	sequence uint64 // insertion order, used to break epoch ties FIFO
}

type entryHeap []entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].epoch != h[j].epoch {
		return h[i].epoch < h[j].epoch
	}
	return h[i].sequence < h[j].sequence
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x interface{}) {
	*h = append(*h, x.(entry))
}

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// PriorityQueue is a single proof class's ready queue. It is not safe for
// concurrent use on its own — the broker serializes access to it under its
// own mutex (§5) — so it carries no lock of its own.
type PriorityQueue struct {
	h        entryHeap
	nextSeq  uint64
	inQueue  map[string]struct{}
}

// New builds an empty priority queue.
func New() *PriorityQueue {
	pq := &PriorityQueue{inQueue: make(map[string]struct{})}
	heap.Init(&pq.h)
	return pq
}

// Push inserts a job ID at the position implied by its epoch. Pushing an ID
// already present is a no-op, preserving invariant 3 (a job id is queued at
// most once) even if a caller pushes the same id twice by mistake.
func (pq *PriorityQueue) Push(id string, epoch uint64) {
	if _, exists := pq.inQueue[id]; exists {
		return
	}
	heap.Push(&pq.h, entry{id: id, epoch: epoch, sequence: pq.nextSeq})
	pq.nextSeq++
	pq.inQueue[id] = struct{}{}
}

// PopNonBlocking removes and returns the highest-priority job ID, or ("",
// false) if the queue is empty.
func (pq *PriorityQueue) PopNonBlocking() (string, bool) {
	if pq.h.Len() == 0 {
		return "", false
	}
	e := heap.Pop(&pq.h).(entry)
	delete(pq.inQueue, e.id)
	return e.id, true
}

// Remove deletes a job ID from the queue if present, used by cancel (§4.1).
// It is O(n) — cancellation is not a hot path and the queue holds at most
// the number of jobs pending for one proof class.
func (pq *PriorityQueue) Remove(id string) bool {
	if _, exists := pq.inQueue[id]; !exists {
		return false
	}
	for i, e := range pq.h {
		if e.id == id {
			heap.Remove(&pq.h, i)
			delete(pq.inQueue, id)
			return true
		}
	}
	return false
}

// Contains reports whether id is currently queued.
func (pq *PriorityQueue) Contains(id string) bool {
	_, ok := pq.inQueue[id]
	return ok
}

// Len returns the number of queued jobs.
func (pq *PriorityQueue) Len() int {
	return pq.h.Len()
}
