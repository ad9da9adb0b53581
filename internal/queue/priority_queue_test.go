package queue

import "testing"

func TestPopOrdersByEpochThenFIFO(t *testing.T) {
	pq := New()
	pq.Push("a", 7)
	pq.Push("b", 3)
	pq.Push("c", 3)

	first, ok := pq.PopNonBlocking()
	if !ok || first != "b" {
		t.Fatalf("expected b first, got %s ok=%v", first, ok)
	}
	second, ok := pq.PopNonBlocking()
	if !ok || second != "c" {
		t.Fatalf("expected c second (FIFO tie-break), got %s ok=%v", second, ok)
	}
	third, ok := pq.PopNonBlocking()
	if !ok || third != "a" {
		t.Fatalf("expected a third, got %s ok=%v", third, ok)
	}
	if _, ok := pq.PopNonBlocking(); ok {
		t.Fatalf("expected empty queue")
	}
}

func TestPushDeduplicates(t *testing.T) {
	pq := New()
	pq.Push("a", 1)
	pq.Push("a", 1)
	if pq.Len() != 1 {
		t.Fatalf("expected single entry, got %d", pq.Len())
	}
}

func TestRemove(t *testing.T) {
	pq := New()
	pq.Push("a", 1)
	pq.Push("b", 2)
	if !pq.Remove("a") {
		t.Fatalf("expected removal to succeed")
	}
	if pq.Contains("a") {
		t.Fatalf("expected a to be gone")
	}
	id, ok := pq.PopNonBlocking()
	if !ok || id != "b" {
		t.Fatalf("expected b remaining, got %s", id)
	}
}

func TestRemoveUnknown(t *testing.T) {
	pq := New()
	if pq.Remove("missing") {
		t.Fatalf("expected remove of unknown id to be a no-op")
	}
}
