package bufqueue

import (
	"sync"
	"testing"
)

func TestQueue_FIFOOrder(t *testing.T) {
	var mu sync.Mutex
	q := New[int](&mu)

	for i := 1; i <= 5; i++ {
		q.Push(i)
	}

	if got := q.Len(); got != 5 {
		t.Fatalf("Len() = %d, want 5", got)
	}

	mu.Lock()
	for want := 1; want <= 5; want++ {
		got, ok := q.PopFrontLocked()
		if !ok {
			t.Fatalf("PopFrontLocked() empty at element %d", want)
		}
		if got != want {
			t.Errorf("PopFrontLocked() = %d, want %d", got, want)
		}
	}
	if _, ok := q.PopFrontLocked(); ok {
		t.Error("PopFrontLocked() on empty queue reported ok")
	}
	mu.Unlock()
}

func TestQueue_PopEmpty(t *testing.T) {
	var mu sync.Mutex
	q := New[*int](&mu)

	mu.Lock()
	v, ok := q.PopFrontLocked()
	mu.Unlock()

	if ok {
		t.Error("PopFrontLocked() on fresh queue reported ok")
	}
	if v != nil {
		t.Errorf("PopFrontLocked() on fresh queue = %v, want nil", v)
	}
}

func TestQueue_DrainLocked(t *testing.T) {
	var mu sync.Mutex
	q := New[string](&mu)

	q.Push("a")
	q.Push("b")
	q.Push("c")

	mu.Lock()
	drained := q.DrainLocked()
	depth := q.LenLocked()
	mu.Unlock()

	if len(drained) != 3 {
		t.Fatalf("DrainLocked() returned %d items, want 3", len(drained))
	}
	for i, want := range []string{"a", "b", "c"} {
		if drained[i] != want {
			t.Errorf("drained[%d] = %q, want %q", i, drained[i], want)
		}
	}
	if depth != 0 {
		t.Errorf("LenLocked() after drain = %d, want 0", depth)
	}

	// Drain of an empty queue is a no-op.
	mu.Lock()
	if got := q.DrainLocked(); len(got) != 0 {
		t.Errorf("DrainLocked() on empty queue returned %d items", len(got))
	}
	mu.Unlock()
}

func TestQueue_ConcurrentPush(t *testing.T) {
	var mu sync.Mutex
	q := New[int](&mu)

	const writers = 8
	const perWriter = 100

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				q.Push(i)
			}
		}()
	}
	wg.Wait()

	if got := q.Len(); got != writers*perWriter {
		t.Errorf("Len() after concurrent pushes = %d, want %d", got, writers*perWriter)
	}
}
