package ring

import (
	"sync"
	"testing"
)

func TestPushBelowCapacity(t *testing.T) {
	b := New[int](5)
	b.Push(1)
	b.Push(2)
	b.Push(3)

	got := b.Items()
	want := []int{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("item %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestOverflowKeepsMostRecentInOrder(t *testing.T) {
	const capacity = 10
	b := New[int](capacity)

	// capacity + 5 pushes must leave exactly capacity items,
	// the most recent ones, in chronological order.
	for i := 0; i < capacity+5; i++ {
		b.Push(i)
	}

	got := b.Items()
	if len(got) != capacity {
		t.Fatalf("expected %d items after overflow, got %d", capacity, len(got))
	}
	for i, v := range got {
		if want := i + 5; v != want {
			t.Fatalf("item %d: expected %d, got %d", i, want, v)
		}
	}
	if b.Total() != capacity+5 {
		t.Fatalf("expected total %d, got %d", capacity+5, b.Total())
	}
}

func TestLast(t *testing.T) {
	b := New[int](8)
	for i := 0; i < 20; i++ {
		b.Push(i)
	}

	got := b.Last(3)
	want := []int{17, 18, 19}
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("item %d: expected %d, got %d", i, want[i], got[i])
		}
	}

	if got := b.Last(100); len(got) != 8 {
		t.Fatalf("Last beyond size should return all %d items, got %d", 8, len(got))
	}
}

func TestClear(t *testing.T) {
	b := New[string](4)
	b.Push("a")
	b.Push("b")
	b.Clear()

	if b.Len() != 0 {
		t.Fatalf("expected empty buffer after clear, got %d items", b.Len())
	}
	b.Push("c")
	items := b.Items()
	if len(items) != 1 || items[0] != "c" {
		t.Fatalf("unexpected contents after clear: %v", items)
	}
}

func TestMinimumCapacity(t *testing.T) {
	b := New[int](0)
	b.Push(1)
	b.Push(2)
	if b.Cap() != 1 {
		t.Fatalf("expected capacity 1, got %d", b.Cap())
	}
	items := b.Items()
	if len(items) != 1 || items[0] != 2 {
		t.Fatalf("unexpected contents: %v", items)
	}
}

func TestConcurrentPushers(t *testing.T) {
	b := New[int](64)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				b.Push(i)
				_ = b.Len()
			}
		}()
	}
	wg.Wait()

	if b.Len() != 64 {
		t.Fatalf("expected full buffer, got %d", b.Len())
	}
	if b.Total() != 8*500 {
		t.Fatalf("expected total %d, got %d", 8*500, b.Total())
	}
}
