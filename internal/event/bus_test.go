package event

import (
	"sync"
	"testing"
)

func TestPublishReachesMatchingSubscribers(t *testing.T) {
	b := NewBus()

	var tracked, all int
	b.Subscribe(func(ev Event) { tracked++ }, ErrorTracked)
	b.Subscribe(func(ev Event) { all++ })

	b.Publish(ErrorTracked, nil)
	b.Publish(ErrorSpike, nil)
	b.Publish(MetricsAlert, nil)

	if tracked != 1 {
		t.Fatalf("kind-filtered subscriber: expected 1 event, got %d", tracked)
	}
	if all != 3 {
		t.Fatalf("catch-all subscriber: expected 3 events, got %d", all)
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	b := NewBus()

	var got int
	cancel := b.Subscribe(func(ev Event) { got++ }, ErrorTracked)

	b.Publish(ErrorTracked, nil)
	cancel()
	cancel() // second call is a no-op
	b.Publish(ErrorTracked, nil)

	if got != 1 {
		t.Fatalf("expected 1 event after cancel, got %d", got)
	}
	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.SubscriberCount())
	}
}

func TestPublishOrderPerSubscriber(t *testing.T) {
	b := NewBus()

	var kinds []Kind
	b.Subscribe(func(ev Event) { kinds = append(kinds, ev.Kind) })

	b.Publish(RequestRecorded, nil)
	b.Publish(RequestCompleted, nil)
	b.Publish(ErrorTracked, nil)

	want := []Kind{RequestRecorded, RequestCompleted, ErrorTracked}
	if len(kinds) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(kinds))
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], kinds[i])
		}
	}
}

func TestSubscribeDuringDispatch(t *testing.T) {
	b := NewBus()

	var late int
	b.Subscribe(func(ev Event) {
		b.Subscribe(func(Event) { late++ }, ErrorTracked)
	}, NewErrorType)

	b.Publish(NewErrorType, nil) // must not deadlock
	b.Publish(ErrorTracked, nil)

	if late != 1 {
		t.Fatalf("expected late subscriber to receive 1 event, got %d", late)
	}
}

func TestConcurrentPublish(t *testing.T) {
	b := NewBus()

	var mu sync.Mutex
	count := 0
	b.Subscribe(func(ev Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b.Publish(MetricsSnapshot, nil)
			}
		}()
	}
	wg.Wait()

	if count != 400 {
		t.Fatalf("expected 400 deliveries, got %d", count)
	}
}
