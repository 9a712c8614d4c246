package relay

import (
	"fmt"
	"sync"
	"testing"
)

func TestPublish_NoSubscribersNeverFails(t *testing.T) {
	var notes []string
	r := New(func(format string, args ...any) {
		notes = append(notes, fmt.Sprintf(format, args...))
	})

	r.Publish(ServerDiscoveredMsg{Port: 9090})

	if len(notes) != 1 {
		t.Fatalf("want one dropped-event note, got %v", notes)
	}
}

func TestSubscribeAndReceive(t *testing.T) {
	r := New(nil)
	ch, cancel := r.Subscribe()
	defer cancel()

	r.Publish(ServerDiscoveredMsg{Port: 9091})
	r.Publish(ServerLostMsg{})

	msg := <-ch
	if got, ok := msg.(ServerDiscoveredMsg); !ok || got.Port != 9091 {
		t.Fatalf("first message = %#v", msg)
	}
	if _, ok := (<-ch).(ServerLostMsg); !ok {
		t.Fatal("second message should be ServerLostMsg")
	}
}

func TestPublish_FanOut(t *testing.T) {
	r := New(nil)
	ch1, cancel1 := r.Subscribe()
	defer cancel1()
	ch2, cancel2 := r.Subscribe()
	defer cancel2()

	r.Publish(HistoryUpdatedMsg{})

	for i, ch := range []<-chan any{ch1, ch2} {
		if _, ok := (<-ch).(HistoryUpdatedMsg); !ok {
			t.Errorf("subscriber %d did not receive the event", i)
		}
	}
}

func TestPublish_FullSubscriberDropsWithoutBlocking(t *testing.T) {
	var mu sync.Mutex
	var notes []string
	r := New(func(format string, args ...any) {
		mu.Lock()
		notes = append(notes, fmt.Sprintf(format, args...))
		mu.Unlock()
	})

	_, cancel := r.Subscribe()
	defer cancel()

	// Nothing reads the channel; overflowing the buffer must not block.
	for i := 0; i < subscriberBuffer+5; i++ {
		r.Publish(ServerLostMsg{})
	}

	mu.Lock()
	dropped := len(notes)
	mu.Unlock()
	if dropped != 5 {
		t.Errorf("dropped %d events, want 5", dropped)
	}
}

func TestCancel_RemovesSubscriber(t *testing.T) {
	r := New(nil)
	ch, cancel := r.Subscribe()

	if r.Subscribers() != 1 {
		t.Fatalf("Subscribers = %d, want 1", r.Subscribers())
	}
	cancel()
	if r.Subscribers() != 0 {
		t.Fatalf("Subscribers after cancel = %d, want 0", r.Subscribers())
	}
	if _, open := <-ch; open {
		t.Error("channel should be closed after cancel")
	}

	// Double cancel is a no-op.
	cancel()
}
