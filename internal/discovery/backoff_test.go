package discovery

import (
	"testing"
	"time"
)

func TestBackoff_DoublingAndCap(t *testing.T) {
	b := NewBackoff(time.Second, 60*time.Second)

	if b.Current() != time.Second {
		t.Fatalf("initial interval should equal base, got %v", b.Current())
	}

	// After N failures the interval is min(base * 2^N, max).
	expected := []time.Duration{
		2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
		32 * time.Second, 60 * time.Second, 60 * time.Second, 60 * time.Second,
	}
	for i, want := range expected {
		if got := b.Failure(); got != want {
			t.Errorf("after %d failures: got %v, want %v", i+1, got, want)
		}
	}
}

func TestBackoff_SuccessResets(t *testing.T) {
	b := NewBackoff(time.Second, 60*time.Second)

	for i := 0; i < 10; i++ {
		b.Failure()
	}
	if got := b.Success(); got != time.Second {
		t.Fatalf("success should reset to base, got %v", got)
	}
	if b.Current() != time.Second {
		t.Fatalf("current should be base after success, got %v", b.Current())
	}

	// And the doubling starts over.
	if got := b.Failure(); got != 2*time.Second {
		t.Errorf("first failure after reset should double the base, got %v", got)
	}
}

func TestBackoff_DegenerateInputs(t *testing.T) {
	b := NewBackoff(0, 0)
	if b.Current() <= 0 {
		t.Fatalf("zero-valued construction should still produce a positive interval, got %v", b.Current())
	}
	if b.Failure() < b.Current() {
		t.Errorf("failure must never shrink the interval")
	}
}
