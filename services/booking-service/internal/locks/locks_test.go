package locks

import (
	"context"
	"sync"
	"testing"
)

func TestKeyedSerializesSameKey(t *testing.T) {
	k := NewKeyed()
	const workers = 20

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := k.Lock(context.Background(), "schedule-1")
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			// Unsynchronized increment; only the lock protects it.
			counter++
			release()
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Fatalf("expected %d increments, got %d", workers, counter)
	}
}

func TestKeyedIndependentKeys(t *testing.T) {
	k := NewKeyed()

	releaseA, err := k.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("Lock a: %v", err)
	}
	defer releaseA()

	// A different key must not block.
	done := make(chan struct{})
	go func() {
		releaseB, err := k.Lock(context.Background(), "b")
		if err != nil {
			t.Errorf("Lock b: %v", err)
			return
		}
		releaseB()
		close(done)
	}()
	<-done
}

func TestKeyedReleaseIdempotent(t *testing.T) {
	k := NewKeyed()
	release, err := k.Lock(context.Background(), "x")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	release()
	release() // second call must be a no-op, not a panic

	again, err := k.Lock(context.Background(), "x")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()
}
