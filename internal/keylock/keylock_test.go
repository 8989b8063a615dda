package keylock

import (
	"sync"
	"testing"
)

func TestLockSerializesSameKey(t *testing.T) {
	locks := New()

	const workers = 32
	counter := 0

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			unlock := locks.Lock("deposit-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Fatalf("expected %d increments, got %d", workers, counter)
	}
}

func TestLockIndependentKeys(t *testing.T) {
	locks := New()

	unlockA := locks.Lock("a")

	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock("b")
		unlockB()
		close(done)
	}()

	// Holding "a" must not block "b".
	<-done
	unlockA()
}

func TestLockReleasesEntries(t *testing.T) {
	locks := New()

	unlock := locks.Lock("ephemeral")
	unlock()

	locks.mu.Lock()
	defer locks.mu.Unlock()
	if len(locks.locks) != 0 {
		t.Fatalf("expected no retained entries, got %d", len(locks.locks))
	}
}
