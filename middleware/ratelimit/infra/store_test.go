package infra

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func newTestStore(t *testing.T, rps float64, burst int, opts ...StoreOption) *BucketStore {
	t.Helper()
	s, err := NewBucketStore(rps, burst, opts...)
	if err != nil {
		t.Fatalf("NewBucketStore: %v", err)
	}
	return s
}

func TestBucketStore_GetSameKeyReturnsSameLimiter(t *testing.T) {
	s := newTestStore(t, 10, 1)

	l1 := s.Get("k")
	l2 := s.Get("k")
	if l1 != l2 {
		t.Fatalf("expected same limiter pointer for same key")
	}
}

func TestBucketStore_LowBurstRejectsSecondImmediateAllow(t *testing.T) {
	s := newTestStore(t, 0.02, 1)

	lim := s.Get("k")
	if !lim.Allow() {
		t.Fatalf("expected first Allow to be true")
	}
	if lim.Allow() {
		t.Fatalf("expected second immediate Allow to be false (burst=1)")
	}
}

func TestBucketStore_CleanupRemovesIdleEntries(t *testing.T) {
	s := newTestStore(t, 10, 1, WithIdleTTL(2*time.Millisecond), WithCleanupEvery(0))

	before := s.Get("k")
	time.Sleep(4 * time.Millisecond)

	s.Cleanup()

	after := s.Get("k")
	if before == after {
		t.Fatalf("expected limiter to be recreated after cleanup")
	}
}

func TestBucketStore_CleanupKeepsRecentEntries(t *testing.T) {
	s := newTestStore(t, 10, 1, WithIdleTTL(time.Hour))

	before := s.Get("k")
	s.Cleanup()
	if after := s.Get("k"); before != after {
		t.Fatalf("expected recent limiter to survive cleanup")
	}
}

func TestBucketStore_EvictsLeastRecentlyUsedBeyondCapacity(t *testing.T) {
	s := newTestStore(t, 10, 1, WithCapacity(2))

	a := s.Get("a")
	s.Get("b")
	s.Get("a") // "b" passa a ser o menos usado
	s.Get("c")

	if s.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", s.Len())
	}
	if s.Get("a") != a {
		t.Fatalf("expected recently used key to be kept")
	}
}

func TestBucketStore_RejectsNonPositiveCapacity(t *testing.T) {
	if _, err := NewBucketStore(10, 1, WithCapacity(0)); err == nil {
		t.Fatalf("expected error for capacity=0")
	}
}

func TestBucketStore_ConcurrentGetCreatesSingleLimiter(t *testing.T) {
	s := newTestStore(t, 10, 1)

	const workers = 32
	got := make([]*rate.Limiter, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			got[i] = s.Get("shared")
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if got[i] != got[0] {
			t.Fatalf("expected every goroutine to receive the same limiter")
		}
	}
}

func TestBucketStore_JanitorStopsWithContext(t *testing.T) {
	s := newTestStore(t, 10, 1, WithIdleTTL(time.Millisecond), WithCleanupEvery(2*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	s.StartJanitor(ctx)
	s.Get("k")

	deadline := time.Now().Add(time.Second)
	for s.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()

	if s.Len() != 0 {
		t.Fatalf("expected janitor to remove idle key")
	}
}

func TestBucketStore_CleanupWaitsForInFlightGet(t *testing.T) {
	s := newTestStore(t, 1, 1, WithIdleTTL(time.Minute))
	lim := s.Get("k")

	ent, _ := s.cache.Peek("k")
	ent.lastSeen.Store(time.Now().Add(-time.Hour).UnixNano())

	// um Get em andamento segura o lock de leitura
	s.mu.RLock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Cleanup()
	}()

	time.Sleep(20 * time.Millisecond)
	if _, ok := s.cache.Peek("k"); !ok {
		s.mu.RUnlock()
		t.Fatalf("cleanup removed a key while a Get was in flight")
	}
	ent.lastSeen.Store(time.Now().UnixNano())
	s.mu.RUnlock()
	<-done

	if got := s.Get("k"); got != lim {
		t.Fatalf("expected touched key to keep its limiter")
	}
}
