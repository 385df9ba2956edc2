package storage

import "testing"

func TestStripeForIsStableForTheSameKey(t *testing.T) {
	var s stripedLocks
	a := s.stripeFor("alpha")
	b := s.stripeFor("alpha")
	if a != b {
		t.Error("same key must map to the same stripe")
	}
}

func TestWithLockSerializesSameKey(t *testing.T) {
	var s stripedLocks
	const n = 50
	results := make(chan int, n)
	done := make(chan struct{})
	counter := 0
	for i := 0; i < n; i++ {
		go func() {
			_ = s.withLock("shared", func() error {
				counter++
				results <- counter
				return nil
			})
			done <- struct{}{}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}
	close(results)
	seenVals := map[int]bool{}
	for v := range results {
		if seenVals[v] {
			t.Fatalf("value %d observed twice: withLock did not serialize", v)
		}
		seenVals[v] = true
	}
	if len(seenVals) != n {
		t.Errorf("observed %d distinct counter values, want %d", len(seenVals), n)
	}
}
