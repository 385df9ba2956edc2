package storage

import (
	"hash/fnv"
	"sync"
)

// stripeCount is the fixed size of the lock array backing StorageEngine's
// creation locks: fixed cardinality, never grown, never allocated per key.
const stripeCount = 64

// stripedLocks is a fixed array of mutexes indexed by hash(key) mod N,
// bounding lock cardinality regardless of how many distinct keys are used.
type stripedLocks struct {
	stripes [stripeCount]sync.Mutex
}

func (s *stripedLocks) stripeFor(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.stripes[h.Sum32()%stripeCount]
}

// withLock runs fn while holding the stripe for key.
func (s *stripedLocks) withLock(key string, fn func() error) error {
	mu := s.stripeFor(key)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}
