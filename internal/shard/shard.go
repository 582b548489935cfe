// Package shard spreads string keys over a fixed number of buckets so that
// registries keyed by user or room id can lock per bucket instead of globally.
package shard

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const Count = 64

func Index(key string) int {
	return int(xxhash.Sum64String(key) % Count)
}

// Mutexes serialises work per key. Distinct keys that hash to different
// buckets proceed in parallel.
type Mutexes struct {
	mus [Count]sync.Mutex
}

func (m *Mutexes) Lock(key string) (unlock func()) {
	mu := &m.mus[Index(key)]
	mu.Lock()
	return mu.Unlock
}
