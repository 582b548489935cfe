package shard

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndex_StableAndInRange(t *testing.T) {
	for _, key := range []string{"", "room-1", "user-42", "a:b"} {
		i := Index(key)
		assert.GreaterOrEqual(t, i, 0)
		assert.Less(t, i, Count)
		assert.Equal(t, i, Index(key))
	}
}

func TestMutexes_SerialisesSameKey(t *testing.T) {
	var m Mutexes
	var wg sync.WaitGroup
	counter := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("room-1")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}
