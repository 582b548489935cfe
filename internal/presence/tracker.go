// Package presence keeps a reference count of live connections per user.
// A user is online while the count is above zero; only 0->1 and 1->0
// crossings produce transitions.
package presence

import (
	"sync"

	"github.com/umar/staychat/internal/shard"
)

type Transition struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

type bucket struct {
	mu     sync.Mutex
	counts map[string]int
}

type Tracker struct {
	buckets [shard.Count]*bucket

	subMu sync.RWMutex
	subs  map[int]chan Transition
	next  int
}

func NewTracker() *Tracker {
	t := &Tracker{subs: make(map[int]chan Transition)}
	for i := range t.buckets {
		t.buckets[i] = &bucket{counts: make(map[string]int)}
	}
	return t
}

// Increment records a new authenticated connection for userID and reports
// whether the user just came online.
func (t *Tracker) Increment(userID string) bool {
	b := t.buckets[shard.Index(userID)]
	b.mu.Lock()
	defer b.mu.Unlock()

	b.counts[userID]++
	if b.counts[userID] != 1 {
		return false
	}
	t.publish(Transition{UserID: userID, Online: true})
	return true
}

// Decrement records a connection teardown and reports whether the user just
// went offline. Decrementing a user with no connections is a no-op.
func (t *Tracker) Decrement(userID string) bool {
	b := t.buckets[shard.Index(userID)]
	b.mu.Lock()
	defer b.mu.Unlock()

	n, ok := b.counts[userID]
	if !ok {
		return false
	}
	if n > 1 {
		b.counts[userID] = n - 1
		return false
	}
	delete(b.counts, userID)
	t.publish(Transition{UserID: userID, Online: false})
	return true
}

func (t *Tracker) IsOnline(userID string) bool {
	return t.Count(userID) > 0
}

func (t *Tracker) Count(userID string) int {
	b := t.buckets[shard.Index(userID)]
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[userID]
}

// Online returns a snapshot of online user ids. Buckets are read one at a
// time, so the result is only eventually consistent.
func (t *Tracker) Online() []string {
	var ids []string
	for _, b := range t.buckets {
		b.mu.Lock()
		for id := range b.counts {
			ids = append(ids, id)
		}
		b.mu.Unlock()
	}
	return ids
}

// Subscribe returns a channel of transitions in the order they happened per
// user. A subscriber that falls more than buffer events behind loses events.
// Call cancel to stop receiving; the channel is closed afterwards.
func (t *Tracker) Subscribe(buffer int) (events <-chan Transition, cancel func()) {
	ch := make(chan Transition, buffer)

	t.subMu.Lock()
	id := t.next
	t.next++
	t.subs[id] = ch
	t.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.subMu.Lock()
			delete(t.subs, id)
			t.subMu.Unlock()
			close(ch)
		})
	}
}

// publish is called with the user's bucket lock held.
func (t *Tracker) publish(tr Transition) {
	t.subMu.RLock()
	defer t.subMu.RUnlock()
	for _, ch := range t.subs {
		select {
		case ch <- tr:
		default:
		}
	}
}
