package presence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(ch <-chan Transition) []Transition {
	var out []Transition
	for {
		select {
		case tr := <-ch:
			out = append(out, tr)
		default:
			return out
		}
	}
}

func TestTracker_MultipleConnections(t *testing.T) {
	tracker := NewTracker()
	events, cancel := tracker.Subscribe(16)
	defer cancel()

	assert.True(t, tracker.Increment("u"))
	assert.False(t, tracker.Increment("u"))
	assert.False(t, tracker.Increment("u"))
	assert.Equal(t, 3, tracker.Count("u"))

	assert.False(t, tracker.Decrement("u"))
	assert.False(t, tracker.Decrement("u"))
	assert.True(t, tracker.IsOnline("u"), "user must stay online while one connection remains")

	assert.True(t, tracker.Decrement("u"))
	assert.False(t, tracker.IsOnline("u"))

	got := drain(events)
	require.Len(t, got, 2)
	assert.Equal(t, Transition{UserID: "u", Online: true}, got[0])
	assert.Equal(t, Transition{UserID: "u", Online: false}, got[1])
}

func TestTracker_DecrementUnknownUser(t *testing.T) {
	tracker := NewTracker()

	assert.False(t, tracker.Decrement("ghost"))
	assert.Equal(t, 0, tracker.Count("ghost"))
}

func TestTracker_ConcurrentUsers(t *testing.T) {
	tracker := NewTracker()
	events, cancel := tracker.Subscribe(1024)
	defer cancel()

	var wg sync.WaitGroup
	users := []string{"a", "b", "c", "d"}
	for _, u := range users {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(u string) {
				defer wg.Done()
				tracker.Increment(u)
			}(u)
		}
	}
	wg.Wait()

	assert.ElementsMatch(t, users, tracker.Online())

	for _, u := range users {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(u string) {
				defer wg.Done()
				tracker.Decrement(u)
			}(u)
		}
	}
	wg.Wait()

	assert.Empty(t, tracker.Online())

	perUser := map[string]int{}
	for _, tr := range drain(events) {
		perUser[tr.UserID]++
	}
	for _, u := range users {
		assert.Equal(t, 2, perUser[u], "user %s should have exactly one online and one offline transition", u)
	}
}

func TestTracker_CancelClosesChannel(t *testing.T) {
	tracker := NewTracker()
	events, cancel := tracker.Subscribe(1)
	cancel()
	cancel()

	_, ok := <-events
	assert.False(t, ok)
	assert.True(t, tracker.Increment("u"))
}
