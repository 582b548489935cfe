package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPairKey_Unordered(t *testing.T) {
	assert.Equal(t, PairKey("alice", "bob"), PairKey("bob", "alice"))
	assert.Equal(t, "alice:bob", PairKey("bob", "alice"))
	assert.Equal(t, [2]string{"alice", "bob"}, SortedPair("bob", "alice"))
}

func TestRoom_Counterpart(t *testing.T) {
	r := Room{ParticipantIDs: [2]string{"a", "b"}}

	assert.Equal(t, "b", r.Counterpart("a"))
	assert.Equal(t, "a", r.Counterpart("b"))
	assert.Equal(t, "", r.Counterpart("c"))
	assert.True(t, r.HasParticipant("a"))
	assert.False(t, r.HasParticipant(""))
}

func TestMessage_BeforeBreaksTiesBySeq(t *testing.T) {
	now := time.Now()
	first := &Message{CreatedAt: now, Seq: 1}
	second := &Message{CreatedAt: now, Seq: 2}
	later := &Message{CreatedAt: now.Add(time.Millisecond), Seq: 0}

	assert.True(t, first.Before(second))
	assert.False(t, second.Before(first))
	assert.True(t, second.Before(later))
}
