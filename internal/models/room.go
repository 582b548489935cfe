package models

import (
	"sort"
	"strings"
	"time"
)

type Room struct {
	ID                 string     `json:"id"`
	ParticipantIDs     [2]string  `json:"participant_ids"`
	LastMessageSummary string     `json:"last_message_summary"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	DeletedAt          *time.Time `json:"-"`
}

// PairKey normalises an unordered pair of user ids. Both orders of the same
// pair produce the same key.
func PairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}

// SortedPair returns the pair in the order used for storage.
func SortedPair(a, b string) [2]string {
	if b < a {
		return [2]string{b, a}
	}
	return [2]string{a, b}
}

func (r *Room) PairKey() string {
	return PairKey(r.ParticipantIDs[0], r.ParticipantIDs[1])
}

func (r *Room) HasParticipant(userID string) bool {
	return userID != "" && (r.ParticipantIDs[0] == userID || r.ParticipantIDs[1] == userID)
}

// Counterpart returns the other participant, or "" when userID is not in the room.
func (r *Room) Counterpart(userID string) string {
	switch userID {
	case r.ParticipantIDs[0]:
		return r.ParticipantIDs[1]
	case r.ParticipantIDs[1]:
		return r.ParticipantIDs[0]
	}
	return ""
}

type RoomWithDetails struct {
	Room
	Counterpart Participant `json:"counterpart"`
	UnreadCount int         `json:"unread_count"`
}
