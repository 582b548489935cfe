package models

import "time"

type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindFile  Kind = "file"
)

func (k Kind) Valid() bool {
	switch k {
	case KindText, KindImage, KindFile:
		return true
	}
	return false
}

// Message is the canonical, server-persisted message. Seq is the insertion
// sequence used to break created_at ties.
type Message struct {
	ID         string     `json:"id" db:"id"`
	RoomID     string     `json:"room_id" db:"room_id"`
	SenderID   string     `json:"sender_id" db:"sender_id"`
	SenderRole Role       `json:"sender_role" db:"sender_role"`
	Content    string     `json:"content" db:"content"`
	Kind       Kind       `json:"kind" db:"kind"`
	MediaRef   *string    `json:"media_ref,omitempty" db:"media_ref"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	Seq        int64      `json:"seq" db:"seq"`
	Read       bool       `json:"read" db:"read"`
	ReadAt     *time.Time `json:"read_at,omitempty" db:"read_at"`
	Deleted    bool       `json:"deleted" db:"deleted"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Before reports whether m sorts before other in room order.
func (m *Message) Before(other *Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.Seq < other.Seq
	}
	return m.CreatedAt.Before(other.CreatedAt)
}
