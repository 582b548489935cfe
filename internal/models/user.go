package models

import "time"

type Role string

const (
	RoleTraveler Role = "traveler"
	RoleHost     Role = "host"
)

func (r Role) Valid() bool {
	return r == RoleTraveler || r == RoleHost
}

// User is the verified identity handed over by the auth collaborator. It is
// also cached as a participant profile so rooms can render the counterpart.
type User struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	ProfilePhoto string    `json:"profile_photo" db:"profile_photo"`
	Role         Role      `json:"role" db:"role"`
	UpdatedAt    time.Time `json:"-" db:"updated_at"`
}

// Participant is the RoomParticipant reference shape returned with rooms.
type Participant struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ProfilePhoto string `json:"profile_photo"`
	Role         Role   `json:"role"`
	Online       bool   `json:"online"`
}
