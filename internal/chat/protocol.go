package chat

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/umar/staychat/internal/models"
)

// Inbound (client -> server).
const (
	TypeJoinRoom    = "join-room"
	TypeLeaveRoom   = "leave-room"
	TypeSendMessage = "send-message"
	TypeMarkRead    = "mark-read"
	TypePing        = "ping"
)

// Outbound (server -> client).
const (
	TypePresence    = "presence"
	TypeAck         = "ack"
	TypeDeliver     = "deliver"
	TypeError       = "error"
	TypeRoomJoined  = "room-joined"
	TypeRoomLeft    = "room-left"
	TypeRoomDeleted = "room-deleted"
	TypeRead        = "read"
	TypePong        = "pong"
)

const (
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeValidation         = "VALIDATION_ERROR"
	CodePersistenceFailure = "PERSISTENCE_FAILURE"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInvalidPayload     = "INVALID_PAYLOAD"
)

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type RoomPayload struct {
	RoomID string `json:"room_id"`
}

type SendMessagePayload struct {
	RoomID           string      `json:"room_id"`
	Content          string      `json:"content"`
	Kind             models.Kind `json:"kind"`
	MediaRef         *string     `json:"media_ref,omitempty"`
	CorrelationToken string      `json:"correlation_token"`
}

// AckPayload goes to the originating connection only; the client swaps its
// optimistic placeholder for Message by CorrelationToken.
type AckPayload struct {
	CorrelationToken string          `json:"correlation_token"`
	Message          *models.Message `json:"message"`
}

type DeliverPayload struct {
	Message *models.Message `json:"message"`
}

type PresencePayload struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

type ReadPayload struct {
	RoomID   string    `json:"room_id"`
	ReaderID string    `json:"reader_id"`
	ReadAt   time.Time `json:"read_at"`
	Count    int64     `json:"count"`
}

type ErrorPayload struct {
	Code             string `json:"code"`
	Detail           string `json:"detail"`
	RoomID           string `json:"room_id,omitempty"`
	CorrelationToken string `json:"correlation_token,omitempty"`
}

func NewWSMessage(msgType string, payload interface{}) ([]byte, error) {
	var p json.RawMessage
	if payload != nil {
		var err error
		p, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	msg := WSMessage{Type: msgType, Payload: p}
	return json.Marshal(msg)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, models.ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, models.ErrForbidden):
		return CodeForbidden
	case errors.Is(err, models.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, models.ErrValidation):
		return CodeValidation
	}
	return CodePersistenceFailure
}
