package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/umar/staychat/internal/messages"
	"github.com/umar/staychat/internal/models"
	"github.com/umar/staychat/internal/shard"
)

type RoomAuthority interface {
	Authorize(ctx context.Context, roomID, userID string) (*models.Room, error)
	Touch(ctx context.Context, roomID, summary string, at time.Time) error
}

type MessageAppender interface {
	Append(ctx context.Context, in messages.AppendInput) (*models.Message, error)
	MarkRead(ctx context.Context, roomID, readerID string) (int64, time.Time, error)
}

// Broker turns inbound intents into persisted messages and fan-out. It never
// touches sockets or subscriber sets directly; all of that goes through the
// Gateway.
type Broker struct {
	gateway  *Gateway
	rooms    RoomAuthority
	messages MessageAppender
	logger   *slog.Logger

	// One send per room at a time so every subscriber sees store order.
	roomLocks shard.Mutexes
}

func NewBroker(gw *Gateway, rooms RoomAuthority, msgs MessageAppender, logger *slog.Logger) *Broker {
	return &Broker{
		gateway:  gw,
		rooms:    rooms,
		messages: msgs,
		logger:   logger,
	}
}

// Dispatch handles one inbound event from c. Events from one connection are
// handled in arrival order; different connections run in parallel.
func (b *Broker) Dispatch(c *Conn, msg WSMessage) {
	ctx, cancel := context.WithTimeout(b.gateway.ctx, b.gateway.cfg.RequestTimeout)
	defer cancel()

	switch msg.Type {
	case TypeJoinRoom:
		var p RoomPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			sendError(c, CodeInvalidPayload, "invalid join-room payload", "", "")
			return
		}
		b.JoinRoom(ctx, c, p.RoomID)
	case TypeLeaveRoom:
		var p RoomPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			sendError(c, CodeInvalidPayload, "invalid leave-room payload", "", "")
			return
		}
		b.LeaveRoom(c, p.RoomID)
	case TypeSendMessage:
		var p SendMessagePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			sendError(c, CodeInvalidPayload, "invalid send-message payload", "", "")
			return
		}
		b.SendMessage(ctx, c, p)
	case TypeMarkRead:
		var p RoomPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			sendError(c, CodeInvalidPayload, "invalid mark-read payload", "", "")
			return
		}
		if _, err := b.MarkRead(ctx, c.User, p.RoomID); err != nil {
			sendError(c, errorCode(err), "could not mark room read", p.RoomID, "")
		}
	case TypePing:
		if data, err := NewWSMessage(TypePong, nil); err == nil {
			b.gateway.SendTo(c, data)
		}
	default:
		sendError(c, CodeInvalidPayload, "unknown event type "+msg.Type, "", "")
	}
}

func (b *Broker) JoinRoom(ctx context.Context, c *Conn, roomID string) {
	room, err := b.gateway.Join(ctx, c, roomID)
	if err != nil {
		if errors.Is(err, errConnClosed) {
			return
		}
		if errors.Is(err, models.ErrForbidden) {
			b.logger.Warn("rejected join from non-participant", "user_id", c.User.ID, "room_id", roomID, "conn_id", c.ID)
		}
		sendError(c, errorCode(err), "cannot join room", roomID, "")
		return
	}

	if data, err := NewWSMessage(TypeRoomJoined, RoomPayload{RoomID: room.ID}); err == nil {
		b.gateway.SendTo(c, data)
	}
	other := room.Counterpart(c.User.ID)
	if data, err := NewWSMessage(TypePresence, PresencePayload{UserID: other, Online: b.gateway.IsOnline(other)}); err == nil {
		b.gateway.SendTo(c, data)
	}
}

func (b *Broker) LeaveRoom(c *Conn, roomID string) {
	b.gateway.Leave(c, roomID)
	if data, err := NewWSMessage(TypeRoomLeft, RoomPayload{RoomID: roomID}); err == nil {
		b.gateway.SendTo(c, data)
	}
}

// SendMessage validates membership, persists, acks the originating
// connection with the canonical message and delivers it to every other
// connection joined to the room. Failures go back to the originator only.
func (b *Broker) SendMessage(ctx context.Context, c *Conn, p SendMessagePayload) {
	log := b.logger.With("user_id", c.User.ID, "room_id", p.RoomID, "conn_id", c.ID,
		"correlation_token", p.CorrelationToken)

	if p.RoomID == "" {
		sendError(c, CodeValidation, "room_id is required", "", p.CorrelationToken)
		return
	}

	room, err := b.rooms.Authorize(ctx, p.RoomID, c.User.ID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrForbidden):
			log.Warn("rejected send from non-participant")
		case !errors.Is(err, models.ErrNotFound):
			log.Error("failed to authorize send", "error", err)
		}
		sendError(c, errorCode(err), "message not accepted", p.RoomID, p.CorrelationToken)
		return
	}

	kind := p.Kind
	if kind == "" {
		kind = models.KindText
	}

	unlock := b.roomLocks.Lock(room.ID)
	defer unlock()

	msg, err := b.messages.Append(ctx, messages.AppendInput{
		RoomID:     room.ID,
		SenderID:   c.User.ID,
		SenderRole: c.User.Role,
		Content:    p.Content,
		Kind:       kind,
		MediaRef:   p.MediaRef,
	})
	if err != nil {
		detail := err.Error()
		if code := errorCode(err); code == CodePersistenceFailure {
			log.Error("failed to persist message", "error", err)
			detail = "message could not be saved"
		}
		sendError(c, errorCode(err), detail, room.ID, p.CorrelationToken)
		return
	}

	ack, err := NewWSMessage(TypeAck, AckPayload{CorrelationToken: p.CorrelationToken, Message: msg})
	if err != nil {
		log.Error("failed to encode ack", "error", err)
		return
	}
	b.gateway.SendTo(c, ack)

	deliver, err := NewWSMessage(TypeDeliver, DeliverPayload{Message: msg})
	if err != nil {
		log.Error("failed to encode deliver", "error", err)
		return
	}
	delivered := b.gateway.PushToRoom(room.ID, deliver, c)

	if err := b.rooms.Touch(ctx, room.ID, messages.Summary(msg), msg.CreatedAt); err != nil {
		log.Warn("failed to update room summary", "error", err)
	}
	log.Debug("message accepted", "message_id", msg.ID, "delivered", delivered)
}

// MarkRead marks the room read for user and tells the room's connections.
func (b *Broker) MarkRead(ctx context.Context, user models.User, roomID string) (int64, error) {
	room, err := b.rooms.Authorize(ctx, roomID, user.ID)
	if err != nil {
		return 0, err
	}
	n, at, err := b.messages.MarkRead(ctx, room.ID, user.ID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		data, err := NewWSMessage(TypeRead, ReadPayload{RoomID: room.ID, ReaderID: user.ID, ReadAt: at, Count: n})
		if err == nil {
			b.gateway.PushToRoom(room.ID, data, nil)
		}
	}
	return n, nil
}
