package chat

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/umar/staychat/internal/auth"
	"github.com/umar/staychat/internal/models"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 16 << 10
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Conn is one authenticated socket. A user may hold several at once.
type Conn struct {
	ID      string
	User    models.User
	ws      *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	mu     sync.Mutex
	rooms  map[string]struct{}
	closed bool
}

func newConn(user models.User, ws *websocket.Conn, limiter *rate.Limiter) *Conn {
	return &Conn{
		ID:      uuid.NewString(),
		User:    user,
		ws:      ws,
		send:    make(chan []byte, sendBuffer),
		limiter: limiter,
		rooms:   make(map[string]struct{}),
	}
}

// enqueue hands data to the write pump. A full buffer means the peer is not
// keeping up; the connection is closed and torn down by its read pump.
func (c *Conn) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		slog.Warn("closing slow connection", "conn_id", c.ID, "user_id", c.User.ID)
		c.closed = true
		close(c.send)
		return false
	}
}

func (c *Conn) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.send)
	return true
}

// Rooms returns the ids of the rooms this connection has joined.
func (c *Conn) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func ServeWS(gw *Gateway, broker *Broker, verifier auth.Verifier, profiles auth.ProfileSink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r)
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		user, err := verifier.Verify(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "error", err)
			return
		}

		if profiles != nil {
			if err := profiles.UpsertProfile(r.Context(), user); err != nil {
				slog.Warn("failed to cache profile", "error", err, "user_id", user.ID)
			}
		}

		client := gw.Register(user, conn)
		go client.writePump()
		go client.readPump(gw, broker)
	}
}

func (c *Conn) readPump(gw *Gateway, broker *Broker) {
	defer func() {
		gw.Unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("ws read error", "error", err, "user_id", c.User.ID, "conn_id", c.ID)
			}
			break
		}

		if !c.limiter.Allow() {
			sendError(c, CodeRateLimited, "too many events", "", "")
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			sendError(c, CodeInvalidPayload, "malformed event", "", "")
			continue
		}

		broker.Dispatch(c, msg)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func sendError(c *Conn, code, detail, roomID, correlationToken string) {
	data, err := NewWSMessage(TypeError, ErrorPayload{
		Code:             code,
		Detail:           detail,
		RoomID:           roomID,
		CorrelationToken: correlationToken,
	})
	if err != nil {
		return
	}
	c.enqueue(data)
}
