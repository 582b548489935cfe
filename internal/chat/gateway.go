package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/umar/staychat/internal/models"
	"github.com/umar/staychat/internal/presence"
	"github.com/umar/staychat/internal/shard"
	"golang.org/x/time/rate"
)

var errConnClosed = errors.New("connection closed")

// Membership answers which rooms a user may join.
type Membership interface {
	Authorize(ctx context.Context, roomID, userID string) (*models.Room, error)
	ListForUser(ctx context.Context, userID string) ([]models.Room, error)
}

type GatewayConfig struct {
	EventRate      float64
	EventBurst     int
	RequestTimeout time.Duration
}

type subscribers struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*Conn
	closed map[string]struct{}
}

// Gateway owns every live socket and the room -> connections index. It is
// the only component that writes to sockets.
type Gateway struct {
	presence *presence.Tracker
	rooms    Membership
	cfg      GatewayConfig
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	connMu sync.RWMutex
	conns  map[string]*Conn

	subs [shard.Count]*subscribers

	// Held per user from the presence crossing until its broadcast is
	// pushed, so a user's online and offline events cannot overtake
	// each other.
	presenceLocks shard.Mutexes
}

func NewGateway(tracker *presence.Tracker, rooms Membership, cfg GatewayConfig, logger *slog.Logger) *Gateway {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		presence: tracker,
		rooms:    rooms,
		cfg:      cfg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[string]*Conn),
	}
	for i := range g.subs {
		g.subs[i] = &subscribers{
			rooms:  make(map[string]map[string]*Conn),
			closed: make(map[string]struct{}),
		}
	}
	return g
}

func (g *Gateway) subscribersFor(roomID string) *subscribers {
	return g.subs[shard.Index(roomID)]
}

// Register tracks a freshly authenticated connection. If it is the user's
// first, the user's rooms learn that they came online.
func (g *Gateway) Register(user models.User, ws *websocket.Conn) *Conn {
	c := newConn(user, ws, rate.NewLimiter(rate.Limit(g.cfg.EventRate), g.cfg.EventBurst))

	g.connMu.Lock()
	g.conns[c.ID] = c
	g.connMu.Unlock()

	g.logger.Info("client connected", "user_id", user.ID, "conn_id", c.ID)
	unlock := g.presenceLocks.Lock(user.ID)
	if g.presence.Increment(user.ID) {
		g.broadcastPresence(user.ID, true)
	}
	unlock()
	return c
}

// Unregister tears a connection down exactly once: it leaves every joined
// room, releases its presence reference and, on the user's last connection,
// tells their rooms they went offline.
func (g *Gateway) Unregister(c *Conn) {
	g.connMu.Lock()
	_, ok := g.conns[c.ID]
	delete(g.conns, c.ID)
	g.connMu.Unlock()
	if !ok {
		return
	}

	c.close()
	for _, roomID := range c.Rooms() {
		g.removeSubscriber(roomID, c)
	}

	g.logger.Info("client disconnected", "user_id", c.User.ID, "conn_id", c.ID)
	unlock := g.presenceLocks.Lock(c.User.ID)
	if g.presence.Decrement(c.User.ID) {
		g.broadcastPresence(c.User.ID, false)
	}
	unlock()
}

// Join subscribes c to the room's live channel. Joining twice is a no-op.
func (g *Gateway) Join(ctx context.Context, c *Conn, roomID string) (*models.Room, error) {
	room, err := g.rooms.Authorize(ctx, roomID, c.User.ID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errConnClosed
	}
	if _, ok := c.rooms[room.ID]; ok {
		return room, nil
	}
	s := g.subscribersFor(room.ID)
	s.mu.Lock()
	if _, gone := s.closed[room.ID]; gone {
		s.mu.Unlock()
		return nil, models.ErrNotFound
	}
	c.rooms[room.ID] = struct{}{}
	set, ok := s.rooms[room.ID]
	if !ok {
		set = make(map[string]*Conn)
		s.rooms[room.ID] = set
	}
	set[c.ID] = c
	s.mu.Unlock()
	return room, nil
}

// Leave unsubscribes c from the room. It reports whether c was joined.
func (g *Gateway) Leave(c *Conn, roomID string) bool {
	c.mu.Lock()
	_, ok := c.rooms[roomID]
	delete(c.rooms, roomID)
	c.mu.Unlock()
	if ok {
		g.removeSubscriber(roomID, c)
	}
	return ok
}

func (g *Gateway) removeSubscriber(roomID string, c *Conn) {
	s := g.subscribersFor(roomID)
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.rooms[roomID]
	delete(set, c.ID)
	if len(set) == 0 {
		delete(s.rooms, roomID)
	}
}

func (g *Gateway) snapshot(roomID string) []*Conn {
	s := g.subscribersFor(roomID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	conns := make([]*Conn, 0, len(s.rooms[roomID]))
	for _, c := range s.rooms[roomID] {
		conns = append(conns, c)
	}
	return conns
}

// PushToRoom delivers data to every connection joined to the room except
// exclude, and returns how many connections accepted it.
func (g *Gateway) PushToRoom(roomID string, data []byte, exclude *Conn) int {
	n := 0
	for _, c := range g.snapshot(roomID) {
		if c == exclude {
			continue
		}
		if c.enqueue(data) {
			n++
		}
	}
	return n
}

func (g *Gateway) SendTo(c *Conn, data []byte) bool {
	return c.enqueue(data)
}

// CloseRoom tells every joined connection the room is gone and drops the
// room's subscriber set. Later joins of the room are refused, including
// ones that were authorized before the room was deleted.
func (g *Gateway) CloseRoom(roomID string) {
	s := g.subscribersFor(roomID)
	s.mu.Lock()
	set := s.rooms[roomID]
	delete(s.rooms, roomID)
	s.closed[roomID] = struct{}{}
	s.mu.Unlock()

	data, err := NewWSMessage(TypeRoomDeleted, RoomPayload{RoomID: roomID})
	if err != nil {
		return
	}
	for _, c := range set {
		c.mu.Lock()
		delete(c.rooms, roomID)
		c.mu.Unlock()
		c.enqueue(data)
	}
}

func (g *Gateway) Subscribers(roomID string) int {
	return len(g.snapshot(roomID))
}

func (g *Gateway) IsOnline(userID string) bool {
	return g.presence.IsOnline(userID)
}

func (g *Gateway) ConnectionCount() int {
	g.connMu.RLock()
	defer g.connMu.RUnlock()
	return len(g.conns)
}

func (g *Gateway) broadcastPresence(userID string, online bool) {
	ctx, cancel := context.WithTimeout(g.ctx, g.cfg.RequestTimeout)
	defer cancel()

	rooms, err := g.rooms.ListForUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			g.logger.Error("failed to load rooms for presence", "error", err, "user_id", userID)
		}
		return
	}
	data, err := NewWSMessage(TypePresence, PresencePayload{UserID: userID, Online: online})
	if err != nil {
		return
	}
	for _, room := range rooms {
		g.PushToRoom(room.ID, data, nil)
	}
}

// Shutdown closes every connection. Read pumps then unregister them.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.cancel()

	g.connMu.RLock()
	for _, c := range g.conns {
		c.close()
	}
	g.connMu.RUnlock()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for g.ConnectionCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
