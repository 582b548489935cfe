package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/umar/staychat/internal/models"
)

// Memory is a process-local store with the same semantics as Postgres,
// including the live-pair uniqueness rule. It backs STORE_DRIVER=memory and tests.
type Memory struct {
	mu       sync.Mutex
	now      func() time.Time
	seq      int64
	profiles map[string]models.User
	rooms    map[string]*models.Room
	livePair map[string]string
	messages map[string][]*models.Message
}

func NewMemory() *Memory {
	return &Memory{
		now:      time.Now,
		profiles: make(map[string]models.User),
		rooms:    make(map[string]*models.Room),
		livePair: make(map[string]string),
		messages: make(map[string][]*models.Message),
	}
}

// --- Profiles ---

func (m *Memory) UpsertProfile(_ context.Context, u models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.UpdatedAt = m.now()
	m.profiles[u.ID] = u
	return nil
}

func (m *Memory) GetProfiles(_ context.Context, ids []string) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := []models.User{}
	for _, id := range ids {
		if u, ok := m.profiles[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

func (m *Memory) SearchProfiles(_ context.Context, query string, limit int) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := strings.ToLower(query)
	users := []models.User{}
	for _, u := range m.profiles {
		if strings.Contains(strings.ToLower(u.Name), q) {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	if len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

// --- Rooms ---

func (m *Memory) CreateRoom(_ context.Context, room *models.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pair := models.SortedPair(room.ParticipantIDs[0], room.ParticipantIDs[1])
	key := models.PairKey(pair[0], pair[1])
	if _, ok := m.livePair[key]; ok {
		return models.ErrDuplicatePair
	}
	now := m.now()
	stored := &models.Room{
		ID:             uuid.NewString(),
		ParticipantIDs: pair,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.rooms[stored.ID] = stored
	m.livePair[key] = stored.ID
	*room = *stored
	return nil
}

func (m *Memory) FindRoomByPair(_ context.Context, pairKey string) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.livePair[pairKey]
	if !ok {
		return nil, models.ErrNotFound
	}
	r := *m.rooms[id]
	return &r, nil
}

func (m *Memory) GetRoom(_ context.Context, id string) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.liveRoom(id)
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) ListRoomsForUser(_ context.Context, userID string) ([]models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rooms := []models.Room{}
	for _, r := range m.rooms {
		if r.DeletedAt == nil && r.HasParticipant(userID) {
			rooms = append(rooms, *r)
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].UpdatedAt.Equal(rooms[j].UpdatedAt) {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
	})
	return rooms, nil
}

func (m *Memory) TouchRoom(_ context.Context, id, summary string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.liveRoom(id)
	if !ok {
		return models.ErrNotFound
	}
	r.LastMessageSummary = summary
	if at.After(r.UpdatedAt) {
		r.UpdatedAt = at
	}
	return nil
}

func (m *Memory) DeleteRoom(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.liveRoom(id)
	if !ok {
		return models.ErrNotFound
	}
	now := m.now()
	r.DeletedAt = &now
	delete(m.livePair, r.PairKey())
	m.softDeleteLocked(id, now)
	return nil
}

func (m *Memory) liveRoom(id string) (*models.Room, bool) {
	r, ok := m.rooms[id]
	if !ok || r.DeletedAt != nil {
		return nil, false
	}
	return r, true
}

// --- Messages ---

func (m *Memory) InsertMessage(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.liveRoom(msg.RoomID); !ok {
		return models.ErrNotFound
	}
	m.seq++
	stored := *msg
	stored.ID = uuid.NewString()
	stored.Seq = m.seq
	stored.CreatedAt = m.now()
	stored.Read, stored.ReadAt = false, nil
	stored.Deleted, stored.DeletedAt = false, nil
	m.messages[msg.RoomID] = append(m.messages[msg.RoomID], &stored)
	*msg = stored
	return nil
}

func (m *Memory) ListMessages(_ context.Context, roomID, before string, limit int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.messages[roomID]
	var cursor *models.Message
	if before != "" {
		for _, msg := range all {
			if msg.ID == before {
				cursor = msg
				break
			}
		}
		if cursor == nil {
			return []models.Message{}, nil
		}
	}

	out := []models.Message{}
	for _, msg := range all {
		if msg.Deleted {
			continue
		}
		if cursor != nil && !msg.Before(cursor) {
			continue
		}
		out = append(out, *msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[j].Before(&out[i]) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) MarkRead(_ context.Context, roomID, readerID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, msg := range m.messages[roomID] {
		if msg.SenderID == readerID || msg.Read || msg.Deleted {
			continue
		}
		readAt := at
		msg.Read, msg.ReadAt = true, &readAt
		n++
	}
	return n, nil
}

func (m *Memory) CountUnread(_ context.Context, roomID, readerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.messages[roomID] {
		if msg.SenderID != readerID && !msg.Read && !msg.Deleted {
			n++
		}
	}
	return n, nil
}

func (m *Memory) SoftDeleteMessages(_ context.Context, roomID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.softDeleteLocked(roomID, at), nil
}

func (m *Memory) softDeleteLocked(roomID string, at time.Time) int64 {
	var n int64
	for _, msg := range m.messages[roomID] {
		if msg.Deleted {
			continue
		}
		deletedAt := at
		msg.Deleted, msg.DeletedAt = true, &deletedAt
		n++
	}
	return n
}
