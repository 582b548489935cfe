package rooms

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/umar/staychat/internal/database"
	"github.com/umar/staychat/internal/models"
)

func TestRegistry_FindOrCreate(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(database.NewMemory())

	tests := []struct {
		name      string
		a, b      string
		expectErr error
	}{
		{name: "valid pair", a: "traveler-1", b: "host-1"},
		{name: "same user", a: "u", b: "u", expectErr: models.ErrValidation},
		{name: "missing participant", a: "u", b: " ", expectErr: models.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room, _, err := reg.FindOrCreate(ctx, tt.a, tt.b)
			if tt.expectErr != nil {
				assert.ErrorIs(t, err, tt.expectErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, room.ID)
			assert.True(t, room.HasParticipant(tt.a))
			assert.True(t, room.HasParticipant(tt.b))
		})
	}
}

func TestRegistry_FindOrCreateIsIdempotentAcrossOrder(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(database.NewMemory())

	first, created, err := reg.FindOrCreate(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := reg.FindOrCreate(ctx, "b", "a")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

func TestRegistry_FindOrCreateConcurrent(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(database.NewMemory())

	const callers = 50
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			room, _, err := reg.FindOrCreate(ctx, a, b)
			if assert.NoError(t, err) {
				ids[i] = room.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	rooms, err := reg.ListForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
}

// racingStore simulates another process inserting the pair between our
// lookup and our insert.
type racingStore struct {
	*database.Memory
	raced bool
}

func (s *racingStore) CreateRoom(ctx context.Context, room *models.Room) error {
	if !s.raced {
		s.raced = true
		winner := &models.Room{ParticipantIDs: room.ParticipantIDs}
		if err := s.Memory.CreateRoom(ctx, winner); err != nil {
			return err
		}
	}
	return s.Memory.CreateRoom(ctx, room)
}

func TestRegistry_FindOrCreateLosingRaceReturnsWinner(t *testing.T) {
	ctx := context.Background()
	store := &racingStore{Memory: database.NewMemory()}
	reg := NewRegistry(store)

	room, created, err := reg.FindOrCreate(ctx, "a", "b")
	require.NoError(t, err)
	assert.False(t, created)

	winner, err := store.FindRoomByPair(ctx, models.PairKey("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, winner.ID, room.ID)
}

func TestRegistry_Delete(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(database.NewMemory())
	room, _, err := reg.FindOrCreate(ctx, "a", "b")
	require.NoError(t, err)

	_, err = reg.Delete(ctx, room.ID, "intruder")
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = reg.Delete(ctx, "missing", "a")
	assert.ErrorIs(t, err, models.ErrNotFound)

	deleted, err := reg.Delete(ctx, room.ID, "b")
	require.NoError(t, err)
	assert.Equal(t, room.ID, deleted.ID)

	_, err = reg.Get(ctx, room.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	for _, user := range []string{"a", "b"} {
		rooms, err := reg.ListForUser(ctx, user)
		require.NoError(t, err)
		assert.Empty(t, rooms)
	}

	again, created, err := reg.FindOrCreate(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, room.ID, again.ID)
}

func TestRegistry_ListForUserOrdersByActivity(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(database.NewMemory())

	older, _, err := reg.FindOrCreate(ctx, "me", "x")
	require.NoError(t, err)
	newer, _, err := reg.FindOrCreate(ctx, "me", "y")
	require.NoError(t, err)
	_, _, err = reg.FindOrCreate(ctx, "x", "y")
	require.NoError(t, err)

	require.NoError(t, reg.Touch(ctx, older.ID, "latest", time.Now().Add(time.Hour)))

	rooms, err := reg.ListForUser(ctx, "me")
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, older.ID, rooms[0].ID)
	assert.Equal(t, "latest", rooms[0].LastMessageSummary)
	assert.Equal(t, newer.ID, rooms[1].ID)
}

// slowLookupStore answers pair lookups after a delay, honouring ctx.
type slowLookupStore struct {
	*database.Memory
	delay   time.Duration
	started chan struct{}
}

func (s *slowLookupStore) FindRoomByPair(ctx context.Context, pairKey string) (*models.Room, error) {
	select {
	case s.started <- struct{}{}:
	default:
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.delay):
	}
	return s.Memory.FindRoomByPair(ctx, pairKey)
}

func TestRegistry_FindOrCreateSurvivesCancelledSharer(t *testing.T) {
	store := &slowLookupStore{Memory: database.NewMemory(), delay: 100 * time.Millisecond, started: make(chan struct{}, 1)}
	reg := NewRegistry(store)

	aliceCtx, cancelAlice := context.WithCancel(context.Background())
	aliceErr := make(chan error, 1)
	go func() {
		_, _, err := reg.FindOrCreate(aliceCtx, "alice", "bob")
		aliceErr <- err
	}()
	<-store.started

	type outcome struct {
		room *models.Room
		err  error
	}
	bobDone := make(chan outcome, 1)
	go func() {
		room, _, err := reg.FindOrCreate(context.Background(), "bob", "alice")
		bobDone <- outcome{room, err}
	}()

	time.Sleep(20 * time.Millisecond)
	cancelAlice()
	assert.ErrorIs(t, <-aliceErr, context.Canceled)

	got := <-bobDone
	require.NoError(t, got.err)
	require.NotNil(t, got.room)

	stored, err := store.Memory.FindRoomByPair(context.Background(), models.PairKey("alice", "bob"))
	require.NoError(t, err)
	assert.Equal(t, stored.ID, got.room.ID)
}
