// Package rooms owns two-party rooms: one live room per unordered pair of users.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/umar/staychat/internal/models"
	"golang.org/x/sync/singleflight"
)

// Store is the persistence the registry needs. CreateRoom must return
// models.ErrDuplicatePair when a live room already exists for the pair, and
// DeleteRoom must soft-delete the room's messages along with it.
type Store interface {
	CreateRoom(ctx context.Context, room *models.Room) error
	FindRoomByPair(ctx context.Context, pairKey string) (*models.Room, error)
	GetRoom(ctx context.Context, id string) (*models.Room, error)
	ListRoomsForUser(ctx context.Context, userID string) ([]models.Room, error)
	TouchRoom(ctx context.Context, id, summary string, at time.Time) error
	DeleteRoom(ctx context.Context, id string) error
}

const flightTimeout = 10 * time.Second

type Registry struct {
	store Store
	group singleflight.Group
}

func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// FindOrCreate returns the live room for the pair, creating it if needed.
// The bool reports whether this call created it. Concurrent callers in this
// process share one lookup, and a caller whose ctx ends stops waiting
// without failing the others. Callers in other processes that lose the
// insert race get the winner's room.
func (r *Registry) FindOrCreate(ctx context.Context, userA, userB string) (*models.Room, bool, error) {
	userA, userB = strings.TrimSpace(userA), strings.TrimSpace(userB)
	if userA == "" || userB == "" {
		return nil, false, fmt.Errorf("%w: both participants are required", models.ErrValidation)
	}
	if userA == userB {
		return nil, false, fmt.Errorf("%w: cannot start a chat with yourself", models.ErrValidation)
	}

	type result struct {
		room    *models.Room
		created bool
	}
	key := models.PairKey(userA, userB)
	// The flight outlives any single caller: one caller giving up must not
	// fail the others sharing it.
	ch := r.group.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flightTimeout)
		defer cancel()

		room, err := r.store.FindRoomByPair(ctx, key)
		if err == nil {
			return result{room: room}, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}

		room = &models.Room{ParticipantIDs: models.SortedPair(userA, userB)}
		err = r.store.CreateRoom(ctx, room)
		if errors.Is(err, models.ErrDuplicatePair) {
			room, err = r.store.FindRoomByPair(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("failed to load winning room: %w", err)
			}
			return result{room: room}, nil
		}
		if err != nil {
			return nil, err
		}
		return result{room: room, created: true}, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		v := res.Val.(result)
		room := *v.room
		return &room, v.created && !res.Shared, nil
	}
}

func (r *Registry) Get(ctx context.Context, roomID string) (*models.Room, error) {
	return r.store.GetRoom(ctx, roomID)
}

// Authorize loads the room and checks that userID participates in it.
func (r *Registry) Authorize(ctx context.Context, roomID, userID string) (*models.Room, error) {
	room, err := r.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(userID) {
		return nil, models.ErrForbidden
	}
	return room, nil
}

// ListForUser returns the user's live rooms, most recently active first.
func (r *Registry) ListForUser(ctx context.Context, userID string) ([]models.Room, error) {
	return r.store.ListRoomsForUser(ctx, userID)
}

// Touch records the latest accepted message on the room.
func (r *Registry) Touch(ctx context.Context, roomID, summary string, at time.Time) error {
	return r.store.TouchRoom(ctx, roomID, summary, at)
}

// Delete removes the room and its messages. Only a participant may delete.
func (r *Registry) Delete(ctx context.Context, roomID, requesterID string) (*models.Room, error) {
	room, err := r.Authorize(ctx, roomID, requesterID)
	if err != nil {
		return nil, err
	}
	if err := r.store.DeleteRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return room, nil
}
