package handlers

import (
	"context"
	"net/http"

	"github.com/umar/staychat/internal/auth"
	"github.com/umar/staychat/internal/chat"
	"github.com/umar/staychat/internal/messages"
	"github.com/umar/staychat/internal/models"
	"github.com/umar/staychat/internal/rooms"
)

// Profiles is the participant profile cache.
type Profiles interface {
	GetProfiles(ctx context.Context, ids []string) ([]models.User, error)
	SearchProfiles(ctx context.Context, query string, limit int) ([]models.User, error)
}

type Deps struct {
	Rooms    *rooms.Registry
	Messages *messages.Store
	Profiles Profiles
	Gateway  *chat.Gateway
	Broker   *chat.Broker

	// HistoryLimit is the page size when a history request names none.
	HistoryLimit int
}

func currentUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
	}
	return user, ok
}

// participants resolves ids to participant references with live presence.
// Ids without a cached profile come back with only ID and presence set.
func (d *Deps) participants(ctx context.Context, ids []string) (map[string]models.Participant, error) {
	profiles, err := d.Profiles.GetProfiles(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.User, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}
	out := make(map[string]models.Participant, len(ids))
	for _, id := range ids {
		p := byID[id]
		out[id] = models.Participant{
			ID:           id,
			Name:         p.Name,
			ProfilePhoto: p.ProfilePhoto,
			Role:         p.Role,
			Online:       d.Gateway.IsOnline(id),
		}
	}
	return out, nil
}

func (d *Deps) details(ctx context.Context, userID string, roomList []models.Room) ([]models.RoomWithDetails, error) {
	ids := make([]string, 0, len(roomList))
	for i := range roomList {
		ids = append(ids, roomList[i].Counterpart(userID))
	}
	people, err := d.participants(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.RoomWithDetails, 0, len(roomList))
	for i := range roomList {
		unread, err := d.Messages.CountUnread(ctx, roomList[i].ID, userID)
		if err != nil {
			return nil, err
		}
		out = append(out, models.RoomWithDetails{
			Room:        roomList[i],
			Counterpart: people[roomList[i].Counterpart(userID)],
			UnreadCount: unread,
		})
	}
	return out, nil
}
