package redisc

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/umar/staychat/internal/presence"
)

const (
	presenceTTL    = 120 * time.Second
	onlineUsersKey = "online_users"
)

func presenceKey(userID string) string {
	return "presence:" + userID
}

func SetOnline(ctx context.Context, client *redis.Client, userID string) error {
	pipe := client.Pipeline()
	pipe.SAdd(ctx, onlineUsersKey, userID)
	pipe.Set(ctx, presenceKey(userID), "online", presenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func SetOffline(ctx context.Context, client *redis.Client, userID string) error {
	pipe := client.Pipeline()
	pipe.SRem(ctx, onlineUsersKey, userID)
	pipe.Del(ctx, presenceKey(userID))
	_, err := pipe.Exec(ctx)
	return err
}

func GetOnlineUsers(ctx context.Context, client *redis.Client) ([]string, error) {
	return client.SMembers(ctx, onlineUsersKey).Result()
}

func RefreshPresence(ctx context.Context, client *redis.Client, userID string) error {
	return client.Expire(ctx, presenceKey(userID), presenceTTL).Err()
}

// PresenceMirror copies tracker transitions into Redis so other services can
// read who is online. The tracker stays the source of truth.
type PresenceMirror struct {
	client  *redis.Client
	tracker *presence.Tracker
	refresh time.Duration
	logger  *slog.Logger
}

func NewPresenceMirror(client *redis.Client, tracker *presence.Tracker, logger *slog.Logger) *PresenceMirror {
	return &PresenceMirror{
		client:  client,
		tracker: tracker,
		refresh: presenceTTL / 2,
		logger:  logger,
	}
}

// Reset clears entries left by a previous process. Presence is rebuilt from
// zero on every start.
func (m *PresenceMirror) Reset(ctx context.Context) error {
	stale, err := GetOnlineUsers(ctx, m.client)
	if err != nil {
		return err
	}
	for _, id := range stale {
		if err := SetOffline(ctx, m.client, id); err != nil {
			return err
		}
	}
	return nil
}

// Run mirrors transitions until ctx is done.
func (m *PresenceMirror) Run(ctx context.Context) {
	events, cancel := m.tracker.Subscribe(1024)
	defer cancel()

	// Users that connected before the subscription existed.
	for _, id := range m.tracker.Online() {
		m.apply(ctx, presence.Transition{UserID: id, Online: true})
	}

	ticker := time.NewTicker(m.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case tr, ok := <-events:
			if !ok {
				return
			}
			m.apply(ctx, tr)
		case <-ticker.C:
			if err := m.resync(ctx); err != nil && ctx.Err() == nil {
				m.logger.Warn("failed to resync presence", "error", err)
			}
		}
	}
}

// resync makes the online set match the tracker and extends the TTL of
// every online user's key. It repairs transitions the mirror missed.
func (m *PresenceMirror) resync(ctx context.Context) error {
	stored, err := GetOnlineUsers(ctx, m.client)
	if err != nil {
		return err
	}
	listed := make(map[string]bool, len(stored))
	for _, id := range stored {
		listed[id] = true
	}

	for _, id := range m.tracker.Online() {
		if listed[id] {
			delete(listed, id)
			err = RefreshPresence(ctx, m.client, id)
		} else {
			err = SetOnline(ctx, m.client, id)
		}
		if err != nil {
			return err
		}
	}
	for id := range listed {
		if m.tracker.IsOnline(id) {
			continue
		}
		if err := SetOffline(ctx, m.client, id); err != nil {
			return err
		}
	}
	return nil
}

func (m *PresenceMirror) apply(ctx context.Context, tr presence.Transition) {
	var err error
	if tr.Online {
		err = SetOnline(ctx, m.client, tr.UserID)
	} else {
		err = SetOffline(ctx, m.client, tr.UserID)
	}
	if err != nil {
		m.logger.Warn("failed to mirror presence", "error", err, "user_id", tr.UserID, "online", tr.Online)
	}
}
