// Package messages owns room-scoped messages: append-only, with read marks
// and soft deletion as the only mutations.
package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/umar/staychat/internal/models"
)

const (
	DefaultLimit     = 100
	MaxLimit         = 100
	MaxContentLength = 4000
	summaryLength    = 100
)

type Repository interface {
	InsertMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, roomID, before string, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, roomID, readerID string, at time.Time) (int64, error)
	CountUnread(ctx context.Context, roomID, readerID string) (int, error)
	SoftDeleteMessages(ctx context.Context, roomID string, at time.Time) (int64, error)
}

type Store struct {
	repo Repository
	now  func() time.Time
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo, now: time.Now}
}

type AppendInput struct {
	RoomID     string
	SenderID   string
	SenderRole models.Role
	Content    string
	Kind       models.Kind
	MediaRef   *string
}

func (in AppendInput) validate() error {
	if in.RoomID == "" {
		return fmt.Errorf("%w: room_id is required", models.ErrValidation)
	}
	if !in.Kind.Valid() {
		return fmt.Errorf("%w: invalid kind %q", models.ErrValidation, in.Kind)
	}
	if in.Kind == models.KindText && strings.TrimSpace(in.Content) == "" {
		return fmt.Errorf("%w: content is required", models.ErrValidation)
	}
	if in.Kind != models.KindText && (in.MediaRef == nil || strings.TrimSpace(*in.MediaRef) == "") {
		return fmt.Errorf("%w: media_ref is required for %s messages", models.ErrValidation, in.Kind)
	}
	if utf8.RuneCountInString(in.Content) > MaxContentLength {
		return fmt.Errorf("%w: content exceeds %d characters", models.ErrValidation, MaxContentLength)
	}
	return nil
}

// Append persists a message and returns it with its canonical id and
// timestamp. Nothing is visible unless Append returns nil.
func (s *Store) Append(ctx context.Context, in AppendInput) (*models.Message, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	m := &models.Message{
		RoomID:     in.RoomID,
		SenderID:   in.SenderID,
		SenderRole: in.SenderRole,
		Content:    in.Content,
		Kind:       in.Kind,
		MediaRef:   in.MediaRef,
	}
	if err := s.repo.InsertMessage(ctx, m); err != nil {
		return nil, classify("append message", err)
	}
	return m, nil
}

// ListForRoom returns up to limit messages older than before (a message id,
// optional), oldest first.
func (s *Store) ListForRoom(ctx context.Context, roomID string, limit int, before string) ([]models.Message, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	msgs, err := s.repo.ListMessages(ctx, roomID, before, limit)
	if err != nil {
		return nil, classify("list messages", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MarkRead marks every unread message in the room not sent by readerID as
// read and returns how many changed.
func (s *Store) MarkRead(ctx context.Context, roomID, readerID string) (int64, time.Time, error) {
	at := s.now().UTC()
	n, err := s.repo.MarkRead(ctx, roomID, readerID, at)
	if err != nil {
		return 0, at, classify("mark read", err)
	}
	return n, at, nil
}

func (s *Store) CountUnread(ctx context.Context, roomID, readerID string) (int, error) {
	n, err := s.repo.CountUnread(ctx, roomID, readerID)
	if err != nil {
		return 0, classify("count unread", err)
	}
	return n, nil
}

func (s *Store) SoftDelete(ctx context.Context, roomID string) (int64, error) {
	n, err := s.repo.SoftDeleteMessages(ctx, roomID, s.now().UTC())
	if err != nil {
		return 0, classify("soft delete messages", err)
	}
	return n, nil
}

// Summary is the room preview for a message.
func Summary(m *models.Message) string {
	switch m.Kind {
	case models.KindImage:
		return "[image]"
	case models.KindFile:
		return "[file]"
	}
	content := strings.TrimSpace(m.Content)
	if utf8.RuneCountInString(content) <= summaryLength {
		return content
	}
	return string([]rune(content)[:summaryLength])
}

func classify(op string, err error) error {
	if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", models.ErrPersistence, op, err)
}
