package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/umar/staychat/internal/models"
)

const uniqueViolation = "23505"

// Postgres implements the room, message and profile stores on PostgreSQL.
type Postgres struct {
	db *sqlx.DB
}

func InitDB(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// Ids are UUID columns; anything else can never match a row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// --- Profiles ---

func (p *Postgres) UpsertProfile(ctx context.Context, u models.User) error {
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO profiles (id, name, profile_photo, role, updated_at)
		VALUES (:id, :name, :profile_photo, :role, NOW())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, profile_photo = EXCLUDED.profile_photo,
		    role = EXCLUDED.role, updated_at = NOW()`, u)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (p *Postgres) GetProfiles(ctx context.Context, ids []string) ([]models.User, error) {
	users := []models.User{}
	if len(ids) == 0 {
		return users, nil
	}
	err := p.db.SelectContext(ctx, &users,
		`SELECT id, name, profile_photo, role, updated_at FROM profiles WHERE id = ANY($1)`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get profiles: %w", err)
	}
	return users, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching query literally anywhere.
func containsPattern(query string) string {
	return "%" + likeEscaper.Replace(query) + "%"
}

func (p *Postgres) SearchProfiles(ctx context.Context, query string, limit int) ([]models.User, error) {
	users := []models.User{}
	err := p.db.SelectContext(ctx, &users,
		`SELECT id, name, profile_photo, role, updated_at FROM profiles
		 WHERE name ILIKE $1 ESCAPE '\' ORDER BY name LIMIT $2`,
		containsPattern(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search profiles: %w", err)
	}
	return users, nil
}

// --- Rooms ---

type roomRow struct {
	ID                 string     `db:"id"`
	ParticipantA       string     `db:"participant_a"`
	ParticipantB       string     `db:"participant_b"`
	LastMessageSummary string     `db:"last_message_summary"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
	DeletedAt          *time.Time `db:"deleted_at"`
}

func (r roomRow) toModel() *models.Room {
	return &models.Room{
		ID:                 r.ID,
		ParticipantIDs:     [2]string{r.ParticipantA, r.ParticipantB},
		LastMessageSummary: r.LastMessageSummary,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		DeletedAt:          r.DeletedAt,
	}
}

const roomColumns = `id, participant_a, participant_b, last_message_summary, created_at, updated_at, deleted_at`

func (p *Postgres) CreateRoom(ctx context.Context, room *models.Room) error {
	pair := models.SortedPair(room.ParticipantIDs[0], room.ParticipantIDs[1])
	var row roomRow
	err := p.db.GetContext(ctx, &row,
		`INSERT INTO rooms (participant_a, participant_b, pair_key)
		 VALUES ($1, $2, $3)
		 RETURNING `+roomColumns,
		pair[0], pair[1], models.PairKey(pair[0], pair[1]))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return models.ErrDuplicatePair
		}
		return fmt.Errorf("failed to create room: %w", err)
	}
	*room = *row.toModel()
	return nil
}

func (p *Postgres) FindRoomByPair(ctx context.Context, pairKey string) (*models.Room, error) {
	var row roomRow
	err := p.db.GetContext(ctx, &row,
		`SELECT `+roomColumns+` FROM rooms WHERE pair_key = $1 AND deleted_at IS NULL`, pairKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find room: %w", err)
	}
	return row.toModel(), nil
}

func (p *Postgres) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	if !validID(id) {
		return nil, models.ErrNotFound
	}
	var row roomRow
	err := p.db.GetContext(ctx, &row,
		`SELECT `+roomColumns+` FROM rooms WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return row.toModel(), nil
}

func (p *Postgres) ListRoomsForUser(ctx context.Context, userID string) ([]models.Room, error) {
	var rows []roomRow
	err := p.db.SelectContext(ctx, &rows,
		`SELECT `+roomColumns+` FROM rooms
		 WHERE (participant_a = $1 OR participant_b = $1) AND deleted_at IS NULL
		 ORDER BY updated_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	rooms := make([]models.Room, 0, len(rows))
	for _, r := range rows {
		rooms = append(rooms, *r.toModel())
	}
	return rooms, nil
}

func (p *Postgres) TouchRoom(ctx context.Context, id, summary string, at time.Time) error {
	if !validID(id) {
		return models.ErrNotFound
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE rooms SET last_message_summary = $2, updated_at = GREATEST(updated_at, $3)
		 WHERE id = $1 AND deleted_at IS NULL`, id, summary, at)
	if err != nil {
		return fmt.Errorf("failed to touch room: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteRoom soft-deletes the room and every message in it in one transaction.
func (p *Postgres) DeleteRoom(ctx context.Context, id string) error {
	if !validID(id) {
		return models.ErrNotFound
	}
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete room: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE rooms SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE messages SET deleted_at = NOW() WHERE room_id = $1 AND deleted_at IS NULL`, id); err != nil {
		return fmt.Errorf("failed to delete room messages: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete room: %w", err)
	}
	return nil
}

// --- Messages ---

const messageColumns = `id, room_id, sender_id, sender_role, content, kind, media_ref, created_at, seq,
	read_at IS NOT NULL AS read, read_at, deleted_at IS NOT NULL AS deleted, deleted_at`

// InsertMessage persists m and fills in its id, seq and created_at. The
// insert only happens when the room exists and is not deleted. The room row
// is share-locked so a concurrent DeleteRoom cannot leave the new message live.
func (p *Postgres) InsertMessage(ctx context.Context, m *models.Message) error {
	if !validID(m.RoomID) {
		return models.ErrNotFound
	}
	err := p.db.GetContext(ctx, m, `
		WITH live AS (
			SELECT id FROM rooms WHERE id = $1 AND deleted_at IS NULL FOR SHARE
		)
		INSERT INTO messages (room_id, sender_id, sender_role, content, kind, media_ref)
		SELECT live.id, $2, $3, $4, $5, $6 FROM live
		RETURNING `+messageColumns,
		m.RoomID, m.SenderID, m.SenderRole, m.Content, m.Kind, m.MediaRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrNotFound
		}
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// ListMessages returns up to limit live messages older than the before
// cursor (a message id), newest first.
func (p *Postgres) ListMessages(ctx context.Context, roomID, before string, limit int) ([]models.Message, error) {
	if !validID(roomID) {
		return nil, models.ErrNotFound
	}
	var (
		q    strings.Builder
		args = []any{roomID}
	)
	q.WriteString(`SELECT ` + messageColumns + ` FROM messages WHERE room_id = $1 AND deleted_at IS NULL`)
	if before != "" {
		if !validID(before) {
			return []models.Message{}, nil
		}
		args = append(args, before)
		q.WriteString(` AND (created_at, seq) < (SELECT created_at, seq FROM messages WHERE id = $2 AND room_id = $1)`)
	}
	args = append(args, limit)
	fmt.Fprintf(&q, ` ORDER BY created_at DESC, seq DESC LIMIT $%d`, len(args))

	messages := []models.Message{}
	if err := p.db.SelectContext(ctx, &messages, q.String(), args...); err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return messages, nil
}

func (p *Postgres) MarkRead(ctx context.Context, roomID, readerID string, at time.Time) (int64, error) {
	if !validID(roomID) {
		return 0, models.ErrNotFound
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE messages SET read_at = $3
		 WHERE room_id = $1 AND sender_id <> $2 AND read_at IS NULL AND deleted_at IS NULL`,
		roomID, readerID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to mark read: %w", err)
	}
	return res.RowsAffected()
}

func (p *Postgres) CountUnread(ctx context.Context, roomID, readerID string) (int, error) {
	if !validID(roomID) {
		return 0, models.ErrNotFound
	}
	var count int
	err := p.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM messages
		 WHERE room_id = $1 AND sender_id <> $2 AND read_at IS NULL AND deleted_at IS NULL`,
		roomID, readerID)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread: %w", err)
	}
	return count, nil
}

func (p *Postgres) SoftDeleteMessages(ctx context.Context, roomID string, at time.Time) (int64, error) {
	if !validID(roomID) {
		return 0, models.ErrNotFound
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE messages SET deleted_at = $2 WHERE room_id = $1 AND deleted_at IS NULL`, roomID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	return res.RowsAffected()
}
