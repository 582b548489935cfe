package database

import (
	"context"

	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE EXTENSION IF NOT EXISTS "pgcrypto";

CREATE TABLE IF NOT EXISTS profiles (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL DEFAULT '',
    profile_photo TEXT NOT NULL DEFAULT '',
    role          VARCHAR(10) NOT NULL CHECK (role IN ('traveler', 'host')),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_profiles_name ON profiles (name);

CREATE TABLE IF NOT EXISTS rooms (
    id                   UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    participant_a        TEXT NOT NULL,
    participant_b        TEXT NOT NULL,
    pair_key             TEXT NOT NULL,
    last_message_summary TEXT NOT NULL DEFAULT '',
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at           TIMESTAMPTZ,
    CHECK (participant_a < participant_b)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_rooms_pair_live ON rooms (pair_key) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_rooms_participant_a ON rooms (participant_a, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_rooms_participant_b ON rooms (participant_b, updated_at DESC);

CREATE TABLE IF NOT EXISTS messages (
    id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    seq         BIGSERIAL NOT NULL,
    room_id     UUID NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
    sender_id   TEXT NOT NULL,
    sender_role VARCHAR(10) NOT NULL,
    content     TEXT NOT NULL DEFAULT '',
    kind        VARCHAR(10) NOT NULL CHECK (kind IN ('text', 'image', 'file')),
    media_ref   TEXT,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
    read_at     TIMESTAMPTZ,
    deleted_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_messages_room_order ON messages (room_id, created_at DESC, seq DESC);
`

func RunMigrations(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
