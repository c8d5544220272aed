package store

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`DO $$ BEGIN CREATE TYPE transcription_mode AS ENUM ('live', 'post-call', 'off'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`DO $$ BEGIN CREATE TYPE session_status AS ENUM ('running', 'completed'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS room_settings (
		room_id TEXT PRIMARY KEY,
		mode transcription_mode NOT NULL DEFAULT 'off',
		correlation_id TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS transcription_sessions (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		room_id TEXT NOT NULL,
		mode transcription_mode NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		status session_status NOT NULL DEFAULT 'running',
		total_duration_ms BIGINT NOT NULL DEFAULT 0,
		speech_duration_ms BIGINT NOT NULL DEFAULT 0,
		billed_minutes BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transcription_sessions_running ON transcription_sessions (room_id) WHERE status = 'running'`,
	`CREATE TABLE IF NOT EXISTS transcripts (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		room_id TEXT NOT NULL,
		participant_id TEXT NOT NULL,
		participant_name TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		spoken_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transcripts_room ON transcripts (room_id, spoken_at)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
