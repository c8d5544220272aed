package store

import (
	"context"

	"github.com/ferndesk/roomscribe/internal/store"
	"github.com/ferndesk/roomscribe/internal/transcript"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) store.Store {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) GetRoomSettings(ctx context.Context, roomID string) (*store.RoomSettings, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT mode, correlation_id FROM room_settings WHERE room_id = $1`,
		roomID)
	var settings store.RoomSettings
	var mode string
	if err := row.Scan(&mode, &settings.CorrelationID); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	settings.Mode = store.Mode(mode)
	return &settings, nil
}

func (s *PostgresStore) FindRunningSession(ctx context.Context, roomID string) (string, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id FROM transcription_sessions
		 WHERE room_id = $1 AND status = 'running'
		 ORDER BY started_at DESC LIMIT 1`,
		roomID)
	var id string
	if err := row.Scan(&id); err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, roomID string, mode store.Mode) (string, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO transcription_sessions (room_id, mode, started_at, status)
		 VALUES ($1, $2, NOW(), 'running')
		 RETURNING id`,
		roomID, string(mode))
	var id string
	if err := row.Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

// CompleteSession closes the accounting record. Billed minutes derive
// from gated speech duration, rounded up to the next whole minute.
func (s *PostgresStore) CompleteSession(ctx context.Context, sessionID string, totalDurationMs, speechDurationMs int64) error {
	billedMinutes := (speechDurationMs + 59999) / 60000
	_, err := s.pool.Exec(ctx,
		`UPDATE transcription_sessions
		 SET status = 'completed', ended_at = NOW(),
		     total_duration_ms = $2, speech_duration_ms = $3, billed_minutes = $4
		 WHERE id = $1`,
		sessionID, totalDurationMs, speechDurationMs, billedMinutes)
	return err
}

func (s *PostgresStore) InsertTranscript(ctx context.Context, ev transcript.Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transcripts (room_id, participant_id, participant_name, content, confidence, spoken_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.RoomID, ev.ParticipantID, ev.ParticipantName, ev.Text, ev.Confidence, ev.Timestamp)
	return err
}
