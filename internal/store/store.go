package store

import (
	"context"

	"github.com/ferndesk/roomscribe/internal/transcript"
)

// Mode selects how a room's transcript is consumed downstream. Capture
// behaves identically for live and post-call; the mode is carried as an
// opaque passthrough.
type Mode string

const (
	ModeLive     Mode = "live"
	ModePostCall Mode = "post-call"
	ModeOff      Mode = "off"
)

// RoomSettings is the per-room transcription configuration.
type RoomSettings struct {
	Mode Mode
	// CorrelationID links transcript output to a downstream consumer.
	CorrelationID string
}

// SessionStore manages accounting sessions: one record per room
// transcription lifetime, billed against gated speech duration.
type SessionStore interface {
	// GetRoomSettings returns nil when the room has no settings row.
	GetRoomSettings(ctx context.Context, roomID string) (*RoomSettings, error)
	// FindRunningSession returns the id of a still-running accounting
	// session for the room, or "" when there is none.
	FindRunningSession(ctx context.Context, roomID string) (string, error)
	CreateSession(ctx context.Context, roomID string, mode Mode) (string, error)
	CompleteSession(ctx context.Context, sessionID string, totalDurationMs, speechDurationMs int64) error
}

// TranscriptStore persists finalized transcript events.
type TranscriptStore interface {
	InsertTranscript(ctx context.Context, ev transcript.Event) error
}

type Store interface {
	SessionStore
	TranscriptStore
}
