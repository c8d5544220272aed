// Package session owns the room session registry: at most one live
// transcription session per room, started and stopped through idempotent,
// concurrency-safe operations.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ferndesk/roomscribe/internal/bot"
	"github.com/ferndesk/roomscribe/internal/broadcast"
	"github.com/ferndesk/roomscribe/internal/forward"
	"github.com/ferndesk/roomscribe/internal/metrics"
	"github.com/ferndesk/roomscribe/internal/store"
	"github.com/ferndesk/roomscribe/internal/stream"
	"github.com/ferndesk/roomscribe/internal/transcript"
)

// ErrNotEnabled is returned by StartRoom for rooms whose settings are
// absent or whose mode is off.
var ErrNotEnabled = errors.New("transcription not enabled for room")

// RoomBot is the per-room bot lifecycle the registry drives.
type RoomBot interface {
	Join(ctx context.Context) error
	Leave(ctx context.Context) (total, speech time.Duration, err error)
}

// BotFactory builds a room bot wired to the registry's event handlers.
type BotFactory func(roomID string, events bot.Events) RoomBot

// RoomSession is one registered live session.
type RoomSession struct {
	RoomID        string
	Mode          store.Mode
	CorrelationID string
	AccountingID  string
	StartedAt     time.Time

	bot            RoomBot
	cancelWatchdog context.CancelFunc
}

// Registry maps room ids to their running sessions. The joining and
// stopping marks close the windows where concurrent starts or stops of
// the same room could race: a room is marked before any slow work begins
// and the second caller backs off immediately.
type Registry struct {
	newBot      BotFactory
	store       store.Store
	forwarder   forward.Forwarder
	broadcaster broadcast.Broadcaster
	publisher   stream.Publisher
	maxDuration time.Duration

	mu       sync.Mutex
	sessions map[string]*RoomSession
	joining  map[string]struct{}
	stopping map[string]struct{}
}

func NewRegistry(newBot BotFactory, st store.Store, fw forward.Forwarder, bc broadcast.Broadcaster, pub stream.Publisher, maxDuration time.Duration) *Registry {
	return &Registry{
		newBot:      newBot,
		store:       st,
		forwarder:   fw,
		broadcaster: bc,
		publisher:   pub,
		maxDuration: maxDuration,
		sessions:    make(map[string]*RoomSession),
		joining:     make(map[string]struct{}),
		stopping:    make(map[string]struct{}),
	}
}

// StartRoom starts a transcription session for the room. It is an
// idempotent no-op when a session already exists or a concurrent start is
// in flight. Rooms with no settings row or mode off never get a session.
// An accounting session is created before the bot joins; a failed join
// leaves no registration behind.
func (r *Registry) StartRoom(ctx context.Context, roomID string) error {
	r.mu.Lock()
	if _, ok := r.sessions[roomID]; ok {
		r.mu.Unlock()
		slog.Debug("room already has a session", "room_id", roomID)
		return nil
	}
	if _, ok := r.joining[roomID]; ok {
		r.mu.Unlock()
		slog.Debug("room join already in flight", "room_id", roomID)
		return nil
	}
	r.joining[roomID] = struct{}{}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.joining, roomID)
		r.mu.Unlock()
	}()

	settings, err := r.store.GetRoomSettings(ctx, roomID)
	if err != nil {
		return fmt.Errorf("load settings for room %s: %w", roomID, err)
	}
	if settings == nil || settings.Mode == store.ModeOff {
		slog.Info("transcription not enabled for room", "room_id", roomID)
		return fmt.Errorf("room %s: %w", roomID, ErrNotEnabled)
	}

	r.completeOrphanSession(ctx, roomID)

	accountingID, err := r.store.CreateSession(ctx, roomID, settings.Mode)
	if err != nil {
		return fmt.Errorf("create accounting session for room %s: %w", roomID, err)
	}

	b := r.newBot(roomID, bot.Events{
		OnTranscript:   r.handleTranscript,
		OnDisconnected: r.handleDisconnect,
	})
	if err := b.Join(ctx); err != nil {
		metrics.Default.SessionsFailed.Inc()
		if _, _, lerr := b.Leave(context.Background()); lerr != nil {
			slog.Warn("cleanup leave after failed join", "room_id", roomID, "error", lerr)
		}
		if cerr := r.store.CompleteSession(ctx, accountingID, 0, 0); cerr != nil {
			slog.Warn("complete accounting session after failed join",
				"room_id", roomID, "session_id", accountingID, "error", cerr)
		}
		return fmt.Errorf("join room %s: %w", roomID, err)
	}

	sess := &RoomSession{
		RoomID:        roomID,
		Mode:          settings.Mode,
		CorrelationID: settings.CorrelationID,
		AccountingID:  accountingID,
		StartedAt:     time.Now(),
		bot:           b,
	}

	r.mu.Lock()
	r.sessions[roomID] = sess
	r.mu.Unlock()
	r.startWatchdog(sess)

	metrics.Default.SessionsStarted.Inc()
	metrics.Default.SessionsActive.Inc()
	slog.Info("room session started",
		"room_id", roomID, "mode", string(settings.Mode), "session_id", accountingID)
	return nil
}

// StopRoom stops the room's session. Absent rooms are a no-op, as is a
// room another caller is already stopping. The session is removed from
// the registry before teardown begins, so a re-start of the same room can
// proceed while the old bot is still leaving.
func (r *Registry) StopRoom(ctx context.Context, roomID string) {
	r.mu.Lock()
	sess, ok := r.sessions[roomID]
	if !ok {
		r.mu.Unlock()
		slog.Debug("no session to stop", "room_id", roomID)
		return
	}
	if _, busy := r.stopping[roomID]; busy {
		r.mu.Unlock()
		return
	}
	r.stopping[roomID] = struct{}{}
	delete(r.sessions, roomID)
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.stopping, roomID)
		r.mu.Unlock()
	}()

	if sess.cancelWatchdog != nil {
		sess.cancelWatchdog()
	}

	total, speech, err := sess.bot.Leave(ctx)
	if err != nil {
		slog.Warn("leave room", "room_id", roomID, "error", err)
	}
	if err := r.store.CompleteSession(ctx, sess.AccountingID,
		total.Milliseconds(), speech.Milliseconds()); err != nil {
		slog.Error("complete accounting session",
			"room_id", roomID, "session_id", sess.AccountingID, "error", err)
	}
	if err := r.broadcaster.ReleaseRoom(ctx, roomID); err != nil {
		slog.Warn("release room broadcast state", "room_id", roomID, "error", err)
	}

	metrics.Default.SessionsActive.Dec()
	slog.Info("room session stopped", "room_id", roomID,
		"session_id", sess.AccountingID, "total_duration", total, "speech_duration", speech)
}

// StopAll stops every registered session, sequentially. Used on shutdown.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.Lock()
	roomIDs := make([]string, 0, len(r.sessions))
	for roomID := range r.sessions {
		roomIDs = append(roomIDs, roomID)
	}
	r.mu.Unlock()

	for _, roomID := range roomIDs {
		r.StopRoom(ctx, roomID)
	}
}

// Session returns the registered session for the room, or nil.
func (r *Registry) Session(roomID string) *RoomSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[roomID]
}

// ActiveRooms returns the ids of all rooms with a registered session.
func (r *Registry) ActiveRooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	roomIDs := make([]string, 0, len(r.sessions))
	for roomID := range r.sessions {
		roomIDs = append(roomIDs, roomID)
	}
	return roomIDs
}

// completeOrphanSession closes out an accounting session left running by
// an earlier crash so the new session starts from a clean slate. The
// orphan's durations are unrecoverable and recorded as zero.
func (r *Registry) completeOrphanSession(ctx context.Context, roomID string) {
	orphanID, err := r.store.FindRunningSession(ctx, roomID)
	if err != nil {
		slog.Warn("look up running session", "room_id", roomID, "error", err)
		return
	}
	if orphanID == "" {
		return
	}
	slog.Warn("completing orphaned session", "room_id", roomID, "session_id", orphanID)
	if err := r.store.CompleteSession(ctx, orphanID, 0, 0); err != nil {
		slog.Error("complete orphaned session",
			"room_id", roomID, "session_id", orphanID, "error", err)
	}
}

// startWatchdog arms the hard session duration cap, when configured.
func (r *Registry) startWatchdog(sess *RoomSession) {
	if r.maxDuration <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	sess.cancelWatchdog = cancel
	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(r.maxDuration):
			slog.Warn("session exceeded maximum duration, stopping",
				"room_id", sess.RoomID, "max_duration", r.maxDuration)
			r.StopRoom(context.Background(), sess.RoomID)
		}
	}()
}

// handleTranscript persists and fans out one finalized transcript event.
// Every sink is best-effort: a failing store or publisher never blocks the
// others or the audio pipeline.
func (r *Registry) handleTranscript(ev transcript.Event) {
	ctx := context.Background()

	if err := r.store.InsertTranscript(ctx, ev); err != nil {
		slog.Error("persist transcript",
			"room_id", ev.RoomID, "participant_id", ev.ParticipantID, "error", err)
	}
	if err := r.broadcaster.Publish(ctx, ev); err != nil {
		metrics.Default.TranscriptForwardErrors.Inc()
		slog.Warn("broadcast transcript", "room_id", ev.RoomID, "error", err)
	}
	r.forwarder.Forward(ctx, ev)
	r.publisher.Publish(ctx, ev)
}

// handleDisconnect tears the session down after a transport-level drop.
// It runs off the transport callback goroutine so the teardown's own
// disconnect cannot deadlock the callback path.
func (r *Registry) handleDisconnect(roomID string) {
	slog.Warn("room disconnected, stopping session", "room_id", roomID)
	go r.StopRoom(context.Background(), roomID)
}
