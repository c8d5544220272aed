// Package bot implements the in-room representative: a non-publishing,
// audio-subscribing participant that manages one audio handler per human
// participant and forwards gated speech to the transcription engine.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ferndesk/roomscribe/internal/metrics"
	"github.com/ferndesk/roomscribe/internal/rtc"
	"github.com/ferndesk/roomscribe/internal/transcriber"
	"github.com/ferndesk/roomscribe/internal/transcript"
)

const defaultJoinAttempts = 3

// State is the bot's room lifecycle state.
type State int

const (
	StateJoining State = iota
	StateJoined
	StateLeaving
	StateLeft
)

func (s State) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateLeaving:
		return "leaving"
	case StateLeft:
		return "left"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Events are the bot's outbound notifications. OnDisconnected fires only
// for transport-level drops after the room was fully joined; a disconnect
// during join must not tear down a session the registry never registered.
type Events struct {
	OnTranscript   func(transcript.Event)
	OnDisconnected func(roomID string)
}

// Config carries the per-room bot settings.
type Config struct {
	RoomID          string
	BotIdentity     string
	BotName         string
	Language        string
	SampleRate      int
	ChunkSamples    int
	SpeechThreshold float64
	JoinAttempts    int
	RetryDelay      time.Duration
}

// Bot manages the set of participant audio handlers for one room.
type Bot struct {
	cfg       Config
	creds     rtc.CredentialProvider
	connector rtc.Connector
	engine    transcriber.Engine
	events    Events

	mu          sync.Mutex
	state       State
	transport   rtc.Transport
	handlers    map[string]*ParticipantHandler
	speechTotal time.Duration
	startedAt   time.Time
}

func New(cfg Config, creds rtc.CredentialProvider, connector rtc.Connector, engine transcriber.Engine, events Events) *Bot {
	if cfg.JoinAttempts <= 0 {
		cfg.JoinAttempts = defaultJoinAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	return &Bot{
		cfg:       cfg,
		creds:     creds,
		connector: connector,
		engine:    engine,
		events:    events,
		state:     StateJoining,
		handlers:  make(map[string]*ParticipantHandler),
	}
}

// Join acquires a subscribe-only credential and connects to the room with
// bounded retries and linearly increasing backoff. On success it creates a
// handler for every participant already present, skipping the bot's own
// identity. Exhausting retries is fatal for this join and propagates.
func (b *Bot) Join(ctx context.Context) error {
	token, err := b.creds.CreateToken(b.cfg.RoomID, b.cfg.BotIdentity, b.cfg.BotName, true)
	if err != nil {
		return fmt.Errorf("create room credential for %s: %w", b.cfg.RoomID, err)
	}

	events := rtc.TransportEvents{
		OnParticipantJoined: b.onParticipantJoined,
		OnParticipantLeft:   b.onParticipantLeft,
		OnTrackSubscribed:   b.onTrackSubscribed,
		OnDisconnected:      b.onDisconnected,
	}

	var transport rtc.Transport
	for attempt := 1; attempt <= b.cfg.JoinAttempts; attempt++ {
		transport, err = b.connector.Connect(ctx, token, events)
		if err == nil {
			break
		}
		slog.Warn("room connect attempt failed",
			"room_id", b.cfg.RoomID, "attempt", attempt, "error", err)
		if attempt == b.cfg.JoinAttempts {
			return fmt.Errorf("connect to room %s after %d attempts: %w", b.cfg.RoomID, b.cfg.JoinAttempts, err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("connect to room %s: %w", b.cfg.RoomID, ctx.Err())
		case <-time.After(time.Duration(attempt) * b.cfg.RetryDelay):
		}
	}

	b.mu.Lock()
	b.transport = transport
	b.state = StateJoined
	b.startedAt = time.Now()
	for _, p := range transport.RemoteParticipants() {
		if p.Identity == b.cfg.BotIdentity {
			continue
		}
		b.ensureHandlerLocked(p)
	}
	b.mu.Unlock()

	slog.Info("joined room", "room_id", b.cfg.RoomID, "identity", b.cfg.BotIdentity)
	return nil
}

// Leave cancels every handler's subscription, closes its transcription
// stream, folds its speech duration into the room total, and disconnects
// the transport. It returns the room's wall-clock duration and the total
// accumulated speech duration.
func (b *Bot) Leave(ctx context.Context) (total, speech time.Duration, err error) {
	b.mu.Lock()
	if b.state == StateLeaving || b.state == StateLeft {
		total = b.totalDurationLocked()
		speech = b.speechTotal
		b.mu.Unlock()
		return total, speech, nil
	}
	b.state = StateLeaving
	handlers := b.handlers
	b.handlers = make(map[string]*ParticipantHandler)
	transport := b.transport
	b.transport = nil
	b.mu.Unlock()

	for _, h := range handlers {
		h.Stop()
		b.mu.Lock()
		b.speechTotal += h.SpeechDuration()
		b.mu.Unlock()
	}
	metrics.Default.ParticipantsActive.Sub(float64(len(handlers)))

	if transport != nil {
		transport.Disconnect()
	}

	b.mu.Lock()
	b.state = StateLeft
	total = b.totalDurationLocked()
	speech = b.speechTotal
	b.mu.Unlock()

	slog.Info("left room", "room_id", b.cfg.RoomID,
		"total_duration", total, "speech_duration", speech)
	return total, speech, nil
}

// State returns the bot's current lifecycle state.
func (b *Bot) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bot) totalDurationLocked() time.Duration {
	if b.startedAt.IsZero() {
		return 0
	}
	return time.Since(b.startedAt)
}

func (b *Bot) onParticipantJoined(p rtc.ParticipantInfo) {
	if p.Identity == b.cfg.BotIdentity {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateLeaving || b.state == StateLeft {
		return
	}
	b.ensureHandlerLocked(p)
	slog.Info("participant joined", "room_id", b.cfg.RoomID, "participant_id", p.Identity)
}

func (b *Bot) onParticipantLeft(p rtc.ParticipantInfo) {
	b.mu.Lock()
	h, ok := b.handlers[p.Identity]
	if ok {
		delete(b.handlers, p.Identity)
	}
	b.mu.Unlock()
	if !ok {
		return
	}

	h.Stop()
	b.mu.Lock()
	b.speechTotal += h.SpeechDuration()
	b.mu.Unlock()
	metrics.Default.ParticipantsActive.Dec()
	slog.Info("participant left", "room_id", b.cfg.RoomID,
		"participant_id", p.Identity, "speech_duration", h.SpeechDuration())
}

func (b *Bot) onTrackSubscribed(p rtc.ParticipantInfo, track rtc.AudioTrack) {
	if p.Identity == b.cfg.BotIdentity {
		return
	}
	b.mu.Lock()
	if b.state == StateLeaving || b.state == StateLeft {
		b.mu.Unlock()
		return
	}
	h := b.ensureHandlerLocked(p)
	b.mu.Unlock()

	go b.pumpTrack(h, track)
}

// onDisconnected surfaces transport-level drops to the owning registry,
// but only once the room has reached joined: the registry has nothing to
// clean up for a room it never registered.
func (b *Bot) onDisconnected() {
	b.mu.Lock()
	if b.state != StateJoined {
		slog.Info("ignoring disconnect outside joined state",
			"room_id", b.cfg.RoomID, "state", b.state.String())
		b.mu.Unlock()
		return
	}
	cb := b.events.OnDisconnected
	b.mu.Unlock()

	slog.Warn("room transport disconnected", "room_id", b.cfg.RoomID)
	if cb != nil {
		go cb(b.cfg.RoomID)
	}
}

func (b *Bot) ensureHandlerLocked(p rtc.ParticipantInfo) *ParticipantHandler {
	if h, ok := b.handlers[p.Identity]; ok {
		return h
	}
	adapter := transcriber.NewAdapter(b.engine, transcriber.SessionConfig{
		SessionID:  b.cfg.RoomID + ":" + p.Identity,
		Language:   b.cfg.Language,
		SampleRate: b.cfg.SampleRate,
	}, b.transcriptFunc(p))
	h := newParticipantHandler(b.cfg.RoomID, p, adapter, b.cfg.SampleRate, b.cfg.ChunkSamples, b.cfg.SpeechThreshold)
	b.handlers[p.Identity] = h
	metrics.Default.ParticipantsActive.Inc()
	return h
}

func (b *Bot) transcriptFunc(p rtc.ParticipantInfo) transcriber.TranscriptFunc {
	return func(res transcriber.Result) {
		metrics.Default.TranscriptsFinalized.Inc()
		if b.events.OnTranscript == nil {
			return
		}
		b.events.OnTranscript(transcript.Event{
			RoomID:          b.cfg.RoomID,
			ParticipantID:   p.Identity,
			ParticipantName: p.Name,
			Text:            res.Text,
			IsFinal:         res.IsFinal,
			Confidence:      res.Confidence,
			Timestamp:       time.Now(),
		})
	}
}

// pumpTrack iterates the track's frames into the handler until the
// handler is cancelled or the track ends. Cancellation is checked before
// every frame so a departed participant's in-flight audio is not
// processed.
func (b *Bot) pumpTrack(h *ParticipantHandler, track rtc.AudioTrack) {
	for {
		select {
		case <-h.Done():
			return
		default:
		}
		frame, err := track.NextFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && h.ctx.Err() == nil {
				slog.Warn("audio track read failed",
					"room_id", b.cfg.RoomID, "participant_id", h.identity, "error", err)
			}
			return
		}
		h.ProcessFrame(frame)
	}
}
