package bot

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ferndesk/roomscribe/internal/rtc"
	"github.com/ferndesk/roomscribe/internal/transcriber"
	"github.com/ferndesk/roomscribe/internal/transcript"
)

func transcriberResult(text string, final bool, confidence float64) transcriber.Result {
	return transcriber.Result{Text: text, IsFinal: final, Confidence: confidence}
}

type fakeCredentials struct {
	err error
}

func (c *fakeCredentials) CreateToken(roomID, identity, name string, subscribeOnly bool) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	if !subscribeOnly {
		return "", errors.New("bot credentials must be subscribe-only")
	}
	return "token-" + roomID + "-" + identity, nil
}

type fakeTransport struct {
	identity     string
	participants []rtc.ParticipantInfo

	mu           sync.Mutex
	disconnected bool
}

func (t *fakeTransport) LocalIdentity() string { return t.identity }

func (t *fakeTransport) RemoteParticipants() []rtc.ParticipantInfo { return t.participants }

func (t *fakeTransport) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnected = true
}

func (t *fakeTransport) isDisconnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disconnected
}

type fakeConnector struct {
	mu        sync.Mutex
	failures  int
	attempts  int
	transport *fakeTransport
	events    rtc.TransportEvents
}

func (c *fakeConnector) Connect(_ context.Context, _ string, events rtc.TransportEvents) (rtc.Transport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.failures > 0 {
		c.failures--
		return nil, errors.New("room unreachable")
	}
	c.events = events
	if c.transport == nil {
		c.transport = &fakeTransport{identity: "scribe"}
	}
	return c.transport, nil
}

func (c *fakeConnector) attemptCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

type fakeTrack struct {
	mu     sync.Mutex
	frames []rtc.AudioFrame
}

func (t *fakeTrack) NextFrame() (rtc.AudioFrame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.frames) == 0 {
		return rtc.AudioFrame{}, io.EOF
	}
	frame := t.frames[0]
	t.frames = t.frames[1:]
	return frame, nil
}

func testBotConfig() Config {
	return Config{
		RoomID:          "room-1",
		BotIdentity:     "scribe",
		BotName:         "Scribe",
		Language:        "en-US",
		SampleRate:      testSampleRate,
		ChunkSamples:    testChunkSamples,
		SpeechThreshold: testThreshold,
		JoinAttempts:    3,
		RetryDelay:      time.Millisecond,
	}
}

func newTestBot(connector *fakeConnector, engine *fakeStreamEngine, events Events) *Bot {
	return New(testBotConfig(), &fakeCredentials{}, connector, engine, events)
}

func TestJoinRetriesUntilConnected(t *testing.T) {
	connector := &fakeConnector{failures: 2}
	b := newTestBot(connector, &fakeStreamEngine{}, Events{})

	if err := b.Join(context.Background()); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if got := connector.attemptCount(); got != 3 {
		t.Errorf("connect attempts = %d, want 3", got)
	}
	if got := b.State(); got != StateJoined {
		t.Errorf("State() = %v, want joined", got)
	}
}

func TestJoinFailsAfterExhaustingAttempts(t *testing.T) {
	connector := &fakeConnector{failures: 10}
	b := newTestBot(connector, &fakeStreamEngine{}, Events{})

	if err := b.Join(context.Background()); err == nil {
		t.Fatal("Join() should fail when every attempt fails")
	}
	if got := connector.attemptCount(); got != 3 {
		t.Errorf("connect attempts = %d, want 3", got)
	}
	if got := b.State(); got != StateJoining {
		t.Errorf("State() = %v, want joining", got)
	}
}

func TestJoinRespectsContextCancellation(t *testing.T) {
	connector := &fakeConnector{failures: 10}
	cfg := testBotConfig()
	cfg.RetryDelay = time.Hour
	b := New(cfg, &fakeCredentials{}, connector, &fakeStreamEngine{}, Events{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Join(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Join() error = %v, want context.Canceled", err)
	}
}

func TestJoinCredentialFailurePropagates(t *testing.T) {
	connector := &fakeConnector{}
	b := New(testBotConfig(), &fakeCredentials{err: errors.New("bad keys")},
		connector, &fakeStreamEngine{}, Events{})

	if err := b.Join(context.Background()); err == nil {
		t.Fatal("Join() should fail when minting credentials fails")
	}
	if got := connector.attemptCount(); got != 0 {
		t.Errorf("connect attempts = %d, want 0", got)
	}
}

func TestJoinCreatesHandlersSkippingOwnIdentity(t *testing.T) {
	connector := &fakeConnector{transport: &fakeTransport{
		identity: "scribe",
		participants: []rtc.ParticipantInfo{
			{Identity: "scribe", Name: "Scribe"},
			{Identity: "alice", Name: "Alice"},
			{Identity: "bob", Name: "Bob"},
		},
	}}
	b := newTestBot(connector, &fakeStreamEngine{}, Events{})

	if err := b.Join(context.Background()); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.handlers) != 2 {
		t.Errorf("handlers = %d, want 2", len(b.handlers))
	}
	if _, ok := b.handlers["scribe"]; ok {
		t.Error("bot must not create a handler for its own identity")
	}
}

func TestParticipantLifecycleFoldsSpeech(t *testing.T) {
	connector := &fakeConnector{}
	b := newTestBot(connector, &fakeStreamEngine{}, Events{})
	if err := b.Join(context.Background()); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	connector.events.OnParticipantJoined(rtc.ParticipantInfo{Identity: "alice", Name: "Alice"})
	b.mu.Lock()
	h, ok := b.handlers["alice"]
	b.mu.Unlock()
	if !ok {
		t.Fatal("expected a handler for alice")
	}

	h.mu.Lock()
	h.speechDuration = 700 * time.Millisecond
	h.mu.Unlock()

	connector.events.OnParticipantLeft(rtc.ParticipantInfo{Identity: "alice"})
	b.mu.Lock()
	_, still := b.handlers["alice"]
	folded := b.speechTotal
	b.mu.Unlock()
	if still {
		t.Error("handler should be removed when the participant leaves")
	}
	if folded != 700*time.Millisecond {
		t.Errorf("folded speech = %v, want 700ms", folded)
	}
	select {
	case <-h.Done():
	default:
		t.Error("handler should be stopped when the participant leaves")
	}
}

func TestLeaveFoldsDurationsAndDisconnects(t *testing.T) {
	connector := &fakeConnector{transport: &fakeTransport{
		identity: "scribe",
		participants: []rtc.ParticipantInfo{
			{Identity: "alice"}, {Identity: "bob"},
		},
	}}
	b := newTestBot(connector, &fakeStreamEngine{}, Events{})
	if err := b.Join(context.Background()); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	b.mu.Lock()
	for _, h := range b.handlers {
		h.mu.Lock()
		h.speechDuration = 500 * time.Millisecond
		h.mu.Unlock()
	}
	b.mu.Unlock()

	total, speech, err := b.Leave(context.Background())
	if err != nil {
		t.Fatalf("Leave() error = %v", err)
	}
	if speech != time.Second {
		t.Errorf("speech = %v, want 1s", speech)
	}
	if total <= 0 {
		t.Errorf("total = %v, want > 0", total)
	}
	if !connector.transport.isDisconnected() {
		t.Error("Leave should disconnect the transport")
	}
	if got := b.State(); got != StateLeft {
		t.Errorf("State() = %v, want left", got)
	}

	// Repeated Leave is a no-op that reports the same speech total.
	_, speech2, err := b.Leave(context.Background())
	if err != nil {
		t.Fatalf("second Leave() error = %v", err)
	}
	if speech2 != speech {
		t.Errorf("second Leave speech = %v, want %v", speech2, speech)
	}
}

func TestDisconnectIgnoredBeforeJoined(t *testing.T) {
	fired := make(chan string, 1)
	connector := &fakeConnector{}
	b := newTestBot(connector, &fakeStreamEngine{}, Events{
		OnDisconnected: func(roomID string) { fired <- roomID },
	})

	b.onDisconnected()
	select {
	case <-fired:
		t.Fatal("disconnect callback must not fire before the bot joined")
	case <-time.After(20 * time.Millisecond):
	}

	if err := b.Join(context.Background()); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	connector.events.OnDisconnected()
	select {
	case roomID := <-fired:
		if roomID != "room-1" {
			t.Errorf("disconnect roomID = %q, want room-1", roomID)
		}
	case <-time.After(time.Second):
		t.Fatal("disconnect callback did not fire after joined")
	}
}

func TestTrackSubscriptionFeedsTranscription(t *testing.T) {
	engine := &fakeStreamEngine{}
	transcripts := make(chan transcript.Event, 4)
	connector := &fakeConnector{}
	b := newTestBot(connector, engine, Events{
		OnTranscript: func(ev transcript.Event) { transcripts <- ev },
	})
	if err := b.Join(context.Background()); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	track := &fakeTrack{frames: []rtc.AudioFrame{
		{Samples: speechSamples(2), SampleRate: testSampleRate},
	}}
	connector.events.OnTrackSubscribed(rtc.ParticipantInfo{Identity: "alice", Name: "Alice"}, track)

	deadline := time.After(time.Second)
	for engine.opened() == 0 {
		select {
		case <-deadline:
			t.Fatal("track audio never reached the engine")
		case <-time.After(time.Millisecond):
		}
	}
	session := engine.last()
	for session.sentCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("forwarded chunks = %d, want 2", session.sentCount())
		case <-time.After(time.Millisecond):
		}
	}

	session.observer.OnResult(transcriberResult("hello there", true, 0.92))
	select {
	case ev := <-transcripts:
		if ev.RoomID != "room-1" || ev.ParticipantID != "alice" || ev.ParticipantName != "Alice" {
			t.Errorf("event attribution = %q/%q/%q", ev.RoomID, ev.ParticipantID, ev.ParticipantName)
		}
		if ev.Text != "hello there" || !ev.IsFinal {
			t.Errorf("event = %+v, want final %q", ev, "hello there")
		}
	case <-time.After(time.Second):
		t.Fatal("final result never surfaced as a transcript event")
	}

	// Interim results never surface.
	session.observer.OnResult(transcriberResult("hel", false, 0.4))
	select {
	case ev := <-transcripts:
		t.Errorf("interim result surfaced: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBotStateString(t *testing.T) {
	states := map[State]string{
		StateJoining: "joining",
		StateJoined:  "joined",
		StateLeaving: "leaving",
		StateLeft:    "left",
	}
	for state, want := range states {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}
