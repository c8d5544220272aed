package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ferndesk/roomscribe/internal/rtc"
	"github.com/ferndesk/roomscribe/internal/transcriber"
)

const (
	testSampleRate   = 16000
	testChunkSamples = 4
	testThreshold    = 0.01
)

type fakeStreamSession struct {
	mu       sync.Mutex
	sent     [][]byte
	closed   bool
	observer transcriber.SessionObserver
}

func (s *fakeStreamSession) SendAudio(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	s.sent = append(s.sent, buf)
	return nil
}

func (s *fakeStreamSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStreamSession) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeStreamEngine struct {
	mu       sync.Mutex
	sessions []*fakeStreamSession
	failures int
}

func (e *fakeStreamEngine) OpenSession(_ context.Context, _ transcriber.SessionConfig, obs transcriber.SessionObserver) (transcriber.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failures > 0 {
		e.failures--
		return nil, errors.New("engine unavailable")
	}
	s := &fakeStreamSession{observer: obs}
	e.sessions = append(e.sessions, s)
	return s, nil
}

func (e *fakeStreamEngine) opened() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

func (e *fakeStreamEngine) last() *fakeStreamSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sessions) == 0 {
		return nil
	}
	return e.sessions[len(e.sessions)-1]
}

func newTestHandler(engine *fakeStreamEngine) *ParticipantHandler {
	adapter := transcriber.NewAdapter(engine, transcriber.SessionConfig{
		SessionID:  "room-1:alice",
		Language:   "en-US",
		SampleRate: testSampleRate,
	}, nil)
	return newParticipantHandler("room-1", rtc.ParticipantInfo{Identity: "alice", Name: "Alice"},
		adapter, testSampleRate, testChunkSamples, testThreshold)
}

func speechSamples(chunks int) []int16 {
	out := make([]int16, chunks*testChunkSamples)
	for i := range out {
		out[i] = 16000
	}
	return out
}

func silenceSamples(chunks int) []int16 {
	return make([]int16, chunks*testChunkSamples)
}

func TestProcessFrameForwardsSpeechDropsSilence(t *testing.T) {
	engine := &fakeStreamEngine{}
	h := newTestHandler(engine)
	defer h.Stop()

	samples := append(speechSamples(3), silenceSamples(2)...)
	samples = append(samples, speechSamples(1)...)
	h.ProcessFrame(rtc.AudioFrame{Samples: samples, SampleRate: testSampleRate})

	session := engine.last()
	if session == nil {
		t.Fatal("expected an engine session to be opened")
	}
	if got := session.sentCount(); got != 4 {
		t.Errorf("forwarded chunks = %d, want 4", got)
	}

	wantDur := 4 * chunkDuration(testChunkSamples, testSampleRate)
	if got := h.SpeechDuration(); got != wantDur {
		t.Errorf("SpeechDuration() = %v, want %v", got, wantDur)
	}
	if h.LastSpeechAt().IsZero() {
		t.Error("LastSpeechAt() should be set after forwarding speech")
	}
}

func TestProcessFrameSilenceOnlyOpensNoSession(t *testing.T) {
	engine := &fakeStreamEngine{}
	h := newTestHandler(engine)
	defer h.Stop()

	h.ProcessFrame(rtc.AudioFrame{Samples: silenceSamples(5), SampleRate: testSampleRate})

	if got := engine.opened(); got != 0 {
		t.Errorf("sessions opened = %d, want 0", got)
	}
	if got := h.SpeechDuration(); got != 0 {
		t.Errorf("SpeechDuration() = %v, want 0", got)
	}
}

func TestProcessFrameReconnectsAfterEngineClose(t *testing.T) {
	engine := &fakeStreamEngine{}
	h := newTestHandler(engine)
	defer h.Stop()

	h.ProcessFrame(rtc.AudioFrame{Samples: speechSamples(1), SampleRate: testSampleRate})
	first := engine.last()
	if first == nil {
		t.Fatal("expected a session after first speech chunk")
	}
	first.observer.OnClosed()

	h.ProcessFrame(rtc.AudioFrame{Samples: speechSamples(1), SampleRate: testSampleRate})
	if got := engine.opened(); got != 2 {
		t.Fatalf("sessions opened = %d, want 2 after reconnect", got)
	}
	if got := engine.last().sentCount(); got != 1 {
		t.Errorf("chunks on reconnected session = %d, want 1", got)
	}
}

func TestProcessFrameReconnectFailureDropsOnlyThatChunk(t *testing.T) {
	engine := &fakeStreamEngine{failures: 1}
	h := newTestHandler(engine)
	defer h.Stop()

	h.ProcessFrame(rtc.AudioFrame{Samples: speechSamples(1), SampleRate: testSampleRate})
	if got := engine.opened(); got != 0 {
		t.Fatalf("sessions opened = %d, want 0 while engine is failing", got)
	}
	if got := h.SpeechDuration(); got != 0 {
		t.Errorf("SpeechDuration() = %v, want 0 for a dropped chunk", got)
	}

	h.ProcessFrame(rtc.AudioFrame{Samples: speechSamples(1), SampleRate: testSampleRate})
	if got := engine.opened(); got != 1 {
		t.Fatalf("sessions opened = %d, want 1 once the engine recovers", got)
	}
	if got := engine.last().sentCount(); got != 1 {
		t.Errorf("forwarded chunks = %d, want 1", got)
	}
}

func TestProcessFrameNoopAfterStop(t *testing.T) {
	engine := &fakeStreamEngine{}
	h := newTestHandler(engine)
	h.Stop()

	h.ProcessFrame(rtc.AudioFrame{Samples: speechSamples(2), SampleRate: testSampleRate})
	if got := engine.opened(); got != 0 {
		t.Errorf("sessions opened = %d, want 0 after Stop", got)
	}

	select {
	case <-h.Done():
	default:
		t.Error("Done() should be closed after Stop")
	}
}

func TestStopPreventsAdapterReconnect(t *testing.T) {
	engine := &fakeStreamEngine{}
	h := newTestHandler(engine)

	h.ProcessFrame(rtc.AudioFrame{Samples: speechSamples(1), SampleRate: testSampleRate})
	h.Stop()

	// A frame that slipped past the cancellation check must not be able
	// to reopen the session through the adapter.
	if err := h.adapter.Connect(context.Background()); err == nil {
		t.Fatal("expected adapter connect to fail after Stop")
	}
	if got := engine.opened(); got != 1 {
		t.Errorf("sessions opened = %d, want 1", got)
	}
}

func TestStopClosesSession(t *testing.T) {
	engine := &fakeStreamEngine{}
	h := newTestHandler(engine)

	h.ProcessFrame(rtc.AudioFrame{Samples: speechSamples(1), SampleRate: testSampleRate})
	session := engine.last()
	if session == nil {
		t.Fatal("expected a session before Stop")
	}

	h.Stop()
	session.mu.Lock()
	closed := session.closed
	session.mu.Unlock()
	if !closed {
		t.Error("Stop should close the engine session")
	}
}

func TestChunkDuration(t *testing.T) {
	if got := chunkDuration(4800, 16000); got != 300*time.Millisecond {
		t.Errorf("chunkDuration(4800, 16000) = %v, want 300ms", got)
	}
	if got := chunkDuration(100, 0); got != 0 {
		t.Errorf("chunkDuration with zero rate = %v, want 0", got)
	}
}
