package transcriber

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
)

// State is the adapter's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// TranscriptFunc receives finalized results from the adapter.
type TranscriptFunc func(Result)

// Adapter wraps one engine session for one participant. It owns the
// connect/close lifecycle and surfaces only finalized utterances. The
// external session may close at any time (idle timeout is expected);
// the adapter records that and leaves reconnection to the caller, who
// retries lazily on the next speech chunk.
type Adapter struct {
	engine       Engine
	cfg          SessionConfig
	onTranscript TranscriptFunc

	mu         sync.Mutex
	state      State
	session    Session
	generation uint64
	// closed latches after an explicit Close. An engine-initiated close
	// leaves it unset so the caller can lazily reconnect.
	closed bool
}

func NewAdapter(engine Engine, cfg SessionConfig, onTranscript TranscriptFunc) *Adapter {
	return &Adapter{
		engine:       engine,
		cfg:          cfg,
		onTranscript: onTranscript,
		state:        StateDisconnected,
	}
}

// Connect opens an engine session. It is idempotent while connected and
// performs no internal retry: a failure is returned to the caller, who
// decides when to try again.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return fmt.Errorf("session %s: adapter closed", a.cfg.SessionID)
	}
	if a.state == StateConnected {
		a.mu.Unlock()
		return nil
	}
	if a.state == StateConnecting {
		a.mu.Unlock()
		return fmt.Errorf("session %s: connect already in progress", a.cfg.SessionID)
	}
	a.state = StateConnecting
	a.generation++
	gen := a.generation
	a.mu.Unlock()

	session, err := a.engine.OpenSession(ctx, a.cfg, &sessionObserver{adapter: a, generation: gen})
	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.state = StateDisconnected
		return fmt.Errorf("open transcription session %s: %w", a.cfg.SessionID, err)
	}
	if gen != a.generation || a.state != StateConnecting {
		// Closed while connect was in flight.
		a.mu.Unlock()
		_ = session.Close()
		a.mu.Lock()
		return fmt.Errorf("session %s: closed during connect", a.cfg.SessionID)
	}
	a.session = session
	a.state = StateConnected
	slog.Info("transcription session connected", "session_id", a.cfg.SessionID)
	return nil
}

// SendAudio forwards a PCM chunk to the session. It is a no-op when the
// adapter is not connected and never returns an error for that case.
func (a *Adapter) SendAudio(samples []int16) {
	a.mu.Lock()
	session := a.session
	connected := a.state == StateConnected
	a.mu.Unlock()
	if !connected || session == nil {
		return
	}
	if err := session.SendAudio(pcmBytes(samples)); err != nil {
		slog.Warn("transcription send failed", "session_id", a.cfg.SessionID, "error", err)
	}
}

// IsActive reports whether the adapter currently holds a usable session.
func (a *Adapter) IsActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == StateConnected
}

// State returns the current adapter state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Close shuts the session down. Idempotent; shutdown errors are logged,
// never surfaced, since the caller only needs the resources released.
func (a *Adapter) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	session := a.session
	a.session = nil
	a.state = StateClosed
	a.generation++
	a.mu.Unlock()

	if session == nil {
		return
	}
	if err := session.Close(); err != nil {
		slog.Warn("transcription session close failed", "session_id", a.cfg.SessionID, "error", err)
	}
}

// sessionObserver routes engine notifications back into the adapter.
// The generation guard drops notifications from superseded sessions.
type sessionObserver struct {
	adapter    *Adapter
	generation uint64
}

func (o *sessionObserver) OnResult(res Result) {
	if !o.current() {
		return
	}
	if !res.IsFinal {
		return
	}
	if o.adapter.onTranscript != nil {
		o.adapter.onTranscript(res)
	}
}

func (o *sessionObserver) OnClosed() {
	a := o.adapter
	a.mu.Lock()
	defer a.mu.Unlock()
	if o.generation != a.generation {
		return
	}
	if a.state == StateConnected || a.state == StateConnecting {
		a.state = StateClosed
		a.session = nil
		slog.Info("transcription session closed by engine", "session_id", a.cfg.SessionID)
	}
}

func (o *sessionObserver) OnError(err error) {
	a := o.adapter
	a.mu.Lock()
	defer a.mu.Unlock()
	if o.generation != a.generation {
		return
	}
	slog.Warn("transcription session error", "session_id", a.cfg.SessionID, "error", err)
	if a.state == StateConnected || a.state == StateConnecting {
		a.state = StateErrored
		a.session = nil
	}
}

func (o *sessionObserver) current() bool {
	o.adapter.mu.Lock()
	defer o.adapter.mu.Unlock()
	return o.generation == o.adapter.generation
}

func pcmBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
