package transcriber

import "context"

// Result is one utterance produced by the external engine.
type Result struct {
	Text       string
	IsFinal    bool
	Confidence float64
}

// SessionObserver receives notifications from one engine session. OnClosed
// fires when the session ends for any reason, including the engine's own
// idle timeout; that is a normal occurrence, not an error.
type SessionObserver interface {
	OnResult(res Result)
	OnClosed()
	OnError(err error)
}

// SessionConfig describes one streaming recognition session.
type SessionConfig struct {
	SessionID  string
	Language   string
	SampleRate int
}

// Session is one open streaming recognition session.
type Session interface {
	// SendAudio forwards little-endian 16-bit PCM.
	SendAudio(pcm []byte) error
	// Close is best-effort; implementations release resources regardless.
	Close() error
}

// Engine opens streaming recognition sessions against the external
// transcription provider.
type Engine interface {
	OpenSession(ctx context.Context, cfg SessionConfig, obs SessionObserver) (Session, error)
}
