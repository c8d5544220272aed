// Package rtc defines the room transport contracts the bot runs against.
// The concrete LiveKit implementation lives in external/rtc.
package rtc

import "context"

// ParticipantInfo identifies one remote participant in a room.
type ParticipantInfo struct {
	Identity string
	Name     string
}

// AudioFrame carries one decoded frame of mono integer PCM.
type AudioFrame struct {
	Samples    []int16
	SampleRate int
}

// AudioTrack is an iterable sequence of audio frames for one remote track.
// NextFrame blocks until a frame is available and returns io.EOF when the
// track ends.
type AudioTrack interface {
	NextFrame() (AudioFrame, error)
}

// TransportEvents are the live notifications a connected transport emits.
// All handlers are optional; nil handlers are skipped.
type TransportEvents struct {
	OnParticipantJoined func(ParticipantInfo)
	OnParticipantLeft   func(ParticipantInfo)
	OnTrackSubscribed   func(ParticipantInfo, AudioTrack)
	OnDisconnected      func()
}

// Transport is an established room connection.
type Transport interface {
	LocalIdentity() string
	RemoteParticipants() []ParticipantInfo
	Disconnect()
}

// CredentialProvider mints room-scoped access tokens. subscribeOnly
// credentials must carry no publish rights so the bot stays inaudible
// and invisible as a media source.
type CredentialProvider interface {
	CreateToken(roomID, identity, name string, subscribeOnly bool) (string, error)
}

// Connector establishes a transport. A failed attempt must not leave a
// partially-established connection behind; bounded retry is the caller's
// responsibility.
type Connector interface {
	Connect(ctx context.Context, token string, events TransportEvents) (Transport, error)
}
