// Package rtc implements the room transport contracts against LiveKit.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ferndesk/roomscribe/internal/rtc"
	"github.com/livekit/protocol/auth"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/hraban/opus"
)

const (
	tokenValidity  = 6 * time.Hour
	rtpReadBufSize = 1500
	// Largest opus frame is 60ms; at 16kHz mono that is 960 samples.
	maxOpusFrameSamples = 960
)

type TokenProvider struct {
	apiKey    string
	apiSecret string
}

func NewTokenProvider(apiKey, apiSecret string) *TokenProvider {
	return &TokenProvider{apiKey: apiKey, apiSecret: apiSecret}
}

// CreateToken mints a room-scoped join token. subscribeOnly tokens carry
// no publish rights and mark the participant hidden, so the bot never
// appears as a media source to the room.
func (p *TokenProvider) CreateToken(roomID, identity, name string, subscribeOnly bool) (string, error) {
	at := auth.NewAccessToken(p.apiKey, p.apiSecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     roomID,
	}
	if subscribeOnly {
		canSubscribe := true
		canPublish := false
		grant.CanSubscribe = &canSubscribe
		grant.CanPublish = &canPublish
		grant.Hidden = true
	}
	at.SetVideoGrant(grant).
		SetIdentity(identity).
		SetName(name).
		SetValidFor(tokenValidity)
	return at.ToJWT()
}

type Connector struct {
	url        string
	sampleRate int
}

func NewConnector(url string, sampleRate int) *Connector {
	return &Connector{url: url, sampleRate: sampleRate}
}

// Connect joins the room and bridges SDK callbacks onto the given event
// handlers. Audio publications from participants already present are
// force-subscribed so their tracks flow without waiting for renegotiation.
func (c *Connector) Connect(ctx context.Context, token string, events rtc.TransportEvents) (rtc.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	callbacks := &lksdk.RoomCallback{
		OnDisconnected: func() {
			if events.OnDisconnected != nil {
				events.OnDisconnected()
			}
		},
		OnParticipantConnected: func(rp *lksdk.RemoteParticipant) {
			if events.OnParticipantJoined != nil {
				events.OnParticipantJoined(participantInfo(rp))
			}
		},
		OnParticipantDisconnected: func(rp *lksdk.RemoteParticipant) {
			if events.OnParticipantLeft != nil {
				events.OnParticipantLeft(participantInfo(rp))
			}
		},
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				if track.Kind() != webrtc.RTPCodecTypeAudio {
					return
				}
				if events.OnTrackSubscribed == nil {
					return
				}
				decoded, err := newOpusTrack(track, c.sampleRate)
				if err != nil {
					slog.Error("create audio decoder for track",
						"participant_id", rp.Identity(), "error", err)
					return
				}
				events.OnTrackSubscribed(participantInfo(rp), decoded)
			},
		},
	}

	room, err := lksdk.ConnectToRoomWithToken(c.url, token, callbacks)
	if err != nil {
		return nil, fmt.Errorf("connect to livekit room: %w", err)
	}

	for _, p := range room.GetRemoteParticipants() {
		subscribeAudioPublications(p)
	}

	return &transport{room: room}, nil
}

func subscribeAudioPublications(p *lksdk.RemoteParticipant) {
	for _, pub := range p.TrackPublications() {
		if pub.Kind() != lksdk.TrackKindAudio {
			continue
		}
		remotePub, ok := pub.(*lksdk.RemoteTrackPublication)
		if !ok {
			continue
		}
		if !remotePub.IsSubscribed() {
			if err := remotePub.SetSubscribed(true); err != nil {
				slog.Warn("subscribe to audio publication",
					"participant_id", p.Identity(), "track_sid", remotePub.SID(), "error", err)
			}
		}
	}
}

func participantInfo(rp *lksdk.RemoteParticipant) rtc.ParticipantInfo {
	return rtc.ParticipantInfo{Identity: rp.Identity(), Name: rp.Name()}
}

type transport struct {
	room *lksdk.Room
}

func (t *transport) LocalIdentity() string {
	return t.room.LocalParticipant.Identity()
}

func (t *transport) RemoteParticipants() []rtc.ParticipantInfo {
	remotes := t.room.GetRemoteParticipants()
	out := make([]rtc.ParticipantInfo, 0, len(remotes))
	for _, rp := range remotes {
		out = append(out, participantInfo(rp))
	}
	return out
}

func (t *transport) Disconnect() {
	t.room.Disconnect()
}

// opusTrack reads RTP packets off one remote track and decodes the opus
// payloads to mono PCM at the configured rate.
type opusTrack struct {
	track      *webrtc.TrackRemote
	decoder    *opus.Decoder
	sampleRate int

	readBuf []byte
	pcmBuf  []int16
	rtpPkt  rtp.Packet
}

func newOpusTrack(track *webrtc.TrackRemote, sampleRate int) (*opusTrack, error) {
	decoder, err := opus.NewDecoder(sampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	return &opusTrack{
		track:      track,
		decoder:    decoder,
		sampleRate: sampleRate,
		readBuf:    make([]byte, rtpReadBufSize),
		pcmBuf:     make([]int16, maxOpusFrameSamples),
	}, nil
}

// NextFrame blocks for the next decoded audio frame. DTX packets carry no
// payload and are skipped. Returns io.EOF once the track ends.
func (t *opusTrack) NextFrame() (rtc.AudioFrame, error) {
	for {
		n, _, err := t.track.Read(t.readBuf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return rtc.AudioFrame{}, io.EOF
			}
			return rtc.AudioFrame{}, fmt.Errorf("read rtp packet: %w", err)
		}
		if err := t.rtpPkt.Unmarshal(t.readBuf[:n]); err != nil {
			slog.Warn("unmarshal rtp packet", "track_id", t.track.ID(), "error", err)
			continue
		}
		if len(t.rtpPkt.Payload) == 0 {
			continue
		}

		sampleCount, err := t.decoder.Decode(t.rtpPkt.Payload, t.pcmBuf)
		if err != nil {
			slog.Warn("decode opus payload", "track_id", t.track.ID(), "error", err)
			continue
		}
		samples := make([]int16, sampleCount)
		copy(samples, t.pcmBuf[:sampleCount])
		return rtc.AudioFrame{Samples: samples, SampleRate: t.sampleRate}, nil
	}
}
