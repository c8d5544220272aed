package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ferndesk/roomscribe/internal/audio"
	"github.com/ferndesk/roomscribe/internal/metrics"
	"github.com/ferndesk/roomscribe/internal/rtc"
	"github.com/ferndesk/roomscribe/internal/transcriber"
)

// ParticipantHandler bridges one participant's audio subscription to one
// transcription stream, gating chunks through the voice activity gate.
// Speech duration only ever grows while the handler is live; it is folded
// into the room total when the handler is destroyed.
type ParticipantHandler struct {
	roomID   string
	identity string
	name     string

	buffer  *audio.ChunkBuffer
	gate    *audio.Gate
	adapter *transcriber.Adapter

	sampleRate int

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	speechDuration time.Duration
	lastSpeechAt   time.Time
}

func newParticipantHandler(roomID string, p rtc.ParticipantInfo, adapter *transcriber.Adapter, sampleRate, chunkSamples int, threshold float64) *ParticipantHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &ParticipantHandler{
		roomID:     roomID,
		identity:   p.Identity,
		name:       p.Name,
		buffer:     audio.NewChunkBuffer(chunkSamples),
		gate:       audio.NewGate(threshold),
		adapter:    adapter,
		sampleRate: sampleRate,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// ProcessFrame feeds one raw audio frame through the gate. Speech chunks
// are forwarded to the transcription stream, lazily reconnecting it when
// the engine closed it; a failed reconnect drops only the current chunk.
// Silence chunks are dropped without touching the stream.
func (h *ParticipantHandler) ProcessFrame(frame rtc.AudioFrame) {
	if h.ctx.Err() != nil {
		return
	}
	chunks := h.buffer.AddSamples(audio.PCM16ToFloat(frame.Samples))
	for _, chunk := range chunks {
		if !h.gate.IsSpeech(chunk) {
			metrics.Default.ChunksSilence.Inc()
			continue
		}
		metrics.Default.ChunksSpeech.Inc()

		if !h.adapter.IsActive() {
			metrics.Default.AdapterReconnects.Inc()
			if err := h.adapter.Connect(h.ctx); err != nil {
				metrics.Default.AdapterReconnectErrors.Inc()
				metrics.Default.ChunksDropped.Inc()
				slog.Warn("reconnect failed, dropping chunk",
					"room_id", h.roomID, "participant_id", h.identity, "error", err)
				continue
			}
		}

		h.adapter.SendAudio(audio.FloatToPCM16(chunk))
		metrics.Default.ChunksForwarded.Inc()

		dur := chunkDuration(len(chunk), h.sampleRate)
		h.mu.Lock()
		h.speechDuration += dur
		h.lastSpeechAt = time.Now()
		h.mu.Unlock()
		metrics.Default.SpeechSeconds.Add(dur.Seconds())
	}
}

// SpeechDuration returns the cumulative speech duration forwarded so far.
func (h *ParticipantHandler) SpeechDuration() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.speechDuration
}

// LastSpeechAt returns when the handler last forwarded speech, or the zero
// time if it never has.
func (h *ParticipantHandler) LastSpeechAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastSpeechAt
}

// Done is closed once the handler's audio subscription is cancelled.
func (h *ParticipantHandler) Done() <-chan struct{} {
	return h.ctx.Done()
}

// Stop cancels the audio subscription before closing the transcription
// stream, so no frame in flight is processed for a departed participant.
func (h *ParticipantHandler) Stop() {
	h.cancel()
	h.adapter.Close()
}

func chunkDuration(sampleCount, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(sampleCount) / float64(sampleRate) * float64(time.Second))
}
