// Package audio implements the voice activity gate: fixed-size chunking of
// raw audio samples, RMS-based speech classification, and PCM conversion.
package audio

import "math"

const (
	// DefaultChunkSamples is about 300ms at 16kHz.
	DefaultChunkSamples = 4800
	// DefaultSpeechRMSThreshold is tuned for sensitivity over precision:
	// a forwarded silence chunk is cheap, a dropped speech chunk loses
	// transcript.
	DefaultSpeechRMSThreshold = 0.01
)

// ChunkBuffer accumulates normalized mono samples and emits fixed-size
// chunks. Partial tail samples are retained across calls until the next
// AddSamples fills the chunk or Flush is called.
type ChunkBuffer struct {
	chunkSize int
	buf       []float32
	filled    int
}

func NewChunkBuffer(chunkSize int) *ChunkBuffer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSamples
	}
	return &ChunkBuffer{
		chunkSize: chunkSize,
		buf:       make([]float32, chunkSize),
	}
}

// ChunkSize returns the fixed chunk size in samples.
func (b *ChunkBuffer) ChunkSize() int {
	return b.chunkSize
}

// AddSamples appends samples to the buffer and returns a copy of every
// chunk completed by this call, in arrival order.
func (b *ChunkBuffer) AddSamples(samples []float32) [][]float32 {
	var chunks [][]float32
	for len(samples) > 0 {
		n := copy(b.buf[b.filled:], samples)
		b.filled += n
		samples = samples[n:]
		if b.filled == b.chunkSize {
			chunk := make([]float32, b.chunkSize)
			copy(chunk, b.buf)
			chunks = append(chunks, chunk)
			b.filled = 0
		}
	}
	return chunks
}

// Flush returns the retained partial chunk, or nil if the buffer is empty.
// Used at stream teardown; trailing partial audio is otherwise dropped.
func (b *ChunkBuffer) Flush() []float32 {
	if b.filled == 0 {
		return nil
	}
	tail := make([]float32, b.filled)
	copy(tail, b.buf[:b.filled])
	b.filled = 0
	return tail
}

// Gate classifies chunks as speech or silence by RMS energy.
type Gate struct {
	threshold float64
}

func NewGate(threshold float64) *Gate {
	if threshold <= 0 {
		threshold = DefaultSpeechRMSThreshold
	}
	return &Gate{threshold: threshold}
}

// IsSpeech reports whether the chunk's RMS energy exceeds the threshold.
func (g *Gate) IsSpeech(chunk []float32) bool {
	return RMS(chunk) > g.threshold
}

// RMS computes the root-mean-square energy of a chunk.
func RMS(chunk []float32) float64 {
	if len(chunk) == 0 {
		return 0
	}
	var sum float64
	for _, s := range chunk {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(chunk)))
}

// PCM16ToFloat converts signed 16-bit PCM samples to normalized floats.
// Positive and negative halves use different scale factors so that the
// full integer range maps into [-1, 1].
func PCM16ToFloat(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		if s >= 0 {
			out[i] = float32(s) / 32767.0
		} else {
			out[i] = float32(s) / 32768.0
		}
	}
	return out
}

// FloatToPCM16 converts normalized floats to signed 16-bit PCM, clamping
// to [-1, 1]. The asymmetric scale avoids overflow at exactly +1.0.
func FloatToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		if s >= 0 {
			out[i] = int16(s * 32767.0)
		} else {
			out[i] = int16(s * 32768.0)
		}
	}
	return out
}
