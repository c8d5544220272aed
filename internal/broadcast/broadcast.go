package broadcast

import (
	"context"

	"github.com/ferndesk/roomscribe/internal/transcript"
)

// Broadcaster fans finalized transcript events out to live subscribers,
// one channel per room. Best-effort.
type Broadcaster interface {
	Publish(ctx context.Context, ev transcript.Event) error
	// ReleaseRoom drops any per-room broadcast state once the room's
	// session is stopped.
	ReleaseRoom(ctx context.Context, roomID string) error
}
