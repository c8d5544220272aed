package stream

import (
	"context"

	"github.com/ferndesk/roomscribe/internal/transcript"
)

// Publisher emits finalized transcript events onto an event stream for
// downstream consumers. Publish failures are logged by the implementation
// and never escalate.
type Publisher interface {
	Publish(ctx context.Context, ev transcript.Event)
}
