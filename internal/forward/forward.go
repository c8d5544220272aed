package forward

import (
	"context"

	"github.com/ferndesk/roomscribe/internal/transcript"
)

// Forwarder delivers finalized transcript events to zero or more external
// receivers. Delivery is best-effort: failures are logged by the
// implementation and never block or fail the pipeline.
type Forwarder interface {
	Forward(ctx context.Context, ev transcript.Event)
}
