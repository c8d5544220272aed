package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ferndesk/roomscribe/internal/broadcast"
	"github.com/ferndesk/roomscribe/internal/transcript"
	"github.com/redis/go-redis/v9"
)

const (
	channelPrefix   = "roomscribe:transcripts:"
	latestKeyPrefix = "roomscribe:latest:"
	latestKeyTTL    = time.Hour
)

// RedisBroadcaster fans transcript events out over one pub/sub channel
// per room. The latest event is also kept under a keyed entry so a
// subscriber joining mid-room can render something immediately.
type RedisBroadcaster struct {
	client *redis.Client
}

func NewRedisBroadcaster(client *redis.Client) broadcast.Broadcaster {
	return &RedisBroadcaster{client: client}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, ev transcript.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal transcript event: %w", err)
	}
	if err := b.client.Publish(ctx, channelPrefix+ev.RoomID, payload).Err(); err != nil {
		return fmt.Errorf("publish to room channel: %w", err)
	}
	if err := b.client.Set(ctx, latestKeyPrefix+ev.RoomID, payload, latestKeyTTL).Err(); err != nil {
		return fmt.Errorf("store latest transcript: %w", err)
	}
	return nil
}

func (b *RedisBroadcaster) ReleaseRoom(ctx context.Context, roomID string) error {
	return b.client.Del(ctx, latestKeyPrefix+roomID).Err()
}

// Close releases the underlying Redis connection pool.
func (b *RedisBroadcaster) Close() error {
	return b.client.Close()
}

// NoopBroadcaster is used when no Redis address is configured.
type NoopBroadcaster struct{}

func (NoopBroadcaster) Publish(context.Context, transcript.Event) error { return nil }

func (NoopBroadcaster) ReleaseRoom(context.Context, string) error { return nil }
