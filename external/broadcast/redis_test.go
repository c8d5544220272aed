package broadcast

import (
	"context"
	"io"
	"testing"

	"github.com/ferndesk/roomscribe/internal/transcript"
	"github.com/redis/go-redis/v9"
)

var _ io.Closer = (*RedisBroadcaster)(nil)

func TestRedisBroadcasterCloseReleasesClient(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:16379"})
	b := NewRedisBroadcaster(client).(*RedisBroadcaster)

	if err := b.Close(); err != nil {
		t.Fatalf("Close() = %v, want nil", err)
	}

	// The pool is gone, so the client rejects further commands.
	if err := client.Ping(context.Background()).Err(); err == nil {
		t.Error("expected ping to fail after Close")
	}
}

func TestNoopBroadcaster(t *testing.T) {
	var b NoopBroadcaster

	if err := b.Publish(context.Background(), transcript.Event{RoomID: "room-1"}); err != nil {
		t.Errorf("Publish() = %v, want nil", err)
	}
	if err := b.ReleaseRoom(context.Background(), "room-1"); err != nil {
		t.Errorf("ReleaseRoom() = %v, want nil", err)
	}
	if _, ok := any(b).(io.Closer); ok {
		t.Error("noop broadcaster must not advertise a Closer")
	}
}
