package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ferndesk/roomscribe/internal/broadcast"
	"github.com/ferndesk/roomscribe/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do/v2"
)

const redisInitTimeout = 10 * time.Second

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (broadcast.Broadcaster, error) {
		c := do.MustInvoke[*config.Config](i)
		if c.RedisAddr == "" {
			slog.Info("redis not configured, live broadcast disabled")
			return NoopBroadcaster{}, nil
		}

		client := redis.NewClient(&redis.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
		})
		ctx, cancel := context.WithTimeout(context.Background(), redisInitTimeout)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		return NewRedisBroadcaster(client), nil
	})
}
