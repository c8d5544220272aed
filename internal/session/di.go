package session

import (
	"time"

	"github.com/ferndesk/roomscribe/internal/bot"
	"github.com/ferndesk/roomscribe/internal/broadcast"
	"github.com/ferndesk/roomscribe/internal/config"
	"github.com/ferndesk/roomscribe/internal/forward"
	"github.com/ferndesk/roomscribe/internal/rtc"
	"github.com/ferndesk/roomscribe/internal/store"
	"github.com/ferndesk/roomscribe/internal/stream"
	"github.com/ferndesk/roomscribe/internal/transcriber"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Registry, error) {
		cfg := do.MustInvoke[*config.Config](i)
		st := do.MustInvoke[store.Store](i)
		fw := do.MustInvoke[forward.Forwarder](i)
		bc := do.MustInvoke[broadcast.Broadcaster](i)
		pub := do.MustInvoke[stream.Publisher](i)
		creds := do.MustInvoke[rtc.CredentialProvider](i)
		connector := do.MustInvoke[rtc.Connector](i)
		engine := do.MustInvoke[transcriber.Engine](i)

		newBot := func(roomID string, events bot.Events) RoomBot {
			return bot.New(bot.Config{
				RoomID:          roomID,
				BotIdentity:     cfg.BotIdentity,
				BotName:         cfg.BotName,
				Language:        cfg.DefaultLanguage,
				SampleRate:      cfg.SampleRate,
				ChunkSamples:    cfg.ChunkSamples,
				SpeechThreshold: cfg.SpeechRMSThreshold,
				RetryDelay:      time.Duration(cfg.JoinRetryDelaySec) * time.Second,
			}, creds, connector, engine, events)
		}
		maxDuration := time.Duration(cfg.MaxSessionDurationMin) * time.Minute
		return NewRegistry(newBot, st, fw, bc, pub, maxDuration), nil
	})
}
