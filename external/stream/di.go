package stream

import (
	"github.com/ferndesk/roomscribe/internal/config"
	"github.com/ferndesk/roomscribe/internal/stream"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (stream.Publisher, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewKafkaPublisher(c.KafkaBrokers, c.KafkaTopic), nil
	})
}
