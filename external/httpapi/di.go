package httpapi

import (
	"github.com/ferndesk/roomscribe/internal/config"
	"github.com/ferndesk/roomscribe/internal/session"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Server, error) {
		c := do.MustInvoke[*config.Config](i)
		registry := do.MustInvoke[*session.Registry](i)
		return NewServer(registry, c.LiveKitAPIKey, c.LiveKitAPISecret), nil
	})
}
