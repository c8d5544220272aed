package forward

import (
	"github.com/ferndesk/roomscribe/internal/config"
	"github.com/ferndesk/roomscribe/internal/forward"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (forward.Forwarder, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewHTTPForwarder(c.ForwardURLs), nil
	})
}
