package rtc

import (
	"github.com/ferndesk/roomscribe/internal/config"
	"github.com/ferndesk/roomscribe/internal/rtc"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (rtc.CredentialProvider, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewTokenProvider(c.LiveKitAPIKey, c.LiveKitAPISecret), nil
	})
	do.Provide(injector, func(i do.Injector) (rtc.Connector, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewConnector(c.LiveKitURL, c.SampleRate), nil
	})
}
