package relay

import (
	"github.com/brizzai/desktop-auth/internal/config"
	"go.uber.org/fx"
)

func newPoller(client *Client, cfg *config.RelayConfig) *Poller {
	return NewPoller(client, cfg, RealClock{})
}

// Module provides the relay client and poller
var Module = fx.Module("relay",
	fx.Provide(
		NewClient,
		newPoller,
	),
)
