package identity

import "go.uber.org/fx"

// Module provides the identity backend client
var Module = fx.Module("identity",
	fx.Provide(NewClient),
)
