package requester

import (
	"go.uber.org/fx"
)

// Module provides the shared HTTP requester
var Module = fx.Module("requester",
	fx.Provide(
		NewHTTPRequester,
	),
)
