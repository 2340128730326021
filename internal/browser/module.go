package browser

import "go.uber.org/fx"

// Module provides the system browser launcher
var Module = fx.Module("browser",
	fx.Provide(
		fx.Annotate(
			NewSystemLauncher,
			fx.As(new(Launcher)),
		),
	),
)
