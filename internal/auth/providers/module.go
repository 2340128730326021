package providers

import "go.uber.org/fx"

// Module provides the Google provider as the sign-in Provider
var Module = fx.Module("providers",
	fx.Provide(
		fx.Annotate(
			NewGoogleProvider,
			fx.As(new(Provider)),
		),
	),
)
