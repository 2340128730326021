package backend

import "go.uber.org/fx"

// Module provides the backend linker
var Module = fx.Module("backend",
	fx.Provide(NewLinker),
)
