package auth

import (
	"context"

	"github.com/brizzai/desktop-auth/internal/auth/providers"
	"github.com/brizzai/desktop-auth/internal/auth/state"
	"github.com/brizzai/desktop-auth/internal/backend"
	"github.com/brizzai/desktop-auth/internal/browser"
	"github.com/brizzai/desktop-auth/internal/config"
	"github.com/brizzai/desktop-auth/internal/identity"
	"github.com/brizzai/desktop-auth/internal/relay"
	"github.com/brizzai/desktop-auth/internal/session"
	"go.uber.org/fx"
)

type ServiceParams struct {
	fx.In

	Config   *config.Config
	Provider providers.Provider
	States   state.Generator
	Poller   *relay.Poller
	Relay    *relay.Client
	Linker   *backend.Linker
	Identity *identity.Client
	Launcher browser.Launcher
	Store    session.Store
	Journal  session.Journal
}

// NewServiceFromParams builds the service from the fx graph.
func NewServiceFromParams(lc fx.Lifecycle, p ServiceParams) *Service {
	s := NewService(Deps{
		Config:   p.Config,
		Provider: p.Provider,
		States:   p.States,
		Poller:   p.Poller,
		Relay:    p.Relay,
		Linker:   p.Linker,
		Identity: p.Identity,
		Launcher: p.Launcher,
		Store:    p.Store,
		Journal:  p.Journal,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			s.Close()
			return nil
		},
	})
	return s
}

// Module provides the authentication service
var Module = fx.Module("auth",
	fx.Provide(NewServiceFromParams),
)
