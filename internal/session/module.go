package session

import (
	"context"
	"fmt"

	"github.com/brizzai/desktop-auth/internal/config"
	"github.com/brizzai/desktop-auth/internal/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewStore opens the backend selected by cfg.
func NewStore(cfg *config.StoreConfig) (Store, error) {
	var codec Codec = PlainCodec{}
	if cfg.EncryptionKey != "" {
		c, err := NewPassphraseCodec(cfg.EncryptionKey)
		if err != nil {
			return nil, err
		}
		codec = c
	}

	switch cfg.Backend {
	case config.StoreBackendFile, "":
		return NewFileStore(cfg.Path, codec)
	case config.StoreBackendSQLite:
		return OpenSQLiteStore(cfg.Path, codec)
	case config.StoreBackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}

// NewJournal returns the attempt journal matching the store backend.
func NewJournal(cfg *config.StoreConfig) (Journal, error) {
	if cfg.Backend == config.StoreBackendMemory {
		return NewMemoryJournal(), nil
	}
	return NewFileJournal(cfg.JournalPath())
}

func registerClose(lc fx.Lifecycle, store Store) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close session store", zap.Error(err))
				return err
			}
			return nil
		},
	})
}

// Module provides the session store and attempt journal
var Module = fx.Module("session",
	fx.Provide(
		NewStore,
		NewJournal,
	),
	fx.Invoke(registerClose),
)
