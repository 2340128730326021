package auth

import (
	"context"
	"time"

	"github.com/brizzai/desktop-auth/internal/auth/autherr"
	"github.com/brizzai/desktop-auth/internal/config"
	"github.com/brizzai/desktop-auth/internal/logger"
	"github.com/brizzai/desktop-auth/internal/session"
	"go.uber.org/zap"
)

// RestorerDeps are the collaborators of a Restorer. Identity may be nil
// when IdentityConfigured is false.
type RestorerDeps struct {
	Store              session.Store
	Journal            session.Journal
	Identity           IdentityBackend
	IdentityConfigured bool
	Relay              RelayCleaner
	Timeout            time.Duration
}

// Restorer turns the persisted session into the startup state.
type Restorer struct {
	store              session.Store
	journal            session.Journal
	identity           IdentityBackend
	identityConfigured bool
	relay              RelayCleaner
	timeout            time.Duration
}

func NewRestorer(deps RestorerDeps) *Restorer {
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = config.DefaultRestoreTimeout
	}
	return &Restorer{
		store:              deps.Store,
		journal:            deps.Journal,
		identity:           deps.Identity,
		identityConfigured: deps.IdentityConfigured,
		relay:              deps.Relay,
		timeout:            timeout,
	}
}

// Restore returns the session to start with, or nil for signed out. A
// session whose tokens the identity backend rejects is deleted; one that
// could not be checked is kept on disk. Failures,
// panics included, are logged and never returned.
func (r *Restorer) Restore(ctx context.Context) (restored *session.Session) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			logger.Error("session restore panicked, starting signed out", zap.Any("panic", p))
			restored = nil
		}
	}()

	r.clearAbandonedAttempt(ctx)

	stored, err := r.store.Get()
	if err != nil {
		r.invalidate("stored session is unreadable", err)
		return nil
	}
	if stored == nil {
		logger.Debug("no stored session")
		return nil
	}

	if !stored.HasTokens() {
		logger.Info("restored session", zap.String("auth_method", string(stored.AuthMethod)),
			logger.Fingerprint("user_id", stored.UserID))
		return stored
	}

	if !r.identityConfigured || r.identity == nil {
		r.invalidate("identity backend is not configured", nil)
		return nil
	}

	idSess, err := r.identity.SetSession(ctx, stored.AccessToken, stored.RefreshToken)
	if err != nil {
		if autherr.HasCode(err, autherr.CodeSessionExpired) {
			r.invalidate("identity backend rejected stored tokens", err)
			return nil
		}
		// Nothing was rejected. Start signed out but leave the record for the
		// next start to validate.
		logger.Warn("identity backend unavailable, starting signed out",
			zap.String("code", string(autherr.CodeOf(err))), zap.Error(err))
		return nil
	}

	next := sessionFromIdentity(idSess, stored.OnboardingCompleted)
	if err := r.store.Set(next); err != nil {
		logger.Error("failed to store refreshed session", zap.Error(err))
		return nil
	}
	if err := r.store.Save(); err != nil {
		logger.Error("failed to save refreshed session", zap.Error(err))
		return nil
	}

	logger.Info("restored session", zap.String("auth_method", string(next.AuthMethod)),
		logger.Fingerprint("user_id", next.UserID))
	return next
}

// clearAbandonedAttempt cleans up after a process that exited during a
// browser sign-in.
func (r *Restorer) clearAbandonedAttempt(ctx context.Context) {
	attempt, err := r.journal.Pending()
	if err != nil {
		logger.Warn("attempt journal unreadable, discarding it", zap.Error(err))
	}
	if attempt != nil {
		logger.Warn("previous sign-in attempt was abandoned",
			zap.String("attempt_id", attempt.ID),
			zap.Time("started_at", attempt.StartedAt),
			logger.Fingerprint("state", attempt.State),
		)
		if r.relay != nil && attempt.State != "" {
			if err := r.relay.Clear(ctx, attempt.State); err != nil {
				logger.Debug("relay cleanup for abandoned attempt failed", zap.Error(err))
			}
		}
	}
	if attempt != nil || err != nil {
		if err := r.journal.Clear(); err != nil {
			logger.Warn("failed to clear attempt journal", zap.Error(err))
		}
	}
}

func (r *Restorer) invalidate(reason string, cause error) {
	invalidated := autherr.Wrap(autherr.CodeRestoreInvalidated, reason, cause)
	logger.Warn("discarding stored session", zap.String("code", string(invalidated.Code)), zap.Error(invalidated))

	if err := r.store.Delete(); err != nil {
		logger.Error("failed to delete stored session", zap.Error(err))
		return
	}
	if err := r.store.Save(); err != nil {
		logger.Error("failed to save store after discarding session", zap.Error(err))
	}
}
