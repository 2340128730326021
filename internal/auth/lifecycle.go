package auth

import (
	"context"

	"github.com/brizzai/desktop-auth/internal/auth/autherr"
	"github.com/brizzai/desktop-auth/internal/auth/models"
	"github.com/brizzai/desktop-auth/internal/logger"
	"github.com/brizzai/desktop-auth/internal/session"
	"go.uber.org/zap"
)

// Restore loads the persisted session at startup. It never fails the
// caller: anything wrong with the stored session degrades to signed out.
func (s *Service) Restore(ctx context.Context) (*session.Session, error) {
	if err := s.begin(true); err != nil {
		return nil, err
	}
	sess := s.restorer.Restore(ctx)
	s.finish(sess, true)
	return sess.Clone(), nil
}

// SignOut forgets the current session, and any stored record that restore
// kept without activating. The store is cleared before the in-memory state;
// if clearing fails the session stays and the error is returned.
func (s *Service) SignOut(ctx context.Context) error {
	if err := s.begin(false); err != nil {
		return err
	}
	cur := s.CurrentUser()

	target := cur
	if target == nil {
		stored, err := s.store.Get()
		if err != nil {
			logger.Debug("stored session unreadable, deleting it", zap.Error(err))
		}
		target = stored
	}

	if target != nil && target.AuthMethod == session.AuthMethodEmail && target.HasTokens() && s.cfg.Identity.Configured() {
		if err := s.identity.SignOut(ctx, target.AccessToken); err != nil {
			logger.Warn("identity sign-out failed, clearing local session anyway", zap.Error(err))
		}
	}

	if err := s.store.Delete(); err != nil {
		s.finish(nil, false)
		return autherr.Wrap(autherr.CodeStore, "failed to delete session", err)
	}
	if err := s.store.Save(); err != nil {
		s.finish(nil, false)
		return autherr.Wrap(autherr.CodeStore, "failed to save session store", err)
	}

	if target != nil {
		logger.Info("signed out", logger.Fingerprint("user_id", target.UserID))
	}
	s.finish(nil, true)
	return nil
}

// RefreshUser re-validates the current session and replaces it with a fresh
// copy: email sessions through the identity backend (rotating tokens),
// Google sessions through the backend linker. It is a no-op when signed
// out.
func (s *Service) RefreshUser(ctx context.Context) (*session.Session, error) {
	if err := s.begin(false); err != nil {
		return nil, err
	}
	cur := s.CurrentUser()
	if cur == nil {
		s.finish(nil, false)
		return nil, nil
	}

	next, err := s.refreshed(ctx, cur)
	if err == nil {
		err = s.persist(next)
	}
	if err != nil {
		logger.Warn("refreshing user failed", zap.String("code", string(autherr.CodeOf(err))), zap.Error(err))
		s.finish(nil, false)
		return nil, err
	}

	s.finish(next, true)
	return next.Clone(), nil
}

func (s *Service) refreshed(ctx context.Context, cur *session.Session) (*session.Session, error) {
	switch cur.AuthMethod {
	case session.AuthMethodEmail:
		if err := s.cfg.ValidateIdentity(); err != nil {
			return nil, err
		}
		if !cur.HasTokens() {
			return nil, autherr.New(autherr.CodeSessionExpired, "email session has no tokens")
		}
		idSess, err := s.identity.SetSession(ctx, cur.AccessToken, cur.RefreshToken)
		if err != nil {
			return nil, err
		}
		return sessionFromIdentity(idSess, cur.OnboardingCompleted), nil

	case session.AuthMethodGoogle:
		linked, err := s.linker.Link(ctx, &models.UserInfo{
			ID:      cur.ExternalProviderID,
			Email:   cur.Email,
			Name:    cur.DisplayName,
			Picture: cur.AvatarURL,
		})
		if err != nil {
			return nil, err
		}
		onboarding := linked.OnboardingCompleted
		if onboarding == nil {
			onboarding = cur.OnboardingCompleted
		}
		return &session.Session{
			UserID:              linked.ID,
			Email:               cur.Email,
			DisplayName:         cur.DisplayName,
			AvatarURL:           cur.AvatarURL,
			AuthMethod:          session.AuthMethodGoogle,
			ExternalProviderID:  cur.ExternalProviderID,
			OnboardingCompleted: onboarding,
		}, nil

	default:
		return nil, autherr.Newf(autherr.CodeSessionExpired, "unknown auth method %q", cur.AuthMethod)
	}
}
