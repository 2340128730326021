package auth

import (
	"context"

	"github.com/brizzai/desktop-auth/internal/auth/autherr"
	"github.com/brizzai/desktop-auth/internal/identity"
	"github.com/brizzai/desktop-auth/internal/logger"
	"github.com/brizzai/desktop-auth/internal/session"
	"go.uber.org/zap"
)

// SignUpResult reports the outcome of SignUpWithEmail. When
// PendingConfirmation is set there is no session and the user must confirm
// their address before signing in.
type SignUpResult struct {
	Session             *session.Session
	PendingConfirmation bool
	Email               string
}

// SignInWithEmail signs in with the identity backend and persists the
// session, tokens included.
func (s *Service) SignInWithEmail(ctx context.Context, email, password string) (*session.Session, error) {
	if err := s.cfg.ValidateIdentity(); err != nil {
		return nil, err
	}
	if err := s.begin(true); err != nil {
		return nil, err
	}

	idSess, err := s.identity.SignInWithPassword(ctx, email, password)
	if err != nil {
		logger.Info("email sign-in failed", zap.String("code", string(autherr.CodeOf(err))))
		s.finish(nil, false)
		return nil, err
	}

	sess := sessionFromIdentity(idSess, nil)
	if err := s.persist(sess); err != nil {
		s.finish(nil, false)
		return nil, err
	}

	s.finish(sess, true)
	return sess.Clone(), nil
}

// SignUpWithEmail registers an account. A backend that requires email
// confirmation yields PendingConfirmation and leaves the state unchanged.
func (s *Service) SignUpWithEmail(ctx context.Context, email, password, displayName string) (*SignUpResult, error) {
	if err := s.cfg.ValidateIdentity(); err != nil {
		return nil, err
	}
	if err := s.begin(true); err != nil {
		return nil, err
	}

	res, err := s.identity.SignUp(ctx, email, password, displayName)
	if err != nil {
		logger.Info("email sign-up failed", zap.String("code", string(autherr.CodeOf(err))))
		s.finish(nil, false)
		return nil, err
	}

	if res.PendingConfirmation() {
		s.finish(nil, false)
		return &SignUpResult{PendingConfirmation: true, Email: email}, nil
	}

	sess := sessionFromIdentity(res.Session, nil)
	if err := s.persist(sess); err != nil {
		s.finish(nil, false)
		return nil, err
	}

	s.finish(sess, true)
	return &SignUpResult{Session: sess.Clone(), Email: sess.Email}, nil
}

// sessionFromIdentity builds a fresh email session. onboarding is used when
// the backend's metadata carries no flag.
func sessionFromIdentity(idSess *identity.Session, onboarding *bool) *session.Session {
	u := idSess.User
	if flag := u.OnboardingCompleted(); flag != nil {
		onboarding = flag
	}
	return &session.Session{
		UserID:              u.ID,
		Email:               u.Email,
		DisplayName:         u.DisplayName(),
		AvatarURL:           u.AvatarURL(),
		AuthMethod:          session.AuthMethodEmail,
		AccessToken:         idSess.AccessToken,
		RefreshToken:        idSess.RefreshToken,
		OnboardingCompleted: onboarding,
	}
}
