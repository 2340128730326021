package auth

import (
	"context"

	"github.com/brizzai/desktop-auth/internal/auth/autherr"
	"github.com/brizzai/desktop-auth/internal/logger"
	"github.com/brizzai/desktop-auth/internal/relay"
	"github.com/brizzai/desktop-auth/internal/session"
	"go.uber.org/zap"
)

// SignInWithGoogle runs the browser sign-in. It opens the consent page,
// waits for the relay to receive the redirect, exchanges the code, links the
// profile with the backend and persists the resulting session. Cancelling
// ctx abandons the attempt.
func (s *Service) SignInWithGoogle(ctx context.Context) (*session.Session, error) {
	if err := s.cfg.ValidateGoogle(); err != nil {
		return nil, err
	}
	if err := s.begin(true); err != nil {
		return nil, err
	}

	sess, err := s.googleFlow(ctx)
	if err != nil {
		logger.Warn("Google sign-in failed", zap.String("code", string(autherr.CodeOf(err))), zap.Error(err))
		s.finish(nil, false)
		return nil, err
	}

	logger.Info("Google sign-in succeeded", logger.Fingerprint("user_id", sess.UserID))
	s.finish(sess, true)
	return sess.Clone(), nil
}

func (s *Service) googleFlow(ctx context.Context) (*session.Session, error) {
	st, err := s.states.Generate()
	if err != nil {
		return nil, err
	}
	log := logger.With(logger.Fingerprint("state", st))

	attempt := session.NewAttempt(st, s.now())
	if err := s.journal.Record(attempt); err != nil {
		log.Warn("failed to journal sign-in attempt", zap.Error(err))
	}
	defer func() {
		if err := s.journal.Clear(); err != nil {
			log.Warn("failed to clear sign-in attempt journal", zap.Error(err))
		}
	}()

	authURL := s.provider.AuthURL(st)
	s.setAuthURL(authURL)
	if err := s.launcher.Open(authURL); err != nil {
		log.Warn("could not open browser, waiting for the user to open the sign-in URL", zap.Error(err))
	}

	outcome, err := s.poller.Poll(ctx, st)
	if err != nil {
		if cerr := contextError(ctx, err); cerr != nil {
			return nil, cerr
		}
		return nil, autherr.Wrap(autherr.CodeCancelled, "sign-in abandoned", err)
	}

	switch outcome.Kind {
	case relay.OutcomeFailed:
		return nil, autherr.New(autherr.CodeProvider, outcome.Reason).
			WithContext("attempts", outcome.Attempts)
	case relay.OutcomeTimedOut:
		return nil, autherr.New(autherr.CodeTimeout, "authentication timed out").
			WithContext("reason", outcome.Reason).
			WithContext("attempts", outcome.Attempts)
	}

	token, err := s.provider.ExchangeCode(ctx, outcome.Code)
	if err != nil {
		return nil, s.stepError(ctx, err)
	}

	profile, err := s.provider.FetchProfile(ctx, token.AccessToken)
	if err != nil {
		return nil, s.stepError(ctx, err)
	}

	linked, err := s.linker.Link(ctx, profile)
	if err != nil {
		return nil, s.stepError(ctx, err)
	}

	// Provider tokens end here; a Google session is identified by the
	// backend user alone.
	sess := &session.Session{
		UserID:              linked.ID,
		Email:               profile.Email,
		DisplayName:         profile.DisplayName(),
		AvatarURL:           profile.Picture,
		AuthMethod:          session.AuthMethodGoogle,
		ExternalProviderID:  profile.ID,
		OnboardingCompleted: linked.OnboardingCompleted,
	}
	if err := s.persist(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// stepError prefers a cancellation over whatever error the interrupted step
// reported.
func (s *Service) stepError(ctx context.Context, err error) error {
	if cerr := contextError(ctx, err); cerr != nil {
		return cerr
	}
	return err
}
