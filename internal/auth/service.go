// Package auth owns the signed-in state of the application. Service is the
// only writer of the current session: every sign-in path, sign-out, refresh
// and startup restore goes through it, and observers learn about changes
// through Subscribe.
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/brizzai/desktop-auth/internal/auth/autherr"
	"github.com/brizzai/desktop-auth/internal/auth/models"
	"github.com/brizzai/desktop-auth/internal/auth/providers"
	"github.com/brizzai/desktop-auth/internal/auth/state"
	"github.com/brizzai/desktop-auth/internal/backend"
	"github.com/brizzai/desktop-auth/internal/browser"
	"github.com/brizzai/desktop-auth/internal/config"
	"github.com/brizzai/desktop-auth/internal/identity"
	"github.com/brizzai/desktop-auth/internal/logger"
	"github.com/brizzai/desktop-auth/internal/relay"
	"github.com/brizzai/desktop-auth/internal/session"
	"go.uber.org/zap"
)

// RelayPoller waits for the relay to resolve a state.
type RelayPoller interface {
	Poll(ctx context.Context, state string) (*relay.Outcome, error)
}

// RelayCleaner removes a relay entry.
type RelayCleaner interface {
	Clear(ctx context.Context, state string) error
}

// BackendLinker resolves a provider identity to the backend's user.
type BackendLinker interface {
	Link(ctx context.Context, profile *models.UserInfo) (*backend.LinkedUser, error)
}

// IdentityBackend is the password identity service.
type IdentityBackend interface {
	SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error)
	SignUp(ctx context.Context, email, password, displayName string) (*identity.SignUpResult, error)
	SetSession(ctx context.Context, accessToken, refreshToken string) (*identity.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	OnAuthStateChange(fn func(identity.Event)) func()
}

// Phase is the coarse sign-in state.
type Phase int

const (
	PhaseSignedOut Phase = iota
	PhaseAuthenticating
	PhaseSignedIn
)

func (p Phase) String() string {
	switch p {
	case PhaseSignedOut:
		return "signed_out"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseSignedIn:
		return "signed_in"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of the runtime state. AuthURL is set while a
// browser sign-in waits for the user.
type Snapshot struct {
	Session *session.Session
	Loading bool
	Phase   Phase
	AuthURL string
}

// Listener receives a snapshot after every state change.
type Listener func(Snapshot)

// Deps are the collaborators of a Service.
type Deps struct {
	Config   *config.Config
	Provider providers.Provider
	States   state.Generator
	Poller   RelayPoller
	Relay    RelayCleaner
	Linker   BackendLinker
	Identity IdentityBackend
	Launcher browser.Launcher
	Store    session.Store
	Journal  session.Journal
	Now      func() time.Time
}

// Service is the authentication state machine.
type Service struct {
	cfg      *config.Config
	provider providers.Provider
	states   state.Generator
	poller   RelayPoller
	linker   BackendLinker
	identity IdentityBackend
	launcher browser.Launcher
	store    session.Store
	journal  session.Journal
	restorer *Restorer
	now      func() time.Time

	mu           sync.Mutex
	current      *session.Session
	loading      bool
	authenticate bool
	authURL      string
	listeners    map[int]Listener
	nextListener int
	stopAudit    func()
}

// NewService creates a signed-out service. Call Restore once at startup.
func NewService(deps Deps) *Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	s := &Service{
		cfg:       deps.Config,
		provider:  deps.Provider,
		states:    deps.States,
		poller:    deps.Poller,
		linker:    deps.Linker,
		identity:  deps.Identity,
		launcher:  deps.Launcher,
		store:     deps.Store,
		journal:   deps.Journal,
		now:       now,
		listeners: make(map[int]Listener),
	}
	s.restorer = NewRestorer(RestorerDeps{
		Store:              deps.Store,
		Journal:            deps.Journal,
		Identity:           deps.Identity,
		IdentityConfigured: deps.Config.Identity.Configured(),
		Relay:              deps.Relay,
		Timeout:            deps.Config.Session.RestoreTimeout,
	})
	if deps.Identity != nil {
		s.stopAudit = deps.Identity.OnAuthStateChange(auditIdentityEvent)
	}
	return s
}

// Close detaches the service from the identity backend's event stream.
func (s *Service) Close() {
	s.mu.Lock()
	stop := s.stopAudit
	s.stopAudit = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Subscribe registers l for every state change. The returned function
// removes it.
func (s *Service) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// CurrentUser returns a copy of the signed-in session, or nil.
func (s *Service) CurrentUser() *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// IsLoading reports whether an operation is in flight.
func (s *Service) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Snapshot returns the current runtime state.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Service) snapshotLocked() Snapshot {
	phase := PhaseSignedOut
	switch {
	case s.loading && s.authenticate:
		phase = PhaseAuthenticating
	case s.current != nil:
		phase = PhaseSignedIn
	}
	return Snapshot{
		Session: s.current.Clone(),
		Loading: s.loading,
		Phase:   phase,
		AuthURL: s.authURL,
	}
}

// begin claims the operation slot. Overlapping calls are rejected rather
// than queued. authenticate marks operations that show as Authenticating.
func (s *Service) begin(authenticate bool) error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return autherr.New(autherr.CodeOperationInProgress, "another authentication operation is in progress")
	}
	s.loading = true
	s.authenticate = authenticate
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return nil
}

// finish releases the operation slot. When replace is set the current
// session becomes sess, which must already be durable.
func (s *Service) finish(sess *session.Session, replace bool) {
	s.mu.Lock()
	if replace {
		s.current = sess.Clone()
	}
	s.loading = false
	s.authenticate = false
	s.authURL = ""
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
}

func (s *Service) setAuthURL(url string) {
	s.mu.Lock()
	s.authURL = url
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
}

func (s *Service) publish(snap Snapshot) {
	s.mu.Lock()
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.mu.Unlock()

	for _, l := range ls {
		l(snap)
	}
}

// persist makes sess durable. It must succeed before sess is published.
func (s *Service) persist(sess *session.Session) error {
	if err := s.store.Set(sess); err != nil {
		return autherr.Wrap(autherr.CodeStore, "failed to store session", err)
	}
	if err := s.store.Save(); err != nil {
		return autherr.Wrap(autherr.CodeStore, "failed to save session", err)
	}
	return nil
}

// contextError converts a context failure into a coded error, or returns
// nil when ctx is still live.
func contextError(ctx context.Context, cause error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return autherr.Wrap(autherr.CodeCancelled, "sign-in cancelled", cause)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return autherr.Wrap(autherr.CodeTimeout, "authentication timed out", cause)
	default:
		return nil
	}
}

func auditIdentityEvent(e identity.Event) {
	fields := []zap.Field{zap.String("event", string(e.Type))}
	if e.Session != nil && e.Session.User != nil {
		fields = append(fields, logger.Fingerprint("user_id", e.Session.User.ID))
	}
	logger.Info("identity auth state changed", fields...)
}
