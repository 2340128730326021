package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/brizzai/desktop-auth/internal/auth/models"
	"github.com/brizzai/desktop-auth/internal/backend"
	"github.com/brizzai/desktop-auth/internal/config"
	"github.com/brizzai/desktop-auth/internal/identity"
	"github.com/brizzai/desktop-auth/internal/relay"
	"github.com/brizzai/desktop-auth/internal/session"
)

type mockProvider struct {
	mu         sync.Mutex
	exchanged  []string
	fetched    []string
	exchangeFn func(code string) (*oauth2.Token, error)
	profile    *models.UserInfo
	profileErr error
}

func (m *mockProvider) AuthURL(state string) string {
	return "https://accounts.example.com/o/oauth2/auth?state=" + state
}

func (m *mockProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	m.mu.Lock()
	m.exchanged = append(m.exchanged, code)
	m.mu.Unlock()
	if m.exchangeFn != nil {
		return m.exchangeFn(code)
	}
	return &oauth2.Token{AccessToken: "provider-access-" + code}, nil
}

func (m *mockProvider) FetchProfile(ctx context.Context, accessToken string) (*models.UserInfo, error) {
	m.mu.Lock()
	m.fetched = append(m.fetched, accessToken)
	m.mu.Unlock()
	if m.profileErr != nil {
		return nil, m.profileErr
	}
	if m.profile != nil {
		p := *m.profile
		return &p, nil
	}
	return &models.UserInfo{ID: "g-123", Email: "ada@example.com", Name: "Ada Lovelace", Picture: "https://img/ada.png"}, nil
}

type sequenceStates struct {
	mu sync.Mutex
	n  int
}

func (g *sequenceStates) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("state-%d", g.n), nil
}

// mockPoller returns outcome, or blocks until release is closed or ctx ends
// when release is set.
type mockPoller struct {
	mu      sync.Mutex
	polled  []string
	outcome *relay.Outcome
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func (m *mockPoller) Poll(ctx context.Context, state string) (*relay.Outcome, error) {
	m.mu.Lock()
	m.polled = append(m.polled, state)
	m.mu.Unlock()
	if m.started != nil {
		m.once.Do(func() { close(m.started) })
	}
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.outcome == nil {
		return &relay.Outcome{Kind: relay.OutcomeSucceeded, Code: "c1", Attempts: 1}, nil
	}
	return m.outcome, nil
}

func (m *mockPoller) Polled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.polled...)
}

type mockCleaner struct {
	mu      sync.Mutex
	cleared []string
}

func (m *mockCleaner) Clear(ctx context.Context, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = append(m.cleared, state)
	return nil
}

type mockLinker struct {
	mu     sync.Mutex
	linked []models.UserInfo
	user   *backend.LinkedUser
	err    error
}

func (m *mockLinker) Link(ctx context.Context, profile *models.UserInfo) (*backend.LinkedUser, error) {
	m.mu.Lock()
	m.linked = append(m.linked, *profile)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.user != nil {
		u := *m.user
		return &u, nil
	}
	return &backend.LinkedUser{ID: "u-1"}, nil
}

type mockLauncher struct {
	opened []string
	err    error
}

func (m *mockLauncher) Open(url string) error {
	m.opened = append(m.opened, url)
	return m.err
}

type mockIdentity struct {
	mu           sync.Mutex
	signInFn     func(email, password string) (*identity.Session, error)
	signUpFn     func(email, password, displayName string) (*identity.SignUpResult, error)
	setSessionFn func(ctx context.Context, access, refresh string) (*identity.Session, error)
	signOutErr   error
	signedOut    []string
	setSessions  [][2]string
	listeners    int
}

func (m *mockIdentity) SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	return m.signInFn(email, password)
}

func (m *mockIdentity) SignUp(ctx context.Context, email, password, displayName string) (*identity.SignUpResult, error) {
	return m.signUpFn(email, password, displayName)
}

func (m *mockIdentity) SetSession(ctx context.Context, access, refresh string) (*identity.Session, error) {
	m.mu.Lock()
	m.setSessions = append(m.setSessions, [2]string{access, refresh})
	m.mu.Unlock()
	return m.setSessionFn(ctx, access, refresh)
}

func (m *mockIdentity) SignOut(ctx context.Context, access string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signedOut = append(m.signedOut, access)
	return m.signOutErr
}

func (m *mockIdentity) OnAuthStateChange(fn func(identity.Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners++
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.listeners--
	}
}

func (m *mockIdentity) Listeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listeners
}

func identitySession(access, refresh string) *identity.Session {
	return &identity.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		User: &identity.User{
			ID:           "id-7",
			Email:        "a@b.com",
			UserMetadata: map[string]interface{}{"display_name": "Ann"},
		},
	}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.OAuth.ClientID = "client-id"
	cfg.OAuth.ClientSecret = "client-secret"
	cfg.OAuth.RedirectURI = "https://relay.example.com/oauth/callback"
	cfg.Relay.BaseURL = "https://relay.example.com"
	cfg.Backend.BaseURL = "https://api.example.com"
	cfg.Identity.URL = "https://id.example.com"
	cfg.Identity.PublicKey = "anon-key"
	cfg.Store.Backend = config.StoreBackendMemory
	return cfg
}

// harness wires a Service to mocks and records every published snapshot.
type harness struct {
	svc      *Service
	cfg      *config.Config
	provider *mockProvider
	poller   *mockPoller
	cleaner  *mockCleaner
	linker   *mockLinker
	launcher *mockLauncher
	identity *mockIdentity
	store    *session.MemoryStore
	journal  *session.MemoryJournal

	mu        sync.Mutex
	snapshots []Snapshot
}

type harnessOption func(*harness)

func withConfig(cfg *config.Config) harnessOption {
	return func(h *harness) { h.cfg = cfg }
}

func withStore(store *session.MemoryStore) harnessOption {
	return func(h *harness) { h.store = store }
}

func newHarness(opts ...harnessOption) *harness {
	h := &harness{
		cfg:      testConfig(),
		provider: &mockProvider{},
		poller:   &mockPoller{},
		cleaner:  &mockCleaner{},
		linker:   &mockLinker{},
		launcher: &mockLauncher{},
		identity: &mockIdentity{},
		store:    session.NewMemoryStore(),
		journal:  session.NewMemoryJournal(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.svc = NewService(Deps{
		Config:   h.cfg,
		Provider: h.provider,
		States:   &sequenceStates{},
		Poller:   h.poller,
		Relay:    h.cleaner,
		Linker:   h.linker,
		Identity: h.identity,
		Launcher: h.launcher,
		Store:    h.store,
		Journal:  h.journal,
		Now:      func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	h.svc.Subscribe(func(s Snapshot) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.snapshots = append(h.snapshots, s)
	})
	return h
}

func (h *harness) Snapshots() []Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Snapshot(nil), h.snapshots...)
}

func (h *harness) last() Snapshot {
	snaps := h.Snapshots()
	if len(snaps) == 0 {
		return Snapshot{}
	}
	return snaps[len(snaps)-1]
}
