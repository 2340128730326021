package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brizzai/desktop-auth/internal/auth/autherr"
	"github.com/brizzai/desktop-auth/internal/config"
	"github.com/brizzai/desktop-auth/internal/identity"
	"github.com/brizzai/desktop-auth/internal/requester"
	"github.com/brizzai/desktop-auth/internal/session"
)

func googleSession() *session.Session {
	return &session.Session{
		UserID:             "u-1",
		Email:              "ada@example.com",
		DisplayName:        "Ada",
		AuthMethod:         session.AuthMethodGoogle,
		ExternalProviderID: "g-123",
	}
}

func emailSession() *session.Session {
	return &session.Session{
		UserID:       "id-7",
		Email:        "a@b.com",
		DisplayName:  "Ann",
		AuthMethod:   session.AuthMethodEmail,
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	}
}

type restoreFixture struct {
	store    *session.MemoryStore
	journal  *session.MemoryJournal
	identity *mockIdentity
	cleaner  *mockCleaner
}

func newRestoreFixture(stored *session.Session) *restoreFixture {
	return &restoreFixture{
		store:    session.NewMemoryStoreWith(stored),
		journal:  session.NewMemoryJournal(),
		identity: &mockIdentity{},
		cleaner:  &mockCleaner{},
	}
}

func (f *restoreFixture) restorer(configured bool) *Restorer {
	return NewRestorer(RestorerDeps{
		Store:              f.store,
		Journal:            f.journal,
		Identity:           f.identity,
		IdentityConfigured: configured,
		Relay:              f.cleaner,
		Timeout:            time.Second,
	})
}

func TestRestore_Empty(t *testing.T) {
	f := newRestoreFixture(nil)
	assert.Nil(t, f.restorer(true).Restore(context.Background()))
	assert.Empty(t, f.identity.setSessions)
}

func TestRestore_SessionWithoutTokensIsTrusted(t *testing.T) {
	f := newRestoreFixture(googleSession())

	got := f.restorer(false).Restore(context.Background())
	assert.Equal(t, googleSession(), got)
	assert.Empty(t, f.identity.setSessions)
	assert.Equal(t, googleSession(), f.store.Saved())
}

func TestRestore_TokensValidated(t *testing.T) {
	f := newRestoreFixture(emailSession())
	f.identity.setSessionFn = func(ctx context.Context, access, refresh string) (*identity.Session, error) {
		return identitySession("access-2", "refresh-2"), nil
	}

	got := f.restorer(true).Restore(context.Background())
	require.NotNil(t, got)
	assert.Equal(t, [][2]string{{"access-1", "refresh-1"}}, f.identity.setSessions)
	assert.Equal(t, "access-2", got.AccessToken)
	assert.Equal(t, "refresh-2", got.RefreshToken)
	assert.Equal(t, got, f.store.Saved(), "rotated tokens are persisted")
}

func TestRestore_RejectedSessionIsDeleted(t *testing.T) {
	f := newRestoreFixture(emailSession())
	f.identity.setSessionFn = func(context.Context, string, string) (*identity.Session, error) {
		return nil, autherr.New(autherr.CodeSessionExpired, "session has expired, please sign in again")
	}

	assert.Nil(t, f.restorer(true).Restore(context.Background()))
	got, err := f.store.Get()
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Nil(t, f.store.Saved())
}

func TestRestore_UncheckedSessionIsKept(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"unreachable", autherr.New(autherr.CodeTransientNetwork, "identity backend unreachable")},
		{"service unavailable", autherr.New(autherr.CodeTransientNetwork, "identity backend is unavailable, please try again later").
			WithContext("status", 503)},
		{"unexpected backend error", autherr.New(autherr.CodeIdentityBackend, "unprocessable")},
		{"cancelled", autherr.New(autherr.CodeCancelled, "identity request cancelled")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRestoreFixture(emailSession())
			f.identity.setSessionFn = func(context.Context, string, string) (*identity.Session, error) {
				return nil, tt.err
			}

			assert.Nil(t, f.restorer(true).Restore(context.Background()))
			got, err := f.store.Get()
			require.NoError(t, err)
			assert.Equal(t, emailSession(), got)
			assert.Equal(t, emailSession(), f.store.Saved())
		})
	}
}

func TestRestore_IdentityBackendOutageKeepsRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"message":"upstream unavailable"}`))
	}))
	defer srv.Close()

	client := identity.NewClient(&config.IdentityConfig{URL: srv.URL, PublicKey: "anon"}, requester.New(time.Second))
	f := newRestoreFixture(emailSession())
	r := NewRestorer(RestorerDeps{
		Store:              f.store,
		Journal:            f.journal,
		Identity:           client,
		IdentityConfigured: true,
		Relay:              f.cleaner,
		Timeout:            time.Second,
	})

	assert.Nil(t, r.Restore(context.Background()))
	got, err := f.store.Get()
	require.NoError(t, err)
	assert.Equal(t, emailSession(), got)
}

func TestRestore_IdentityNotConfiguredInvalidates(t *testing.T) {
	f := newRestoreFixture(emailSession())

	assert.Nil(t, f.restorer(false).Restore(context.Background()))
	assert.Nil(t, f.store.Saved())
	assert.Empty(t, f.identity.setSessions)
}

func TestRestore_InvalidRecordIsDeleted(t *testing.T) {
	half := emailSession()
	half.RefreshToken = ""
	f := newRestoreFixture(half)

	_, err := f.store.Get()
	require.ErrorIs(t, err, session.ErrSessionInvalid)

	assert.Nil(t, f.restorer(true).Restore(context.Background()))
	got, err := f.store.Get()
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Nil(t, f.store.Saved())
}

func TestRestore_AbandonedAttemptIsCleared(t *testing.T) {
	f := newRestoreFixture(googleSession())
	require.NoError(t, f.journal.Record(session.NewAttempt("state-old", time.Now())))

	got := f.restorer(true).Restore(context.Background())
	assert.Equal(t, googleSession(), got)
	assert.Equal(t, []string{"state-old"}, f.cleaner.cleared)

	pending, err := f.journal.Pending()
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestRestore_PanicDegradesToSignedOut(t *testing.T) {
	f := newRestoreFixture(emailSession())
	f.identity.setSessionFn = func(context.Context, string, string) (*identity.Session, error) {
		panic("unexpected nil")
	}

	assert.NotPanics(t, func() {
		assert.Nil(t, f.restorer(true).Restore(context.Background()))
	})
}

func TestRestore_IsBounded(t *testing.T) {
	f := newRestoreFixture(emailSession())
	f.identity.setSessionFn = func(ctx context.Context, _, _ string) (*identity.Session, error) {
		<-ctx.Done()
		return nil, autherr.Wrap(autherr.CodeTransientNetwork, "identity backend unreachable", ctx.Err())
	}
	r := NewRestorer(RestorerDeps{
		Store:              f.store,
		Journal:            f.journal,
		Identity:           f.identity,
		IdentityConfigured: true,
		Relay:              f.cleaner,
		Timeout:            50 * time.Millisecond,
	})

	start := time.Now()
	assert.Nil(t, r.Restore(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestServiceRestore(t *testing.T) {
	h := newHarness(withStore(session.NewMemoryStoreWith(googleSession())))

	sess, err := h.svc.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, googleSession(), sess)
	assert.Equal(t, googleSession(), h.svc.CurrentUser())
	assert.False(t, h.svc.IsLoading())

	snaps := h.Snapshots()
	require.Len(t, snaps, 2)
	assert.True(t, snaps[0].Loading)
	assert.Equal(t, PhaseSignedIn, snaps[1].Phase)
}

func TestServiceRestore_RejectedLeavesSignedOut(t *testing.T) {
	h := newHarness(withStore(session.NewMemoryStoreWith(emailSession())))
	h.identity.setSessionFn = func(context.Context, string, string) (*identity.Session, error) {
		return nil, autherr.New(autherr.CodeSessionExpired, "invalid refresh token")
	}

	sess, err := h.svc.Restore(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.Nil(t, h.svc.CurrentUser())
	assert.Nil(t, h.store.Saved())
	assert.Equal(t, PhaseSignedOut, h.last().Phase)
}
