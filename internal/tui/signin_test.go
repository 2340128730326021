package tui

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brizzai/desktop-auth/internal/auth"
	"github.com/brizzai/desktop-auth/internal/session"
)

func update(t *testing.T, m SignInModel, msg tea.Msg) (SignInModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(SignInModel)
	require.True(t, ok)
	return model, cmd
}

func TestSignInModel_ShowsAuthURL(t *testing.T) {
	m := NewSignInModel("Sign in with Google", nil)
	assert.Contains(t, m.View(), "Starting sign-in")

	m, _ = update(t, m, SnapshotMsg(auth.Snapshot{
		Loading: true,
		Phase:   auth.PhaseAuthenticating,
		AuthURL: "https://accounts.example.com/auth?state=s1",
	}))

	view := m.View()
	assert.Contains(t, view, "Waiting for you to finish signing in")
	assert.Contains(t, view, "https://accounts.example.com/auth?state=s1")
	assert.Contains(t, view, "esc to cancel")
}

func TestSignInModel_Result(t *testing.T) {
	tests := []struct {
		name     string
		result   ResultMsg
		contains string
	}{
		{
			name:     "signed in",
			result:   ResultMsg{Session: &session.Session{UserID: "u-1", Email: "ada@example.com", DisplayName: "Ada"}},
			contains: "Signed in as Ada (ada@example.com)",
		},
		{
			name:     "failed",
			result:   ResultMsg{Err: errors.New("authentication timed out")},
			contains: "authentication timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, cmd := update(t, NewSignInModel("Sign in", nil), tt.result)
			require.NotNil(t, cmd)
			assert.IsType(t, tea.QuitMsg{}, cmd())
			require.NotNil(t, m.Result())
			assert.Equal(t, tt.result, *m.Result())
			assert.Contains(t, m.View(), tt.contains)
			assert.NotContains(t, m.View(), "esc to cancel")
		})
	}
}

func TestSignInModel_CancelKeys(t *testing.T) {
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyEsc},
		{Type: tea.KeyCtrlC},
		{Type: tea.KeyRunes, Runes: []rune("q")},
	} {
		t.Run(key.String(), func(t *testing.T) {
			calls := 0
			m := NewSignInModel("Sign in", func() { calls++ })
			m, _ = update(t, m, SnapshotMsg(auth.Snapshot{AuthURL: "https://x"}))

			m, cmd := update(t, m, key)
			assert.Nil(t, cmd, "the view waits for the operation to report back")
			assert.True(t, m.Cancelled)
			assert.Contains(t, m.View(), "Cancelling")
			assert.NotContains(t, m.View(), "https://x")

			m, _ = update(t, m, key)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestSignInModel_OtherKeysIgnored(t *testing.T) {
	calls := 0
	m := NewSignInModel("Sign in", func() { calls++ })
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	assert.Nil(t, cmd)
	assert.False(t, m.Cancelled)
	assert.Zero(t, calls)
}

type fakeSubscriber struct {
	mu        sync.Mutex
	listeners []auth.Listener
	removed   int
}

func (f *fakeSubscriber) Subscribe(l auth.Listener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, l)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.removed++
	}
}

func (f *fakeSubscriber) emit(s auth.Snapshot) {
	f.mu.Lock()
	ls := append([]auth.Listener(nil), f.listeners...)
	f.mu.Unlock()
	for _, l := range ls {
		l(s)
	}
}

func TestRunSignIn_ReturnsOperationResult(t *testing.T) {
	sub := &fakeSubscriber{}
	want := &session.Session{UserID: "u-1", Email: "ada@example.com", DisplayName: "Ada"}

	var out bytes.Buffer
	got, err := RunSignIn(context.Background(), sub, "Sign in", &out, func(ctx context.Context) (*session.Session, error) {
		sub.emit(auth.Snapshot{Loading: true, AuthURL: "https://x"})
		return want, nil
	}, tea.WithInput(nil))

	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, sub.removed)
}

func TestRunSignIn_ParentCancelStopsOperation(t *testing.T) {
	sub := &fakeSubscriber{}
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, err := RunSignIn(ctx, sub, "Sign in", &out, func(ctx context.Context) (*session.Session, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}, tea.WithInput(nil))
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("RunSignIn did not return after cancellation")
	}
}
