package tui

import (
	"context"
	"io"

	"github.com/brizzai/desktop-auth/internal/auth"
	"github.com/brizzai/desktop-auth/internal/session"
	tea "github.com/charmbracelet/bubbletea"
)

// Subscriber is the part of the auth service the view listens to
type Subscriber interface {
	Subscribe(l auth.Listener) func()
}

// Operation is a sign-in call driven by the view
type Operation func(ctx context.Context) (*session.Session, error)

// RunSignIn runs op behind a spinner until it returns. Quitting the view
// cancels op; RunSignIn always waits for op to finish.
func RunSignIn(ctx context.Context, svc Subscriber, title string, out io.Writer, op Operation, opts ...tea.ProgramOption) (*session.Session, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts = append([]tea.ProgramOption{tea.WithOutput(out), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(NewSignInModel(title, cancel), opts...)

	unsubscribe := svc.Subscribe(func(s auth.Snapshot) {
		p.Send(SnapshotMsg(s))
	})
	defer unsubscribe()

	done := make(chan ResultMsg, 1)
	go func() {
		sess, err := op(ctx)
		res := ResultMsg{Session: sess, Err: err}
		done <- res
		p.Send(res)
	}()

	final, runErr := p.Run()
	if m, ok := final.(SignInModel); ok && m.Result() != nil {
		return m.Result().Session, m.Result().Err
	}

	cancel()
	res := <-done
	if res.Err == nil && runErr != nil {
		return res.Session, nil
	}
	return res.Session, res.Err
}
