// Package tui renders sign-in progress in the terminal.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/brizzai/desktop-auth/internal/auth"
	"github.com/brizzai/desktop-auth/internal/session"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// SnapshotMsg carries a state change from the auth service
type SnapshotMsg auth.Snapshot

// ResultMsg is sent when the sign-in operation returns
type ResultMsg struct {
	Session *session.Session
	Err     error
}

// SignInModel shows a spinner while a sign-in runs, and the consent URL
// once one is known
type SignInModel struct {
	spinner  spinner.Model
	title    string
	snapshot auth.Snapshot
	result   *ResultMsg
	cancel   context.CancelFunc

	// Cancelled is set when the user asked to abandon the attempt
	Cancelled bool
}

// NewSignInModel creates the model. cancel is called when the user presses
// esc or ctrl+c.
func NewSignInModel(title string, cancel context.CancelFunc) SignInModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return SignInModel{
		spinner: s,
		title:   title,
		cancel:  cancel,
	}
}

// Init starts the spinner
func (m SignInModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles key presses, service snapshots and the final result
func (m SignInModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			if !m.Cancelled && m.cancel != nil {
				m.cancel()
			}
			m.Cancelled = true
			// The operation reports the cancellation through ResultMsg.
			return m, nil
		}

	case SnapshotMsg:
		m.snapshot = auth.Snapshot(msg)
		return m, nil

	case ResultMsg:
		m.result = &msg
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress or the outcome
func (m SignInModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	if m.result != nil {
		if m.result.Err != nil {
			b.WriteString(statusMessageStyle(fmt.Sprintf("✗ %v", m.result.Err)))
		} else if m.result.Session != nil {
			b.WriteString(completeMessageStyle(fmt.Sprintf("✓ Signed in as %s (%s)",
				m.result.Session.DisplayName, m.result.Session.Email)))
		}
		b.WriteString("\n")
		return docStyle.Render(b.String())
	}

	status := "Starting sign-in..."
	switch {
	case m.Cancelled:
		status = "Cancelling..."
	case m.snapshot.AuthURL != "":
		status = "Waiting for you to finish signing in in the browser..."
	}
	b.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), status))

	if m.snapshot.AuthURL != "" && !m.Cancelled {
		b.WriteString("\nIf the browser did not open, visit:\n")
		b.WriteString(urlStyle.Render(m.snapshot.AuthURL))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(hintStyle.Render("esc to cancel"))
	return docStyle.Render(b.String())
}

// Result returns the final result, or nil if the program ended before the
// operation returned
func (m SignInModel) Result() *ResultMsg {
	return m.result
}
