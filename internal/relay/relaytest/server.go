// Package relaytest provides an in-process relay for tests. Each state is
// driven by a script of responses; the last entry repeats once the script
// runs out.
package relaytest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/brizzai/desktop-auth/internal/auth/constants"
	"github.com/brizzai/desktop-auth/internal/relay"
	"github.com/brizzai/desktop-auth/internal/utils"
)

// Step is one scripted reply to a check request. A zero HTTPStatus means
// 200 with Result as the body.
type Step struct {
	HTTPStatus int
	Result     relay.CheckResult
}

// Pending, Ready, Failed, Expired and Unavailable build common steps.
func Pending() Step { return Step{Result: relay.CheckResult{Status: relay.StatusPending}} }

func Ready(code string) Step {
	return Step{Result: relay.CheckResult{Status: relay.StatusReady, Code: code}}
}

func Failed(msg string) Step {
	return Step{Result: relay.CheckResult{Status: relay.StatusError, Error: msg}}
}

func Expired() Step { return Step{Result: relay.CheckResult{Status: relay.StatusExpired}} }

func Unavailable() Step { return Step{HTTPStatus: http.StatusServiceUnavailable} }

// Server is a scripted relay.
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	scripts map[string][]Step
	checks  map[string]int
	cleared map[string]int

	// OnCheck, when set, runs before each check is answered.
	OnCheck func(state string, n int)
}

// NewServer starts a relay with no scripts; unknown states report pending.
func NewServer() *Server {
	s := &Server{
		scripts: make(map[string][]Step),
		checks:  make(map[string]int),
		cleared: make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(constants.RelayCheckPath, s.handleCheck)
	mux.HandleFunc(constants.RelayClearPath, s.handleClear)
	s.Server = httptest.NewServer(mux)
	return s
}

// Script sets the replies for state.
func (s *Server) Script(state string, steps ...Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[state] = steps
}

// Checks returns how many check requests state received.
func (s *Server) Checks(state string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checks[state]
}

// Cleared returns how many clear requests state received.
func (s *Server) Cleared(state string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleared[state]
}

// LastState returns a checked state. Use it when a single flow ran and the
// caller did not choose the state.
func (s *Server) LastState() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for state := range s.checks {
		return state
	}
	return ""
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.WriteError(w, "method_not_allowed", "use GET", http.StatusMethodNotAllowed)
		return
	}
	state := strings.TrimPrefix(r.URL.Path, constants.RelayCheckPath)

	s.mu.Lock()
	s.checks[state]++
	n := s.checks[state]
	step := Pending()
	if script := s.scripts[state]; len(script) > 0 {
		idx := n - 1
		if idx >= len(script) {
			idx = len(script) - 1
		}
		step = script[idx]
	}
	hook := s.OnCheck
	s.mu.Unlock()

	if hook != nil {
		hook(state, n)
	}

	if step.HTTPStatus != 0 && step.HTTPStatus != http.StatusOK {
		utils.WriteError(w, "unavailable", "relay restarting", step.HTTPStatus)
		return
	}
	utils.WriteJSON(w, http.StatusOK, step.Result)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		utils.WriteError(w, "method_not_allowed", "use DELETE", http.StatusMethodNotAllowed)
		return
	}
	state := strings.TrimPrefix(r.URL.Path, constants.RelayClearPath)

	s.mu.Lock()
	s.cleared[state]++
	s.mu.Unlock()

	utils.WriteJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}
