package identity

// EventType names an auth state change reported by the client.
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// Event is delivered to OnAuthStateChange listeners. Session is nil for
// EventSignedOut. SetSession reports EventUserUpdated when it re-checks the
// user the client already holds.
type Event struct {
	Type    EventType
	Session *Session
}

// OnAuthStateChange registers fn for every state change and returns a
// function that removes it. Listeners run synchronously on the goroutine
// that caused the change, after the client has updated its own state.
func (c *Client) OnAuthStateChange(fn func(Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Client) emit(t EventType, s *Session) {
	c.mu.Lock()
	fns := make([]func(Event), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(Event{Type: t, Session: s.clone()})
	}
}
