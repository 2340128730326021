package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrSessionCorrupted = errors.New("session: stored record is corrupted")
	ErrSessionInvalid   = errors.New("session: record violates session invariants")
	ErrStorePersist     = errors.New("session: failed to persist store")
	ErrStoreClosed      = errors.New("session: store is closed")
)

// Store persists the single current session. Set and Delete may buffer;
// Save is the durability barrier.
type Store interface {
	Get() (*Session, error)
	Set(s *Session) error
	Delete() error
	Save() error
	Close() error
}

func encode(s *Session) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupted, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// buffer is the in-memory view shared by every backend. A load error is
// reported by get until the record is replaced or deleted.
type buffer struct {
	current *Session
	loadErr error
	dirty   bool
}

func (b *buffer) get() (*Session, error) {
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	return b.current.Clone(), nil
}

func (b *buffer) set(s *Session) error {
	if s == nil {
		return fmt.Errorf("%w: nil session", ErrSessionInvalid)
	}
	if err := s.Validate(); err != nil {
		return err
	}
	b.current = s.Clone()
	b.loadErr = nil
	b.dirty = true
	return nil
}

func (b *buffer) delete() {
	b.current = nil
	b.loadErr = nil
	b.dirty = true
}

// MemoryStore keeps the session in process memory. Saved returns what a
// crash after the last Save would have preserved.
type MemoryStore struct {
	mu     sync.Mutex
	buf    buffer
	saved  *Session
	saves  int
	closed bool

	// SaveErr, when set, makes Save fail without persisting.
	SaveErr error
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryStoreWith returns a store whose durable and buffered state is s.
// s is not validated, so tests can seed invalid records.
func NewMemoryStoreWith(s *Session) *MemoryStore {
	m := &MemoryStore{saved: s.Clone(), buf: buffer{current: s.Clone()}}
	if s != nil {
		if err := s.Validate(); err != nil {
			m.buf = buffer{loadErr: err}
		}
	}
	return m
}

func (m *MemoryStore) Get() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	return m.buf.get()
}

func (m *MemoryStore) Set(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	return m.buf.set(s)
}

func (m *MemoryStore) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	m.buf.delete()
	return nil
}

func (m *MemoryStore) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	if m.SaveErr != nil {
		return fmt.Errorf("%w: %v", ErrStorePersist, m.SaveErr)
	}
	if !m.buf.dirty {
		return nil
	}
	m.saved = m.buf.current.Clone()
	m.buf.dirty = false
	m.saves++
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Saved returns the last durably saved session.
func (m *MemoryStore) Saved() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved.Clone()
}

// Saves returns how many saves wrote data.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

var _ Store = (*MemoryStore)(nil)
