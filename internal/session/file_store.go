package session

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// FileStore keeps the session in a single file.
type FileStore struct {
	mu     sync.Mutex
	path   string
	codec  Codec
	buf    buffer
	closed bool
}

// NewFileStore opens the store at path, creating its directory with 0700
// permissions. A corrupted or invalid file does not fail construction; it is
// reported by Get so the restorer can discard it.
func NewFileStore(path string, codec Codec) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("session: store path is required")
	}
	if codec == nil {
		codec = PlainCodec{}
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	s := &FileStore{path: path, codec: codec}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read session file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	plaintext, err := s.codec.Open(data)
	if err != nil {
		s.buf.loadErr = err
		return nil
	}
	sess, err := decode(plaintext)
	if err != nil {
		s.buf.loadErr = err
		return nil
	}
	s.buf.current = sess
	return nil
}

// Path returns the file backing the store.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	return s.buf.get()
}

func (s *FileStore) Set(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.buf.set(sess)
}

func (s *FileStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.buf.delete()
	return nil
}

func (s *FileStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.saveLocked()
}

func (s *FileStore) saveLocked() error {
	if !s.buf.dirty {
		return nil
	}

	if s.buf.current == nil {
		if err := removeFileDurable(s.path); err != nil {
			return err
		}
		s.buf.dirty = false
		return nil
	}

	data, err := encode(s.buf.current)
	if err != nil {
		return err
	}
	sealed, err := s.codec.Seal(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorePersist, err)
	}
	if err := writeFileAtomic(s.path, sealed); err != nil {
		return err
	}
	s.buf.dirty = false
	return nil
}

// Close flushes pending changes.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	err := s.saveLocked()
	s.closed = true
	return err
}

var _ Store = (*FileStore)(nil)
