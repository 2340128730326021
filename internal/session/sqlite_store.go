package session

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	currentSessionKey = "current_session"

	createKVTable = `CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`
)

// SQLiteStore keeps the session as one row of a key/value table.
type SQLiteStore struct {
	mu     sync.Mutex
	db     *sql.DB
	codec  Codec
	buf    buffer
	closed bool
}

// OpenSQLiteStore opens (or creates) the database at path.
func OpenSQLiteStore(path string, codec Codec) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("session: store path is required")
	}
	if codec == nil {
		codec = PlainCodec{}
	}
	cleanPath := filepath.Clean(path)
	if err := ensureDir(cleanPath); err != nil {
		return nil, err
	}

	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(createKVTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}

	s := &SQLiteStore{db: db, codec: codec}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) load() error {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, currentSessionKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read session row: %w", err)
	}

	plaintext, err := s.codec.Open(value)
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

func (s *SQLiteStore) Get() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	return s.buf.get()
}

func (s *SQLiteStore) Set(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.buf.set(sess)
}

func (s *SQLiteStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.buf.delete()
	return nil
}

func (s *SQLiteStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if !s.buf.dirty {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStorePersist, err)
	}
	defer func() { _ = tx.Rollback() }()

	if s.buf.current == nil {
		if _, err := tx.Exec(`DELETE FROM kv WHERE key = ?`, currentSessionKey); err != nil {
			return fmt.Errorf("%w: delete: %v", ErrStorePersist, err)
		}
	} else {
		data, err := encode(s.buf.current)
		if err != nil {
			return err
		}
		sealed, err := s.codec.Seal(data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStorePersist, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			currentSessionKey, sealed, time.Now().UnixMilli(),
		); err != nil {
			return fmt.Errorf("%w: upsert: %v", ErrStorePersist, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStorePersist, err)
	}
	s.buf.dirty = false
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
