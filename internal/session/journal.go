package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Attempt records a browser sign-in that has been started but not finished.
type Attempt struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"started_at"`
}

// NewAttempt returns an attempt for state with a fresh id.
func NewAttempt(state string, now time.Time) Attempt {
	return Attempt{ID: uuid.NewString(), State: state, StartedAt: now.UTC()}
}

// Journal durably tracks the in-flight attempt so an interrupted process can
// detect it on the next start.
type Journal interface {
	Record(a Attempt) error
	Pending() (*Attempt, error)
	Clear() error
}

// FileJournal stores the attempt as a small JSON file.
type FileJournal struct {
	mu   sync.Mutex
	path string
}

func NewFileJournal(path string) (*FileJournal, error) {
	if path == "" {
		return nil, errors.New("session: journal path is required")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	return &FileJournal{path: path}, nil
}

func (j *FileJournal) Record(a Attempt) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode attempt: %w", err)
	}
	return writeFileAtomic(j.path, data)
}

// Pending returns the recorded attempt, or nil. An unreadable record is
// returned as an error alongside a nil attempt.
func (j *FileJournal) Pending() (*Attempt, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := os.ReadFile(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read attempt journal: %w", err)
	}

	var a Attempt
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: attempt journal: %v", ErrSessionCorrupted, err)
	}
	return &a, nil
}

func (j *FileJournal) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return removeFileDurable(j.path)
}

// MemoryJournal is the in-process journal used with the memory store.
type MemoryJournal struct {
	mu      sync.Mutex
	pending *Attempt
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (j *MemoryJournal) Record(a Attempt) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pending = &a
	return nil
}

func (j *MemoryJournal) Pending() (*Attempt, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.pending == nil {
		return nil, nil
	}
	a := *j.pending
	return &a, nil
}

func (j *MemoryJournal) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pending = nil
	return nil
}

var (
	_ Journal = (*FileJournal)(nil)
	_ Journal = (*MemoryJournal)(nil)
)
