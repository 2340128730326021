package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAttempt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	a := NewAttempt("s1", now)

	_, err := uuid.Parse(a.ID)
	assert.NoError(t, err)
	assert.Equal(t, "s1", a.State)
	assert.Equal(t, time.UTC, a.StartedAt.Location())
	assert.True(t, a.StartedAt.Equal(now))
	assert.NotEqual(t, a.ID, NewAttempt("s1", now).ID)
}

func TestJournals(t *testing.T) {
	fileJournal, err := NewFileJournal(filepath.Join(t.TempDir(), "attempt.json"))
	require.NoError(t, err)

	journals := map[string]Journal{
		"file":   fileJournal,
		"memory": NewMemoryJournal(),
	}

	for name, j := range journals {
		t.Run(name, func(t *testing.T) {
			pending, err := j.Pending()
			require.NoError(t, err)
			assert.Nil(t, pending)

			a := NewAttempt("s1", time.Now())
			require.NoError(t, j.Record(a))

			pending, err = j.Pending()
			require.NoError(t, err)
			require.NotNil(t, pending)
			assert.Equal(t, a.ID, pending.ID)
			assert.Equal(t, "s1", pending.State)

			require.NoError(t, j.Clear())
			pending, err = j.Pending()
			require.NoError(t, err)
			assert.Nil(t, pending)

			assert.NoError(t, j.Clear(), "clearing twice is fine")
		})
	}
}

func TestFileJournalCorrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attempt.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))

	j, err := NewFileJournal(path)
	require.NoError(t, err)

	pending, err := j.Pending()
	assert.Nil(t, pending)
	assert.True(t, errors.Is(err, ErrSessionCorrupted))
}
