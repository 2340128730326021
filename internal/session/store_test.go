package session

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brizzai/desktop-auth/internal/config"
)

type storeFactory struct {
	name string
	open func(t *testing.T, path string) Store
	ext  string
}

func factories(t *testing.T) []storeFactory {
	t.Helper()
	sealed, err := NewPassphraseCodec("correct horse battery staple")
	require.NoError(t, err)

	return []storeFactory{
		{
			name: "file",
			ext:  "json",
			open: func(t *testing.T, path string) Store {
				s, err := NewFileStore(path, nil)
				require.NoError(t, err)
				return s
			},
		},
		{
			name: "encrypted file",
			ext:  "json",
			open: func(t *testing.T, path string) Store {
				s, err := NewFileStore(path, sealed)
				require.NoError(t, err)
				return s
			},
		},
		{
			name: "sqlite",
			ext:  "db",
			open: func(t *testing.T, path string) Store {
				s, err := OpenSQLiteStore(path, nil)
				require.NoError(t, err)
				return s
			},
		},
		{
			name: "encrypted sqlite",
			ext:  "db",
			open: func(t *testing.T, path string) Store {
				s, err := OpenSQLiteStore(path, sealed)
				require.NoError(t, err)
				return s
			},
		},
	}
}

func TestStoreSaveThenGetRoundTrip(t *testing.T) {
	for _, f := range factories(t) {
		t.Run(f.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "session."+f.ext)
			want := emailSession()

			store := f.open(t, path)
			got, err := store.Get()
			require.NoError(t, err)
			assert.Nil(t, got, "new store should be empty")

			require.NoError(t, store.Set(want))
			require.NoError(t, store.Save())

			got, err = store.Get()
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("buffered session mismatch (-want +got):\n%s", diff)
			}
			require.NoError(t, store.Close())

			reopened := f.open(t, path)
			defer func() { _ = reopened.Close() }()
			got, err = reopened.Get()
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("reloaded session mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStoreDeleteThenSave(t *testing.T) {
	for _, f := range factories(t) {
		t.Run(f.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "session."+f.ext)

			store := f.open(t, path)
			require.NoError(t, store.Set(googleSession()))
			require.NoError(t, store.Save())
			require.NoError(t, store.Delete())
			require.NoError(t, store.Save())

			got, err := store.Get()
			require.NoError(t, err)
			assert.Nil(t, got)
			require.NoError(t, store.Close())

			reopened := f.open(t, path)
			defer func() { _ = reopened.Close() }()
			got, err = reopened.Get()
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestStoreRejectsInvalidSession(t *testing.T) {
	store := NewMemoryStore()
	bad := emailSession()
	bad.AccessToken = ""

	err := store.Set(bad)
	assert.True(t, errors.Is(err, ErrSessionInvalid))
	assert.True(t, errors.Is(store.Set(nil), ErrSessionInvalid))
}

func TestFileStoreLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "half token pair",
			content: `{"user_id":"u1","email":"a@b.com","auth_method":"email","access_token":"only-access"}`,
			wantErr: ErrSessionInvalid,
		},
		{
			name:    "not json",
			content: `{"user_id":`,
			wantErr: ErrSessionCorrupted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "session.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			store, err := NewFileStore(path, nil)
			require.NoError(t, err, "a bad record must not prevent opening the store")

			got, err := store.Get()
			assert.Nil(t, got)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

			require.NoError(t, store.Delete())
			got, err = store.Get()
			assert.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestFileStoreEmptyFileIsEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	store, err := NewFileStore(path, nil)
	require.NoError(t, err)
	got, err := store.Get()
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileStorePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	dir := filepath.Join(t.TempDir(), "app")
	path := filepath.Join(dir, "session.json")

	store, err := NewFileStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, store.Set(googleSession()))
	require.NoError(t, store.Save())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	dirInfo, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not be left behind")
}

func TestFileStoreSetWithoutSaveIsNotDurable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store, err := NewFileStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, store.Set(googleSession()))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestEncryptedFileDoesNotContainTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	codec, err := NewPassphraseCodec("passphrase")
	require.NoError(t, err)

	store, err := NewFileStore(path, codec)
	require.NoError(t, err)
	require.NoError(t, store.Set(emailSession()))
	require.NoError(t, store.Save())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "refresh-1")
	assert.NotContains(t, string(raw), "a@b.com")

	wrong, err := NewPassphraseCodec("other")
	require.NoError(t, err)
	reopened, err := NewFileStore(path, wrong)
	require.NoError(t, err)
	_, err = reopened.Get()
	assert.True(t, errors.Is(err, ErrSessionCorrupted))
}

func TestEncryptedStoreReadsLegacyPlaintext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	plain, err := NewFileStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, plain.Set(googleSession()))
	require.NoError(t, plain.Save())

	codec, err := NewPassphraseCodec("passphrase")
	require.NoError(t, err)
	sealed, err := NewFileStore(path, codec)
	require.NoError(t, err)

	got, err := sealed.Get()
	require.NoError(t, err)
	if diff := cmp.Diff(googleSession(), got); diff != "" {
		t.Errorf("legacy session mismatch (-want +got):\n%s", diff)
	}
}

func TestPassphraseCodec(t *testing.T) {
	_, err := NewPassphraseCodec("")
	assert.Error(t, err)

	codec, err := NewPassphraseCodec("pw")
	require.NoError(t, err)

	a, err := codec.Seal([]byte(`{"a":1}`))
	require.NoError(t, err)
	b, err := codec.Seal([]byte(`{"a":1}`))
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "salt and nonce must differ per seal")

	opened, err := codec.Open(a)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(opened))

	_, err = codec.Open(a[:10])
	assert.True(t, errors.Is(err, ErrSessionCorrupted))

	tampered := append([]byte(nil), a...)
	tampered[len(tampered)-1] ^= 0xff
	_, err = codec.Open(tampered)
	assert.True(t, errors.Is(err, ErrSessionCorrupted))

	_, err = codec.Open([]byte("garbage"))
	assert.True(t, errors.Is(err, ErrSessionCorrupted))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Set(emailSession()))
	assert.Nil(t, store.Saved(), "set alone must not be durable")

	require.NoError(t, store.Save())
	if diff := cmp.Diff(emailSession(), store.Saved()); diff != "" {
		t.Errorf("saved mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, store.Saves())

	require.NoError(t, store.Save())
	assert.Equal(t, 1, store.Saves(), "clean save writes nothing")

	store.SaveErr = errors.New("disk full")
	require.NoError(t, store.Delete())
	assert.True(t, errors.Is(store.Save(), ErrStorePersist))
	assert.NotNil(t, store.Saved())

	require.NoError(t, store.Close())
	_, err := store.Get()
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestNewMemoryStoreWithInvalidSeed(t *testing.T) {
	bad := emailSession()
	bad.RefreshToken = ""
	store := NewMemoryStoreWith(bad)

	_, err := store.Get()
	assert.True(t, errors.Is(err, ErrSessionInvalid))
}

func TestNewStore(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		cfg     config.StoreConfig
		check   func(t *testing.T, s Store)
		wantErr bool
	}{
		{
			name: "file",
			cfg:  config.StoreConfig{Backend: config.StoreBackendFile, Path: filepath.Join(dir, "f", "session.json")},
			check: func(t *testing.T, s Store) {
				assert.IsType(t, &FileStore{}, s)
			},
		},
		{
			name: "sqlite",
			cfg:  config.StoreConfig{Backend: config.StoreBackendSQLite, Path: filepath.Join(dir, "s", "session.db")},
			check: func(t *testing.T, s Store) {
				assert.IsType(t, &SQLiteStore{}, s)
			},
		},
		{
			name: "memory",
			cfg:  config.StoreConfig{Backend: config.StoreBackendMemory},
			check: func(t *testing.T, s Store) {
				assert.IsType(t, &MemoryStore{}, s)
			},
		},
		{
			name: "encrypted file",
			cfg: config.StoreConfig{
				Backend:       config.StoreBackendFile,
				Path:          filepath.Join(dir, "e", "session.json"),
				EncryptionKey: "pw",
			},
			check: func(t *testing.T, s Store) {
				fs, ok := s.(*FileStore)
				require.True(t, ok)
				assert.IsType(t, &PassphraseCodec{}, fs.codec)
			},
		},
		{
			name:    "unknown backend",
			cfg:     config.StoreConfig{Backend: "keychain"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewStore(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer func() { _ = s.Close() }()
			tt.check(t, s)
		})
	}
}
