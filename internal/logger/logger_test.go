package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/brizzai/desktop-auth/internal/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		wantErr bool
	}{
		{name: "defaults", cfg: config.LoggingConfig{}},
		{name: "json", cfg: config.LoggingConfig{Level: "debug", Format: "json"}},
		{name: "bad level", cfg: config.LoggingConfig{Level: "loud"}, wantErr: true},
		{name: "bad format", cfg: config.LoggingConfig{Format: "xml"}, wantErr: true},
		{name: "no outputs", cfg: config.LoggingConfig{DisableConsole: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLogger(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "auth.log")
	l, err := NewLogger(&config.LoggingConfig{
		Level:          "info",
		Format:         "json",
		OutputPath:     path,
		DisableConsole: true,
	})
	require.NoError(t, err)

	l.Info("relay poll finished", zap.String("outcome", "succeeded"))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "relay poll finished")
	assert.Contains(t, string(data), `"outcome":"succeeded"`)
}

func TestFingerprint(t *testing.T) {
	f := Fingerprint("state", "very-secret-state-token")
	assert.Equal(t, "state", f.Key)
	assert.Len(t, f.String, 8)
	assert.NotContains(t, f.String, "secret")
	assert.Equal(t, f.String, Fingerprint("state", "very-secret-state-token").String)
	assert.Empty(t, Fingerprint("state", "").String)
}

func TestSetLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	Warn("abandoned sign-in attempt", zap.String("attempt_id", "a1"))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "abandoned sign-in attempt", logs.All()[0].Message)
}
