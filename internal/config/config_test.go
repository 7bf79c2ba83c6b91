package config

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/hexfog-backend/internal/engine"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "s3cret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "memory", cfg.DatabaseDriver)
	assert.Equal(t, 1, cfg.RevealRadius)
	assert.Equal(t, time.Duration(0), cfg.DisconnectGrace)
	assert.Equal(t, 20*time.Second, cfg.WSPingInterval)
	assert.Equal(t, 10*time.Second, cfg.WSPingTimeout)
	assert.Equal(t, 10*time.Minute, cfg.RoomIdleTimeout)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_DotenvAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("AUTH_SECRET=fromfile\nREVEAL_RADIUS=2\nDISCONNECT_GRACE=15s\nWS_ORIGINS=localhost:*,example.com\n"), 0o600))
	t.Setenv("REVEAL_RADIUS", "3")
	// godotenv sets variables into the process; make sure they are unset after.
	t.Setenv("AUTH_SECRET", "")
	os.Unsetenv("AUTH_SECRET")
	t.Setenv("DISCONNECT_GRACE", "")
	os.Unsetenv("DISCONNECT_GRACE")
	t.Setenv("WS_ORIGINS", "")
	os.Unsetenv("WS_ORIGINS")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fromfile", cfg.AuthSecret)
	assert.Equal(t, 3, cfg.RevealRadius)
	assert.Equal(t, 15*time.Second, cfg.DisconnectGrace)
	assert.Equal(t, []string{"localhost:*", "example.com"}, cfg.WSOrigins)
}

func TestLoad_Errors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.env")

	t.Setenv("AUTH_SECRET", "")
	os.Unsetenv("AUTH_SECRET")
	_, err := Load(missing)
	assert.Error(t, err, "AUTH_SECRET is required")

	t.Setenv("AUTH_SECRET", "s3cret")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	_, err = Load(missing)
	assert.ErrorContains(t, err, "DATABASE_DSN")

	t.Setenv("DATABASE_DRIVER", "mongo")
	_, err = Load(missing)
	assert.ErrorContains(t, err, "unknown DATABASE_DRIVER")
}

func TestLoad_RevealRadiusBounds(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.env")
	t.Setenv("AUTH_SECRET", "s3cret")

	t.Setenv("REVEAL_RADIUS", "100000")
	_, err := Load(missing)
	assert.ErrorContains(t, err, "REVEAL_RADIUS")

	t.Setenv("REVEAL_RADIUS", "-1")
	_, err = Load(missing)
	assert.ErrorContains(t, err, "REVEAL_RADIUS")

	t.Setenv("REVEAL_RADIUS", strconv.Itoa(engine.MaxRevealRadius))
	cfg, err := Load(missing)
	require.NoError(t, err)
	assert.Equal(t, engine.MaxRevealRadius, cfg.RevealRadius)
}
