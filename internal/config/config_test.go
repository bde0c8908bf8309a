package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 5*time.Second, cfg.Realtime.TypingTTL)
	assert.Equal(t, 30*time.Second, cfg.Realtime.TailCheckInterval)
	assert.Equal(t, 4000, cfg.Limits.MaxContentLength)
	assert.Equal(t, 10, cfg.Limits.MaxMediaRefs)
	assert.Equal(t, 50, cfg.Limits.DefaultPageSize)
	assert.Empty(t, cfg.NATS.URL)
}

func TestLoad_FlatEnvAliases(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "memory", cfg.Store.Driver)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
realtime:
  typing_ttl: 3s
limits:
  max_content_length: 2000
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Realtime.TypingTTL)
	assert.Equal(t, 2000, cfg.Limits.MaxContentLength)
}

func TestValidate_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")

	_, err := Load("")
	assert.ErrorContains(t, err, "store.driver")
}

func TestDatabaseDSN(t *testing.T) {
	c := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: "5432", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/n?sslmode=disable", c.DSN())
}
