package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLayersFileAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "rishta.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 4000
db_path: /var/lib/rishta.db
jwt_secret: from-file
send_retry_backoff: 200ms
`), 0o600))

	t.Setenv("RISHTA_JWT_SECRET", "from-env")
	t.Setenv("RISHTA_SEND_RATE", "2.5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, "/var/lib/rishta.db", cfg.DBPath)
	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, 200*time.Millisecond, cfg.SendRetryBackoff)
	assert.Equal(t, 2.5, cfg.SendRate)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RISHTA_JWT_SECRET", "")
	t.Setenv("RISHTA_CONFIG", "")

	_, err := Load("")
	assert.ErrorContains(t, err, "jwt_secret")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
