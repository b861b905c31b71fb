package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REWRITE_TIMEOUT", "5s")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Security.JWTSecret)
	assert.Equal(t, "review-portal", cfg.Security.JWTIssuer)
	assert.Equal(t, 5*time.Second, cfg.Rewrite.Timeout)
	assert.Equal(t, "0 */6 * * *", cfg.Integrity.Schedule)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.GetServerAddr())
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"security": {"jwt_secret": "from-file"},
		"database": {"host": "db", "db_name": "reviews", "user": "u", "password": "p"},
		"workflow": {"definition_path": "/etc/review/workflow.yaml"}
	}`), 0o600))
	t.Setenv("DATABASE_HOST", "db.internal")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Security.JWTSecret)
	assert.Equal(t, "/etc/review/workflow.yaml", cfg.Workflow.DefinitionPath)
	assert.Equal(t, "postgres://u:p@db.internal:5432/reviews?sslmode=disable", cfg.Database.GetDatabaseURL())
}

func TestLoadConfigReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("JWT_SECRET=dotenv\nLOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("JWT_SECRET")
		os.Unsetenv("LOG_LEVEL")
	})

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "dotenv", cfg.Security.JWTSecret)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig("")
	assert.ErrorContains(t, err, "jwt_secret")
}

func TestLoadConfigRejectsBadFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}
