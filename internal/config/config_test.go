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
	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, Default().Addr, cfg.Addr)
	assert.Equal(t, 10*time.Second, cfg.BlockingTimeout)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "osdl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9000\"\npages_dir: site\nretry_budget: 5\nblocking_timeout: 3s\n"), 0o644))
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("OSDL_PAGES_DIR=from-dotenv\nOSDL_REDIS_DB=2\n"), 0o644))

	t.Setenv("OSDL_RETRY_BUDGET", "1")
	t.Setenv("OSDL_SANITIZE", "true")
	t.Setenv("OSDL_CORS_ORIGINS", "https://a.test, https://b.test")
	t.Setenv("OSDL_PII_PATTERNS", "password,ssn")
	t.Cleanup(func() {
		os.Unsetenv("OSDL_PAGES_DIR")
		os.Unsetenv("OSDL_REDIS_DB")
	})

	cfg, err := Load(path, envFile)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "from-dotenv", cfg.PagesDir)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 1, cfg.RetryBudget)
	assert.Equal(t, 3*time.Second, cfg.BlockingTimeout)
	assert.True(t, cfg.Sanitize)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, []string{"password", "ssn"}, cfg.PIIPatterns)
	assert.Equal(t, "actions.yaml", cfg.ActionsFile)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	env := map[string]string{"OSDL_REDIS_DB": "two", "OSDL_BLOCKING_TIMEOUT": "soon"}
	cfg := Default()
	err = applyEnv(&cfg, func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OSDL_REDIS_DB")
	assert.Contains(t, err.Error(), "OSDL_BLOCKING_TIMEOUT")
}
