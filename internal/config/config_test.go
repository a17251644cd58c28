package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("HTTP_ADDR", "")
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 0.10, cfg.AmountTolerance)
	assert.Equal(t, 30, cfg.DateWindowDays)
	assert.Equal(t, 3, cfg.MaxCandidates)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.Contains(t, cfg.DSN(), "host=localhost")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/recon")
	t.Setenv("MATCH_DATE_WINDOW_DAYS", "14")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/recon", cfg.DSN())
	assert.Equal(t, 14, cfg.DateWindowDays)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	path := filepath.Join(t.TempDir(), "recon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("MATCH_MAX_CANDIDATES: 5\nLOG_FORMAT: json\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxCandidates)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestValidate(t *testing.T) {
	cfg := &Config{DBHost: "localhost", AmountTolerance: 0.1, DateWindowDays: 30, MaxCandidates: 3}
	assert.NoError(t, cfg.Validate())

	bad := *cfg
	bad.AmountTolerance = 1.5
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.MaxCandidates = 0
	assert.Error(t, bad.Validate())
}
