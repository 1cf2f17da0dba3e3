package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir changes into dir for the duration of the test, like t.Chdir
// (which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(old)
	})
}

func TestLoadDefaults(t *testing.T) {
	// Run from a temp dir so a developer's config.yaml is not picked up.
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, int64(20<<20), cfg.Server.MaxUploadBytes)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "paper_analysis", cfg.Metrics.Namespace)

	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
	assert.Equal(t, 90*time.Second, cfg.LLM.Timeout)

	assert.Equal(t, 6, cfg.Search.QueryCount)
	assert.Equal(t, 3, cfg.Search.ActiveQueries)
	assert.Equal(t, 2, cfg.Search.FallbackQueries)
	assert.Equal(t, 1500*time.Millisecond, cfg.Search.InterQueryPause)
	assert.Equal(t, 5000, cfg.Search.ContextChars)

	assert.True(t, cfg.ArXiv.Enabled)
	assert.Equal(t, "https://export.arxiv.org/api", cfg.ArXiv.BaseURL)

	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.InitialDelay)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.SearchStagger)
}

func TestLoadFromEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PAPERLENS_SERVER_HTTP_PORT", "9999")
	t.Setenv("PAPERLENS_LLM_MODEL", "gemini-2.5-pro")
	t.Setenv("PAPERLENS_LOGGING_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "gemini-2.5-pro", cfg.LLM.Model)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadSecretsFromEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PAPERLENS_GEMINI_API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-key", cfg.LLM.APIKey)
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())

	valid := func(t *testing.T) *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	t.Run("default config is valid", func(t *testing.T) {
		assert.NoError(t, valid(t).Validate())
	})

	t.Run("rejects invalid HTTP port", func(t *testing.T) {
		cfg := valid(t)
		cfg.Server.HTTPPort = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects invalid log level", func(t *testing.T) {
		cfg := valid(t)
		cfg.Logging.Level = "verbose"
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects active_queries above query_count", func(t *testing.T) {
		cfg := valid(t)
		cfg.Search.ActiveQueries = cfg.Search.QueryCount + 1
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects fallback_queries above active_queries", func(t *testing.T) {
		cfg := valid(t)
		cfg.Search.FallbackQueries = cfg.Search.ActiveQueries + 1
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects negative retry attempts", func(t *testing.T) {
		cfg := valid(t)
		cfg.Retry.Attempts = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects non-positive upload limit", func(t *testing.T) {
		cfg := valid(t)
		cfg.Server.MaxUploadBytes = 0
		assert.Error(t, cfg.Validate())
	})
}
