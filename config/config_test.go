package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fwojciec/mcpbridge"
	"github.com/fwojciec/mcpbridge/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mcpbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "http://localhost:5000", cfg.ServerURL)
	assert.Equal(t, 16, cfg.MaxTurns)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, "You are a helpful assistant with access to tools.", cfg.SystemPrompt)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("overlays file on defaults", func(t *testing.T) {
		t.Parallel()
		path := writeFile(t, `
provider: anthropic
model: claude-sonnet-4-20250514
server_url: http://mcp.internal:5000
anthropic_api_key: sk-ant-test
max_tokens: 2048
temperature: 0.2
timeout: 90s
tools:
  - github_*
  - gmaps_geocode
`)
		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, "anthropic", cfg.Provider)
		assert.Equal(t, "claude-sonnet-4-20250514", cfg.Model)
		assert.Equal(t, "http://mcp.internal:5000", cfg.ServerURL)
		assert.Equal(t, "sk-ant-test", cfg.APIKey())
		assert.Equal(t, 2048, cfg.MaxTokens)
		require.NotNil(t, cfg.Temperature)
		assert.InDelta(t, 0.2, *cfg.Temperature, 1e-9)
		assert.Equal(t, 90*time.Second, cfg.Timeout)
		assert.Equal(t, []string{"github_*", "gmaps_geocode"}, cfg.Tools)
		assert.Equal(t, 16, cfg.MaxTurns, "unset keys keep defaults")
		assert.NoError(t, cfg.Validate())
	})

	t.Run("empty file keeps defaults", func(t *testing.T) {
		t.Parallel()
		cfg, err := config.Load(writeFile(t, ""))
		require.NoError(t, err)
		assert.Equal(t, config.Default(), cfg)
	})

	t.Run("unknown key", func(t *testing.T) {
		t.Parallel()
		_, err := config.Load(writeFile(t, "provder: openai\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "provder")
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	t.Run("overrides", func(t *testing.T) {
		t.Parallel()
		cfg := config.Default()
		err := cfg.ApplyEnv(envMap(map[string]string{
			"MCP_SERVER_URL":      "http://gateway:8080",
			"OPENAI_API_KEY":      "sk-test",
			"GEMINI_API_KEY":      "g-test",
			"MCPBRIDGE_MODEL":     "gpt-4o-mini",
			"MCPBRIDGE_MAX_TURNS": "4",
		}))
		require.NoError(t, err)
		assert.Equal(t, "http://gateway:8080", cfg.ServerURL)
		assert.Equal(t, "sk-test", cfg.OpenAIAPIKey)
		assert.Equal(t, "g-test", cfg.GeminiAPIKey)
		assert.Equal(t, "gpt-4o-mini", cfg.Model)
		assert.Equal(t, 4, cfg.MaxTurns)
	})

	t.Run("empty values ignored", func(t *testing.T) {
		t.Parallel()
		cfg := config.Default()
		require.NoError(t, cfg.ApplyEnv(envMap(map[string]string{"MCP_SERVER_URL": ""})))
		assert.Equal(t, "http://localhost:5000", cfg.ServerURL)
	})

	t.Run("bad max turns", func(t *testing.T) {
		t.Parallel()
		cfg := config.Default()
		err := cfg.ApplyEnv(envMap(map[string]string{"MCPBRIDGE_MAX_TURNS": "many"}))
		assert.ErrorIs(t, err, mcpbridge.ErrValidation)
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() config.Config {
		cfg := config.Default()
		cfg.OpenAIAPIKey = "sk-test"
		return cfg
	}
	temp := func(v float64) *float64 { return &v }

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"unknown provider", func(c *config.Config) { c.Provider = "mistral" }, "provider must be one of"},
		{"bad server url", func(c *config.Config) { c.ServerURL = "localhost" }, "server_url must be a URL"},
		{"empty server url", func(c *config.Config) { c.ServerURL = "" }, "server_url is required"},
		{"negative max turns", func(c *config.Config) { c.MaxTurns = -1 }, "max_turns must be >= 0"},
		{"temperature too high", func(c *config.Config) { c.Temperature = temp(2.5) }, "temperature must be <= 2"},
		{"empty tool pattern", func(c *config.Config) { c.Tools = []string{""} }, "is required"},
		{"missing key", func(c *config.Config) { c.Provider = "gemini" }, "no API key for provider gemini"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, mcpbridge.ErrValidation)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		cfg := valid()
		cfg.Temperature = temp(0)
		assert.NoError(t, cfg.Validate())
	})
}
