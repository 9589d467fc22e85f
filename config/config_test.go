package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"llm": {"provider": "deepseek", "model": "deepseek-chat", "base_url": "https://api.deepseek.com/v1"},
		"pipeline": {"max_iterations": 5, "review_timeout": "15s", "image_timeout": 45},
		"server_addr": ":9090"
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "deepseek", cfg.LLM.Provider)
	assert.Equal(t, 5, cfg.Pipeline.MaxIterations)
	assert.Equal(t, Duration(15*time.Second), cfg.Pipeline.ReviewTimeout)
	assert.Equal(t, Duration(45*time.Second), cfg.Pipeline.ImageTimeout)
	assert.Equal(t, Default().Pipeline.GenerateTimeout, cfg.Pipeline.GenerateTimeout)
	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "memory", cfg.Storage.Driver)

	pc := cfg.PipelineConfig()
	assert.Equal(t, 5, pc.MaxIterations)
	assert.Equal(t, 15*time.Second, pc.Timeouts.Review)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("POSTFORGE_LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("POSTFORGE_MAX_ITERATIONS", "2")
	t.Setenv("POSTFORGE_STORAGE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/postforge")
	t.Setenv("S3_USE_SSL", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 2, cfg.Pipeline.MaxIterations)
	assert.Equal(t, "postgres://localhost/postforge", cfg.Storage.DSN)
	assert.Equal(t, cfg.Storage.DSN, cfg.Preferences.DSN)
	assert.True(t, cfg.S3Config().UseSSL)
	assert.Equal(t, "sk-test", cfg.LLMSettings().APIKey)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `{"pipeline": {"review_timeout": "soon"}}`))
	assert.Error(t, err)

	t.Setenv("POSTFORGE_MAX_ITERATIONS", "many")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"max iterations zero", func(c *Config) { c.Pipeline.MaxIterations = 0 }},
		{"max iterations too high", func(c *Config) { c.Pipeline.MaxIterations = 11 }},
		{"zero timeout", func(c *Config) { c.Pipeline.RefineTimeout = 0 }},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "claude-local" }},
		{"openai without key", func(c *Config) { c.LLM.Provider = "openai" }},
		{"deepseek without base url", func(c *Config) { c.LLM.Provider = "deepseek" }},
		{"gemini image without key", func(c *Config) { c.Image.Provider = "gemini" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres" }},
		{"unknown storage", func(c *Config) { c.Storage.Driver = "sqlite" }},
		{"s3 without endpoint", func(c *Config) { c.Images.Driver = "s3" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
