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
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0644))
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "sk-env", cfg.APIKey)
	assert.Equal(t, 0.85, cfg.SimilarityThreshold)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.True(t, cfg.Preferences.IncludeDocs)
}

func TestLoadConfigFile(t *testing.T) {
	dir := writeConfig(t, `
provider: anthropic
model_name: claude-3-haiku-20240307
similarity_threshold: 0.7
max_retries: 4
llm_timeout_ms: 1500
cache_ttl: 30m
required_files: [README.md, .gitignore]
preferences:
  include_docker: true
  custom_folders: [scripts]
`)
	t.Setenv("ANTHROPIC_API_KEY", "ak-env")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "ak-env", cfg.APIKey)
	assert.Equal(t, 0.7, cfg.SimilarityThreshold)
	assert.Equal(t, 30*time.Minute, cfg.CacheTTL)
	assert.Equal(t, []string{"README.md", ".gitignore"}, cfg.RequiredFiles)
	assert.True(t, cfg.Preferences.IncludeDocker)
	assert.Equal(t, []string{"scripts"}, cfg.Preferences.CustomFolders)

	settings := cfg.Settings()
	assert.Equal(t, 1500*time.Millisecond, settings.LLMTimeout)
	assert.Equal(t, 4, settings.MaxRetries)
	assert.Equal(t, "claude-3-haiku-20240307", cfg.LlmConfig().ModelName)
}

func TestLoadConfigExplicitFileAndEnv(t *testing.T) {
	dir := writeConfig(t, "max_retries: 1\n")
	t.Setenv("SCAFF_MAX_RETRIES", "3")
	t.Setenv("SCAFF_PREFERENCES_INCLUDE_CI", "true")
	t.Setenv("SCAFF_API_KEY", "sk-scaff")

	cfg, err := LoadConfig(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.True(t, cfg.Preferences.IncludeCI)
	assert.Equal(t, "sk-scaff", cfg.APIKey)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := []string{
		"similarity_threshold: 1.2\n",
		"max_retries: -1\n",
		"llm_timeout_ms: 0\n",
		"max_tree_depth: 0\n",
		"provider: cohere\n",
		"max_retries: [\n",
	}
	for _, body := range cases {
		_, err := LoadConfig(writeConfig(t, body))
		assert.Error(t, err, body)
	}
}

func TestMerge(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Merge(&Config{ModelName: "gpt-4o", MaxRetries: 5}))
	assert.Equal(t, "gpt-4o", cfg.ModelName)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, "openai", cfg.Provider)

	assert.Error(t, cfg.Merge(&Config{SimilarityThreshold: 3}))
}
