package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/spf13/viper"

	"github.com/santiagomed/scaff/core"
	"github.com/santiagomed/scaff/llm"
)

// Config stores all configuration of the application.
type Config struct {
	Provider    string  `mapstructure:"provider"`
	APIKey      string  `mapstructure:"api_key"`
	ModelName   string  `mapstructure:"model_name"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	BaseURL     string  `mapstructure:"base_url"`
	TellmURL    string  `mapstructure:"tellm_url"`
	BatchID     string  `mapstructure:"batch_id"`

	SimilarityThreshold float64  `mapstructure:"similarity_threshold"`
	MaxRetries          int      `mapstructure:"max_retries"`
	LLMTimeoutMs        int      `mapstructure:"llm_timeout_ms"`
	RetryBackoffMs      int      `mapstructure:"retry_backoff_ms"`
	MaxTreeDepth        int      `mapstructure:"max_tree_depth"`
	Examples            int      `mapstructure:"examples"`
	RequiredFiles       []string `mapstructure:"required_files"`

	CacheMaxEntries int           `mapstructure:"cache_max_entries"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	TemplatesDir    string        `mapstructure:"templates_dir"`

	Preferences core.Preferences `mapstructure:"preferences"`

	LogLevel   string `mapstructure:"log_level"`
	LogFile    string `mapstructure:"log_file"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	settings := core.DefaultSettings()
	return &Config{
		Provider:            llm.ProviderOpenAI,
		ModelName:           "gpt-4o-mini",
		Temperature:         0.3,
		MaxTokens:           2048,
		SimilarityThreshold: settings.SimilarityThreshold,
		MaxRetries:          settings.MaxRetries,
		LLMTimeoutMs:        int(settings.LLMTimeout / time.Millisecond),
		RetryBackoffMs:      int(settings.RetryBackoff / time.Millisecond),
		MaxTreeDepth:        settings.MaxTreeDepth,
		Examples:            settings.Examples,
		CacheMaxEntries:     1000,
		CacheTTL:            24 * time.Hour,
		Preferences:         settings.Preferences,
		LogLevel:            "info",
		ListenAddr:          ":8080",
	}
}

// LoadConfig reads configuration from a config.yaml and SCAFF_* environment
// variables. configPath may name the file itself or a directory to search.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	v := viper.New()
	setDefaults(v, config)
	if strings.HasSuffix(configPath, ".yaml") || strings.HasSuffix(configPath, ".yml") {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if configPath != "" {
			v.AddConfigPath(configPath)
		}
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".scaff"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("SCAFF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if config.APIKey == "" {
		config.APIKey = providerKey(config.Provider)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// setDefaults registers every key so AutomaticEnv can see it.
func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("provider", c.Provider)
	v.SetDefault("api_key", c.APIKey)
	v.SetDefault("model_name", c.ModelName)
	v.SetDefault("temperature", c.Temperature)
	v.SetDefault("max_tokens", c.MaxTokens)
	v.SetDefault("base_url", c.BaseURL)
	v.SetDefault("tellm_url", c.TellmURL)
	v.SetDefault("batch_id", c.BatchID)
	v.SetDefault("similarity_threshold", c.SimilarityThreshold)
	v.SetDefault("max_retries", c.MaxRetries)
	v.SetDefault("llm_timeout_ms", c.LLMTimeoutMs)
	v.SetDefault("retry_backoff_ms", c.RetryBackoffMs)
	v.SetDefault("max_tree_depth", c.MaxTreeDepth)
	v.SetDefault("examples", c.Examples)
	v.SetDefault("required_files", c.RequiredFiles)
	v.SetDefault("cache_max_entries", c.CacheMaxEntries)
	v.SetDefault("cache_ttl", c.CacheTTL)
	v.SetDefault("templates_dir", c.TemplatesDir)
	v.SetDefault("preferences.include_docs", c.Preferences.IncludeDocs)
	v.SetDefault("preferences.include_tests", c.Preferences.IncludeTests)
	v.SetDefault("preferences.include_docker", c.Preferences.IncludeDocker)
	v.SetDefault("preferences.include_ci", c.Preferences.IncludeCI)
	v.SetDefault("preferences.custom_folders", c.Preferences.CustomFolders)
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("log_file", c.LogFile)
	v.SetDefault("listen_addr", c.ListenAddr)
}

func providerKey(provider string) string {
	if strings.EqualFold(provider, llm.ProviderAnthropic) {
		return os.Getenv("ANTHROPIC_API_KEY")
	}
	return os.Getenv("OPENAI_API_KEY")
}

// Merge overlays the non-zero fields of overrides, typically parsed flags.
func (c *Config) Merge(overrides *Config) error {
	if err := mergo.Merge(c, overrides, mergo.WithOverride); err != nil {
		return fmt.Errorf("error merging config overrides: %w", err)
	}
	return validateConfig(c)
}

func validateConfig(config *Config) error {
	switch {
	case config.SimilarityThreshold < 0 || config.SimilarityThreshold > 1:
		return fmt.Errorf("similarity_threshold must be between 0 and 1, got %v", config.SimilarityThreshold)
	case config.MaxRetries < 0:
		return fmt.Errorf("max_retries must not be negative, got %d", config.MaxRetries)
	case config.LLMTimeoutMs <= 0:
		return fmt.Errorf("llm_timeout_ms must be positive, got %d", config.LLMTimeoutMs)
	case config.MaxTreeDepth <= 0:
		return fmt.Errorf("max_tree_depth must be positive, got %d", config.MaxTreeDepth)
	case config.RetryBackoffMs < 0:
		return fmt.Errorf("retry_backoff_ms must not be negative, got %d", config.RetryBackoffMs)
	case config.CacheMaxEntries < 0:
		return fmt.Errorf("cache_max_entries must not be negative, got %d", config.CacheMaxEntries)
	case config.CacheTTL < 0:
		return fmt.Errorf("cache_ttl must not be negative, got %s", config.CacheTTL)
	case config.Temperature < 0 || config.Temperature > 2:
		return fmt.Errorf("temperature must be between 0 and 2, got %v", config.Temperature)
	}
	switch strings.ToLower(config.Provider) {
	case llm.ProviderOpenAI, llm.ProviderAnthropic:
	default:
		return fmt.Errorf("unknown provider %q", config.Provider)
	}
	return nil
}

// Settings converts the config into orchestrator settings.
func (c *Config) Settings() core.Settings {
	return core.Settings{
		SimilarityThreshold: c.SimilarityThreshold,
		MaxRetries:          c.MaxRetries,
		LLMTimeout:          time.Duration(c.LLMTimeoutMs) * time.Millisecond,
		MaxTreeDepth:        c.MaxTreeDepth,
		RequiredFiles:       c.RequiredFiles,
		RetryBackoff:        time.Duration(c.RetryBackoffMs) * time.Millisecond,
		Examples:            c.Examples,
		Model:               c.ModelName,
		Temperature:         c.Temperature,
		MaxTokens:           c.MaxTokens,
		Preferences:         c.Preferences,
	}
}

// LlmConfig returns the provider configuration.
func (c *Config) LlmConfig() *llm.LlmConfig {
	return &llm.LlmConfig{
		Provider:    c.Provider,
		APIKey:      c.APIKey,
		ModelName:   c.ModelName,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		BatchID:     c.BatchID,
		TellmURL:    c.TellmURL,
		BaseURL:     c.BaseURL,
	}
}
