package config

import (
	"fmt"
	"os"
	"time"
)

// AIConfig configures the OpenAI-compatible completion service used to
// turn recipe text into structured data.
type AIConfig struct {
	Model          string        `mapstructure:"model"`
	APIKey         string        `mapstructure:"api_key"`
	APIKeyEnv      string        `mapstructure:"api_key_env"` // Environment variable name for API key
	BaseURL        string        `mapstructure:"base_url"`
	BaseURLEnv     string        `mapstructure:"base_url_env"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`      // attempts beyond the first
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"` // doubled per attempt
	MaxConcurrency int           `mapstructure:"max_concurrency"`  // in-flight completion calls
	MaxTokens      int           `mapstructure:"max_tokens"`
	Temperature    float64       `mapstructure:"temperature"`
}

// ResolveEnvVars resolves environment variable references in the configuration.
// Direct values (APIKey, BaseURL) take precedence if already set.
func (c *AIConfig) ResolveEnvVars() {
	if c.APIKeyEnv != "" && c.APIKey == "" {
		if val := os.Getenv(c.APIKeyEnv); val != "" {
			c.APIKey = val
		}
	}
	if c.BaseURLEnv != "" && c.BaseURL == "" {
		if val := os.Getenv(c.BaseURLEnv); val != "" {
			c.BaseURL = val
		}
	}
}

// Validate checks the AI configuration for values the parser cannot run without.
func (c *AIConfig) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("ai: model is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("ai: base_url is required")
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("ai: max_concurrency must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("ai: max_retries cannot be negative")
	}
	return nil
}

// ValidateWithAPIKey validates the configuration including the API key.
// Use this when the parser will actually be called.
func (c *AIConfig) ValidateWithAPIKey() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return fmt.Errorf("ai: api_key is required (set directly or via %s)", c.APIKeyEnv)
	}
	return nil
}
