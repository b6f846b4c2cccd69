// Package config loads the assistant configuration from a YAML file
// and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Provider  string          `mapstructure:"provider"`
	Serve     ServeConfig     `mapstructure:"serve"`
	Budget    BudgetConfig    `mapstructure:"budget"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	ClaudeCLI CLIConfig       `mapstructure:"claude-cli"`
	GeminiCLI CLIConfig       `mapstructure:"gemini-cli"`
	CodexCLI  CLIConfig       `mapstructure:"codex-cli"`
}

// ServeConfig configures the HTTP endpoint the ComfyUI extension
// talks to.
type ServeConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// BudgetConfig tunes the context budget engine. Zero values fall
// back to the engine defaults.
type BudgetConfig struct {
	SystemContextChars    int `mapstructure:"system_context_chars"`
	KeepToolRounds        int `mapstructure:"keep_tool_rounds"`
	MaxHistoryMessages    int `mapstructure:"max_history_messages"`
	MaxPromptTokens       int `mapstructure:"max_prompt_tokens"`
	MaxCompactionAttempts int `mapstructure:"max_compaction_attempts"`
}

// OpenAIConfig covers openai.com and any OpenAI-compatible server
// (Ollama, LM Studio, vLLM) via base_url.
type OpenAIConfig struct {
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

type AnthropicConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// CLIConfig configures one external model CLI. Command overrides the
// binary looked up on PATH.
type CLIConfig struct {
	Command        string `mapstructure:"command"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

func Load() (*Config, error) {
	configPath, err := GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AddConfigPath(".")

	// Set defaults
	viper.SetDefault("provider", "openai")
	viper.SetDefault("serve.host", "127.0.0.1")
	viper.SetDefault("serve.port", 8189)
	viper.SetDefault("openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("openai.model", "gpt-4o-mini")
	viper.SetDefault("anthropic.model", "claude-sonnet-4-5")
	viper.SetDefault("claude-cli.command", "claude")
	viper.SetDefault("gemini-cli.command", "gemini")
	viper.SetDefault("gemini-cli.model", "gemini-2.5-flash")
	viper.SetDefault("codex-cli.command", "codex")

	// Read config file (optional - won't error if missing)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	resolveOpenAICredentials(&cfg.OpenAI)
	resolveAnthropicCredentials(&cfg.Anthropic)

	return &cfg, nil
}

// ApplyOverrides applies provider and model overrides to the config.
// If provider is non-empty, it overrides the global provider.
// If model is non-empty, it overrides the model for the active provider.
func (c *Config) ApplyOverrides(provider, model string) {
	if provider != "" {
		c.Provider = provider
	}
	if model != "" {
		switch c.Provider {
		case "openai":
			c.OpenAI.Model = model
		case "anthropic":
			c.Anthropic.Model = model
		case "claude-cli":
			c.ClaudeCLI.Model = model
		case "gemini-cli":
			c.GeminiCLI.Model = model
		case "codex-cli":
			c.CodexCLI.Model = model
		}
	}
}

func resolveOpenAICredentials(cfg *OpenAIConfig) {
	cfg.APIKey = expandEnv(cfg.APIKey)
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	cfg.BaseURL = expandEnv(cfg.BaseURL)
}

func resolveAnthropicCredentials(cfg *AnthropicConfig) {
	cfg.APIKey = expandEnv(cfg.APIKey)
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		varName := s[2 : len(s)-1]
		return os.Getenv(varName)
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// GetConfigDir returns the XDG config directory for comfy-assistant.
// Uses $XDG_CONFIG_HOME if set, otherwise ~/.config
func GetConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, "comfy-assistant"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "comfy-assistant"), nil
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// Exists returns true if a config file exists
func Exists() bool {
	path, err := GetConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}
