package llm

import (
	"fmt"
	"time"

	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/config"
)

// NewProviderFromConfig builds the provider named by cfg.Provider.
func NewProviderFromConfig(cfg *config.Config) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.MaxTokens), nil
	case "anthropic":
		if cfg.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key (set ANTHROPIC_API_KEY or anthropic.api_key)")
		}
		return NewAnthropicProvider(cfg.Anthropic.APIKey, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens), nil
	case "claude-cli":
		return newCLIFromConfig(ClaudeCLISpec(), cfg.ClaudeCLI), nil
	case "gemini-cli":
		return newCLIFromConfig(GeminiCLISpec(), cfg.GeminiCLI), nil
	case "codex-cli":
		return newCLIFromConfig(CodexCLISpec(), cfg.CodexCLI), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (expected openai, anthropic, claude-cli, gemini-cli or codex-cli)", cfg.Provider)
	}
}

func newCLIFromConfig(spec CLISpec, cfg config.CLIConfig) *CLIProvider {
	return NewCLIProvider(spec, cfg.Command, cfg.Model, time.Duration(cfg.TimeoutSeconds)*time.Second)
}
