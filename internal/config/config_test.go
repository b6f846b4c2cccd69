package config

import (
	"os"
	"testing"
)

func TestApplyOverrides(t *testing.T) {
	cfg := &Config{
		Provider: "openai",
		OpenAI: OpenAIConfig{
			Model: "gpt-4o-mini",
		},
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet-4-5",
		},
		ClaudeCLI: CLIConfig{
			Model: "claude-sonnet-4-5",
		},
	}

	cfg.ApplyOverrides("anthropic", "claude-opus-4-5")
	if cfg.Provider != "anthropic" {
		t.Fatalf("provider=%q, want %q", cfg.Provider, "anthropic")
	}
	if cfg.Anthropic.Model != "claude-opus-4-5" {
		t.Fatalf("anthropic model=%q, want %q", cfg.Anthropic.Model, "claude-opus-4-5")
	}
	if cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Fatalf("openai model changed unexpectedly: %q", cfg.OpenAI.Model)
	}

	cfg.ApplyOverrides("", "claude-haiku-4-5")
	if cfg.Provider != "anthropic" {
		t.Fatalf("provider changed unexpectedly: %q", cfg.Provider)
	}
	if cfg.Anthropic.Model != "claude-haiku-4-5" {
		t.Fatalf("anthropic model=%q, want %q", cfg.Anthropic.Model, "claude-haiku-4-5")
	}
}

func TestExpandEnv(t *testing.T) {
	os.Setenv("COMFY_TEST_KEY", "sk-test")
	defer os.Unsetenv("COMFY_TEST_KEY")

	cases := []struct {
		in   string
		want string
	}{
		{"${COMFY_TEST_KEY}", "sk-test"},
		{"$COMFY_TEST_KEY", "sk-test"},
		{"literal-key", "literal-key"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := expandEnv(tc.in); got != tc.want {
			t.Errorf("expandEnv(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
