package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/llm"
)

var modelsJSON bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available models on the configured OpenAI-compatible endpoint",
	Long: `List available models on the configured OpenAI-compatible endpoint.

Useful for discovering model names to put in the config, especially
against local servers like Ollama or LM Studio.

Examples:
  comfy-assistant models          # list models from the configured endpoint
  comfy-assistant models --json   # output as JSON`,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "Output as JSON")
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("", "")
	if err != nil {
		return err
	}

	provider := llm.NewOpenAIProvider(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.MaxTokens)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	models, err := provider.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}

	if modelsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(models)
	}

	if len(models) == 0 {
		fmt.Println("no models available")
		return nil
	}
	for _, model := range models {
		line := model.ID
		if model.OwnedBy != "" {
			line += "  (" + model.OwnedBy + ")"
		}
		fmt.Println(line)
	}
	return nil
}
