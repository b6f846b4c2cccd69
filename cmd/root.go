package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "comfy-assistant",
	Short: "Chat backend for the ComfyUI assistant panel",
	Long: `comfy-assistant streams model responses to the ComfyUI chat panel
and translates them into workflow-editing tool calls.

Examples:
  comfy-assistant serve                         # start the SSE backend
  comfy-assistant serve --provider claude-cli   # use the claude CLI instead of an API
  comfy-assistant models                        # list models on the configured endpoint`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

var debugLogs bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugLogs, "debug", false, "Emit debug logs")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the YAML config and applies command-line
// provider/model overrides.
func loadConfig(provider, model string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.ApplyOverrides(provider, model)
	return cfg, nil
}

func setupLogging() *slog.Logger {
	level := slog.LevelInfo
	if debugLogs {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
