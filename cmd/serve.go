package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/assistant"
	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/budget"
	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/config"
	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/llm"
	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/protocol"
	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/tools"
)

var (
	serveHost              string
	servePort              int
	serveProvider          string
	serveModel             string
	serveSystemContextFile string
	serveUserContextFile   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the SSE chat backend",
	Long: `Run the HTTP backend the ComfyUI chat panel connects to.

Endpoints:
  POST /api/chat
  GET  /healthz`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Bind host (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Bind port (overrides config)")
	serveCmd.Flags().StringVar(&serveProvider, "provider", "", "Provider override (openai, anthropic, claude-cli, gemini-cli, codex-cli)")
	serveCmd.Flags().StringVar(&serveModel, "model", "", "Model override for the active provider")
	serveCmd.Flags().StringVar(&serveSystemContextFile, "system-context-file", "", "File with workflow/node context merged into the system message")
	serveCmd.Flags().StringVar(&serveUserContextFile, "user-context-file", "", "File with user notes merged into the system message")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogging()

	cfg, err := loadConfig(serveProvider, serveModel)
	if err != nil {
		return err
	}
	host := cfg.Serve.Host
	if serveHost != "" {
		host = serveHost
	}
	port := cfg.Serve.Port
	if servePort != 0 {
		port = servePort
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port %d (must be 1-65535)", port)
	}

	svc, err := buildService(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", handleChat(svc, logger))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"status":"ok"}`)
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	logger.Info("comfy-assistant listening",
		"addr", server.Addr,
		"provider", cfg.Provider)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildService wires the full pipeline: provider adapter, compaction
// retrier, budget engine, tool catalogue and context loading.
func buildService(cfg *config.Config, logger *slog.Logger) (*assistant.Service, error) {
	provider, err := llm.NewProviderFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	counter, err := budget.NewTokenCounter()
	if err != nil {
		// The estimate only gates trimming; fall back to the
		// char-based heuristic rather than refusing to start.
		logger.Warn("token encoding unavailable, using char estimate", "err", err)
		counter = nil
	}
	engine := budget.NewEngine(limitsFromConfig(cfg.Budget), counter)

	retrier := llm.NewCompactionRetrier(provider, engine, cfg.Budget.MaxCompactionAttempts, nil)
	contextProvider := fileContext{
		systemPath: serveSystemContextFile,
		userPath:   serveUserContextFile,
	}
	return assistant.New(retrier, engine, contextProvider, tools.Catalog(), nil), nil
}

func limitsFromConfig(b config.BudgetConfig) budget.Limits {
	limits := budget.DefaultLimits()
	if b.SystemContextChars > 0 {
		limits.SystemContextChars = b.SystemContextChars
	}
	if b.KeepToolRounds > 0 {
		limits.KeepToolRounds = b.KeepToolRounds
	}
	if b.MaxHistoryMessages > 0 {
		limits.MaxHistoryMessages = b.MaxHistoryMessages
	}
	if b.MaxPromptTokens > 0 {
		limits.MaxPromptTokens = b.MaxPromptTokens
	}
	return limits
}

// fileContext reads the context files on every request so edits on
// disk are picked up without a restart. A missing file is empty
// context, not an error.
type fileContext struct {
	systemPath string
	userPath   string
}

func (c fileContext) SystemContext(context.Context) (string, error) {
	return readContextFile(c.systemPath)
}

func (c fileContext) UserContext(context.Context) (string, error) {
	return readContextFile(c.userPath)
}

func readContextFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

func handleChat(svc *assistant.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req assistant.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		protocol.SetHeaders(w)
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		if err := svc.Respond(r.Context(), req, w, flusher.Flush); err != nil {
			// Headers are sent; all we can do is log.
			logger.Error("chat stream aborted", "err", err)
		}
	}
}
