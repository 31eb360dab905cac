package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/kalambet/storemate/internal/api"
	"github.com/kalambet/storemate/internal/cache"
	"github.com/kalambet/storemate/internal/composer"
	"github.com/kalambet/storemate/internal/config"
	"github.com/kalambet/storemate/internal/conversation"
	"github.com/kalambet/storemate/internal/faq"
	"github.com/kalambet/storemate/internal/ingest"
	"github.com/kalambet/storemate/internal/llm"
	"github.com/kalambet/storemate/internal/logging"
	"github.com/kalambet/storemate/internal/metrics"
	"github.com/kalambet/storemate/internal/ollama"
	"github.com/kalambet/storemate/internal/pipeline"
	"github.com/kalambet/storemate/internal/profile"
	"github.com/kalambet/storemate/internal/storage"
	"github.com/kalambet/storemate/internal/telegram"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the storemate server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

func init() {
	startCmd.Flags().Bool("mcp", true, "serve MCP tools on stdin/stdout")
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running storemate server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show storemate system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

// callTimeoutSlack covers rate-limit waits on top of the caller's retry budget.
const callTimeoutSlack = 15 * time.Second

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "storemate.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "storemate version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.Log.Level)

	if err := cfg.Validate(); err != nil {
		return err
	}

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Refuse to start twice: a live /health means another instance owns the port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("storemate is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("storemate is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ollamaClient := ollama.New(cfg.Ollama.BaseURL)
	if err := ollama.EnsureReady(ctx, ollamaClient, cfg.Ollama.EmbedModel, os.Stderr); err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Similarity index: bundled or configured bank first, then operator entries.
	embedder := faq.NewOllamaEmbedder(ollamaClient, cfg.Ollama.EmbedModel)
	index := faq.NewIndex(embedder, cfg.FAQ.Threshold, cfg.FAQ.TopK)
	bank, err := faq.LoadBank(cfg.FAQ.BankPath)
	if err != nil {
		return err
	}
	printStep("Embedding %d FAQ entries...", len(bank))
	loaded, err := index.Load(ctx, bank)
	if err != nil {
		return err
	}
	restored, err := ingest.Restore(ctx, store, index)
	if err != nil {
		return fmt.Errorf("restoring FAQ entries: %w", err)
	}
	slog.Info("FAQ index ready", "bank", loaded, "operator", restored)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg, store, 0)

	respCache := cache.New(cfg.Cache.TTL, cfg.Cache.Capacity)
	history := conversation.NewStore(0)
	profileMgr := profile.NewManager(store)

	caller := llm.NewCaller(llm.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Timeout), llm.Options{
		MaxRetries:       cfg.LLM.MaxRetries,
		MinResponseChars: cfg.LLM.MinResponseChars,
		BackoffUnit:      cfg.LLM.BackoffUnit,
		RateLimit:        cfg.LLM.RateLimit,
	})

	resolver := pipeline.New(pipeline.Deps{
		Cache:    respCache,
		History:  history,
		Index:    index,
		Model:    caller,
		Composer: composer.New(0),
		Profile:  profileMgr,
		Recorder: collector,
	}, pipeline.Options{
		Model:        cfg.LLM.Model,
		ContextTurns: cfg.Conversation.ContextTurns,
		RefineFAQ:    cfg.FAQ.Refine,
		CallTimeout:  caller.Budget(cfg.LLM.Timeout) + callTimeoutSlack,
	})

	deps := api.Deps{
		Resolver: resolver,
		Store:    store,
		Index:    index,
		Cache:    respCache,
		History:  history,
		Metrics:  collector,
		Profile:  profileMgr,
		Gatherer: reg,
		Token:    apiToken,
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(deps),
	}

	worker := ingest.NewWorker(store, embedder, index, 500*time.Millisecond)
	go worker.Run(ctx)

	if cfg.Telegram.Enabled {
		bot := telegram.NewBot(telegram.NewClient(cfg.Telegram.Token, ""), resolver)
		go func() {
			if err := bot.Run(ctx); err != nil {
				slog.Error("telegram bot stopped", "error", err)
			}
		}()
	}

	if withMCP {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(deps, version))
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "storemate listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("storemate is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop storemate (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to storemate (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	statusCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if ollama.New(cfg.Ollama.BaseURL).IsRunning(statusCtx) {
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	} else {
		printStatus("Ollama", "not running")
	}

	printStatus("Model", "%s (%s)", cfg.LLM.Model, cfg.LLM.BaseURL)
	printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)
	if cfg.LLM.APIKey == "" {
		printWarning("DeepSeek API key is not set")
	}
	telegramState := "disabled"
	if cfg.Telegram.Enabled {
		telegramState = "enabled"
	}
	printStatus("Telegram", "%s", telegramState)

	if running {
		if c, err := newAPIClient(); err == nil {
			c.httpClient = client
			printServerCounts(statusCtx, c)
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func printServerCounts(ctx context.Context, c *apiClient) {
	resp, err := c.get(ctx, "/faq/stats")
	if err == nil {
		var stats faq.Stats
		if decodeJSON(resp, &stats) == nil {
			printStatus("FAQ entries", "%d", stats.Total)
		}
	}

	resp, err = c.get(ctx, "/stats")
	if err == nil {
		var stats struct {
			Conversations int                       `json:"conversations"`
			MessagesTotal int64                     `json:"messages_total"`
			Jobs          map[storage.JobStatus]int `json:"faq_embed_jobs"`
		}
		if decodeJSON(resp, &stats) == nil {
			printStatus("Conversations", "%d", stats.Conversations)
			printStatus("Messages", "%d", stats.MessagesTotal)
			if n := stats.Jobs[storage.JobPending]; n > 0 {
				printStatus("Pending embeddings", "%d", n)
			}
		}
	}
}
