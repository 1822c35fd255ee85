package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kalambet/sage/internal/api"
	"github.com/kalambet/sage/internal/config"
	"github.com/kalambet/sage/internal/corpus"
	"github.com/kalambet/sage/internal/engine"
	"github.com/kalambet/sage/internal/logging"
	"github.com/kalambet/sage/internal/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sage server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running sage server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sage system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "sage.pid")
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

func runServer(withMCP bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, syncLogs, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return err
	}
	defer syncLogs()
	logger.Info("starting sage", zap.String("version", version))

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	pidPath := pidFilePath(cfg.Storage.DataDir)
	if healthy(baseURL) {
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer os.Remove(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, tracing.Options{
		Enabled:  cfg.Tracing.Enabled,
		Endpoint: cfg.Tracing.Endpoint,
		Version:  version,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Warn("flushing traces", zap.Error(err))
		}
	}()

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing storage", zap.Error(err))
		}
	}()

	// Embeddings always come from the local engine; the chat model only
	// when it also answers stages.
	chatModel := ""
	if cfg.LLM.Provider == config.ProviderOllama {
		chatModel = cfg.Ollama.ChatModel
	}
	if err := engine.EnsureReady(ctx, a.engine, chatModel, cfg.Ollama.EmbedModel, os.Stderr); err != nil {
		return err
	}

	if cfg.Corpus.Watch {
		w, err := corpus.NewWatcher(a.corpus, logger)
		if err != nil {
			logger.Warn("corpus watcher disabled", zap.Error(err))
		} else {
			defer w.Close()
			go w.Run(ctx)
		}
	}

	go a.indexer.Run(ctx, 0)

	handler := api.NewHandler(api.Deps{
		Service:    a.responder,
		Token:      cfg.Server.APIToken,
		AskLimiter: api.NewLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst),
		Logger:     logger,
	})
	if cfg.Server.APIToken == "" {
		logger.Warn("server.api_token unset, /v1 is unauthenticated")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	if withMCP {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(a.responder, version))
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("MCP stdio server error", zap.Error(err))
			}
		}()
		logger.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
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
		return fmt.Errorf("could not load config: %w", err)
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("sage is not running (no PID file): %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("could not find process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		os.Remove(pidPath)
		return fmt.Errorf("could not stop sage (PID %d): %w", pid, err)
	}

	printSuccess("Sent stop signal to sage (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	running := healthy(baseURL)
	if running {
		printStatus("Server", "running on port %d", cfg.Server.Port)
	} else {
		printStatus("Server", "stopped")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	eng := engine.NewOllamaEngine(cfg.Ollama.BaseURL)
	if eng.IsRunning(ctx) {
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	} else {
		printStatus("Ollama", "not running")
	}

	printStatus("Provider", "%s", cfg.LLM.Provider)
	printStatus("Chat model", "%s", cfg.ChatModel())
	printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)
	printStatus("Reranking", "%s", cfg.Reranking.Mode)

	if m, err := corpus.LoadManifest(cfg.Corpus.Manifest); err == nil {
		printStatus("Corpus", "%d documents (%s)", len(m.Documents), cfg.Corpus.Manifest)
	} else {
		printStatus("Corpus", "unavailable: %v", err)
	}

	if running {
		client, err := newAPIClient()
		if err == nil {
			if names, err := fetchPipelines(ctx, client); err == nil {
				printStatus("Pipelines", "%s", strings.Join(names, ", "))
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
