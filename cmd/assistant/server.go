package main

import (
	"context"
	"encoding/json"
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
	"github.com/spf13/cobra"

	"github.com/omnicore/assistant/internal/api"
	"github.com/omnicore/assistant/internal/assistant"
	"github.com/omnicore/assistant/internal/chat"
	"github.com/omnicore/assistant/internal/config"
	"github.com/omnicore/assistant/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the assistant daemon (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and connection status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "omnicore.pid")
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

func runServer() error {
	fmt.Fprintf(os.Stderr, "omnicore version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if cfg.Server.APIToken == "" {
		printWarning("no API token configured; HTTP API is unauthenticated (set OMNI_API_TOKEN)")
	}

	// Refuse to double-start: probe the health endpoint before claiming the
	// PID file.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Fresh installations inherit the daemon's LLM settings; once the
	// assistant has stored its own configuration it wins.
	if !store.HasConfig() {
		seedStoredConfig(store, cfg.LLM)
	}

	a := assistant.New(store)

	// Startup probe so `status` has something to show immediately.
	probeCtx, cancelProbe := context.WithTimeout(ctx, 10*time.Second)
	status := a.RefreshConnection(probeCtx)
	cancelProbe()
	if status.Connected {
		slog.Info("inference endpoint ready", "provider", status.Provider, "model", status.Model)
	} else {
		slog.Warn("inference endpoint unreachable, replies degrade to simulation", "error", status.Error)
	}

	handler := api.NewHandler(api.Deps{Assistant: a, Token: cfg.Server.APIToken})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server on stdio, alongside HTTP.
	mcpSrv := api.NewMCPServer(api.MCPDeps{Assistant: a})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "omnicore listening on %s\n", addr)
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

// seedStoredConfig writes the daemon's bootstrap LLM settings as the initial
// stored configuration.
func seedStoredConfig(store *storage.Store, llm config.LLMConfig) {
	patch := chat.ConfigPatch{}
	if llm.Endpoint != "" {
		patch.Endpoint = &llm.Endpoint
	}
	if llm.Model != "" {
		provider := chat.ProviderOllama
		patch.Provider = &provider
		patch.Model = &llm.Model
	}
	if err := store.SaveConfig(patch); err != nil {
		slog.Warn("seeding stored configuration", "error", err)
	}
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
		printError("the assistant is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop the assistant (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to the assistant (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}

	resp, err := healthClient.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if running {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var refreshed chat.ConnectionStatus
		if resp, err := client.post(ctx, "/v1/status/refresh", nil); err == nil {
			if decodeJSON(resp, &refreshed) == nil {
				if refreshed.Connected {
					printStatus("Endpoint", "connected (%s, model %s)", refreshed.Provider, refreshed.Model)
				} else {
					printStatus("Endpoint", "disconnected: %s", refreshed.Error)
				}
			}
		}

		var msgs struct {
			Messages []json.RawMessage `json:"messages"`
		}
		if resp, err := client.get(ctx, "/v1/messages"); err == nil {
			if decodeJSON(resp, &msgs) == nil {
				printStatus("Messages", "%d", len(msgs.Messages))
			}
		}

		var mems struct {
			Memories []json.RawMessage `json:"memories"`
		}
		if resp, err := client.get(ctx, "/v1/memories"); err == nil {
			if decodeJSON(resp, &mems) == nil {
				printStatus("Memories", "%d", len(mems.Memories))
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
