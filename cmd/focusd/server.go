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
	"github.com/spf13/cobra"

	"github.com/kalambet/focusd/internal/api"
	"github.com/kalambet/focusd/internal/blocklist"
	"github.com/kalambet/focusd/internal/classify"
	"github.com/kalambet/focusd/internal/config"
	"github.com/kalambet/focusd/internal/matcher"
	"github.com/kalambet/focusd/internal/realtime"
	"github.com/kalambet/focusd/internal/remote"
	"github.com/kalambet/focusd/internal/store"
	"github.com/kalambet/focusd/internal/syncer"
	"github.com/kalambet/focusd/internal/tracker"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the focusd agent (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running focusd agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "focusd.pid")
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

// matchUpgrader propagates a successful match into the classification cache
// and lifts any block on the resource's domain in the same step.
type matchUpgrader struct {
	classifier *classify.Classifier
	table      *blocklist.Table
}

func (u *matchUpgrader) UpgradeToProductive(resourceKey string) error {
	if err := u.classifier.UpgradeToProductive(resourceKey); err != nil {
		return err
	}
	if domain := domainOf(resourceKey); domain != "" {
		if err := u.table.Remove(domain); err != nil {
			slog.Warn("unblocking matched resource failed", "domain", domain, "error", err)
		}
	}
	return nil
}

// domainOf extracts the blockable domain from a resource key. Video keys
// ("platform:external_id") have no domain of their own.
func domainOf(resourceKey string) string {
	if strings.Contains(resourceKey, ":") {
		return ""
	}
	return resourceKey
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "focusd version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Refuse to double-start: probe the health endpoint before claiming the PID file.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("focusd is already running (PID %d)", pid)
			return fmt.Errorf("agent already running (PID %d)", pid)
		}
		printWarning("focusd is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("agent already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	st.SetQueueCapacity(cfg.Storage.QueueCapacity)
	defer func() {
		if err := st.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing store: %v\n", err)
		}
	}()

	classifier := classify.New(st,
		splitCSV(cfg.Classify.ProductiveKeywords),
		splitCSV(cfg.Classify.DistractingKeywords),
	)

	remoteClient := remote.NewClient(cfg.Remote.BaseURL)
	sync := syncer.New(st, remoteClient)

	// A credential persisted by a previous login survives restarts.
	if cred, err := st.GetState(api.CredentialKey); err == nil && cred != "" {
		remoteClient.SetCredential(cred)
		sync.SetAuthenticated(true)
		slog.Info("restored remote credential")
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("reading credential: %w", err)
	}

	hostsPath := ""
	if cfg.Block.Mode == "hard" {
		hostsPath = cfg.Block.RulesPath
	}
	table := blocklist.New(st, hostsPath)

	match := matcher.New(remoteClient, remoteClient, st,
		&matchUpgrader{classifier: classifier, table: table},
		remoteClient,
	)

	tr := tracker.New(tracker.Config{
		TickInterval: time.Duration(cfg.Tracker.TickSeconds) * time.Second,
		MaxSession:   time.Duration(cfg.Tracker.MaxSessionSeconds) * time.Second,
		FocusGrace:   time.Duration(cfg.Tracker.FocusGraceSeconds) * time.Second,
	}, st, sync, classifier)
	if err := tr.RestoreFromStore(); err != nil {
		slog.Warn("restoring tracker state failed", "error", err)
	}

	channel := realtime.New(realtime.Config{URL: cfg.Remote.RealtimeURL},
		realtime.Dial, table, remoteClient.Credential)

	go tr.Run(ctx)
	go sync.Run(ctx)
	go channel.Run(ctx)

	// Drain whatever queued up while the agent was down.
	if sync.Authenticated() {
		go func() {
			flushCtx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			if err := sync.FlushQueue(flushCtx); err != nil {
				slog.Warn("startup queue flush failed", "error", err)
			}
		}()
	}

	handler := api.NewHandler(api.Deps{
		Tracker:   tr,
		Store:     st,
		Syncer:    sync,
		Remote:    remoteClient,
		Realtime:  channel,
		Matcher:   match,
		Blocklist: table,
		Token:     cfg.Server.APIToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server over stdio, for assistants attached to the agent.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Tracker:   tr,
		Store:     st,
		Realtime:  channel,
		Blocklist: table,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "focusd listening on %s\n", addr)
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
		printError("focusd is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop focusd (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to focusd (PID %d)", pid)
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

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Agent", "stopped")
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		printStatus("Agent", "error (HTTP %d)", resp.StatusCode)
		return nil
	}
	printStatus("Agent", "running on port %d", cfg.Server.Port)

	apiClient, err := newAPIClient()
	if err != nil {
		return err
	}
	statusResp, err := apiClient.get(ctx, "/status")
	if err != nil {
		printError("could not read status: %v", err)
		return nil
	}
	var status api.StatusResponse
	if err := decodeJSON(statusResp, &status); err != nil {
		return err
	}

	if status.Session.Active {
		printStatus("Session", "%s (%.0fs)", status.Session.ResourceKey, time.Since(status.Session.Start).Seconds())
	} else {
		printStatus("Session", "none")
	}
	printStatus("Realtime", "%s", status.Realtime.State)
	printStatus("Queue", "%d pending", status.QueueDepth)
	if status.Authenticated {
		printStatus("Remote", "logged in")
	} else {
		printStatus("Remote", "logged out")
	}
	printStatus("Block mode", "%s", cfg.Block.Mode)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
