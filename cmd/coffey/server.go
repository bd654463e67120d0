package main

import (
	"context"
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

	"github.com/kalambet/coffey/internal/api"
	"github.com/kalambet/coffey/internal/blob"
	"github.com/kalambet/coffey/internal/bookmark"
	"github.com/kalambet/coffey/internal/config"
	"github.com/kalambet/coffey/internal/content"
	"github.com/kalambet/coffey/internal/enrich"
	"github.com/kalambet/coffey/internal/providers"
	"github.com/kalambet/coffey/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the coffey server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running coffey server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show coffey system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "coffey.pid")
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
	fmt.Fprintf(os.Stderr, "coffey version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("coffey is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("coffey is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open the index and blob stores.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	blobs, err := blob.Open(ctx, blob.Options{
		Backend:         cfg.Blob.Backend,
		Dir:             cfg.Blob.Dir,
		Bucket:          cfg.Blob.Bucket,
		Region:          cfg.Blob.Region,
		Endpoint:        cfg.Blob.Endpoint,
		AccessKeyID:     cfg.Blob.AccessKeyID,
		SecretAccessKey: cfg.Blob.SecretAccessKey,
	})
	if err != nil {
		return fmt.Errorf("opening blob store: %w", err)
	}
	slog.Info("blob store ready", "backend", cfg.Blob.Backend)

	// Build the enrichment fan-out from the provider adapters.
	googleKey := cfg.Providers.GoogleAPIKey
	geocoder := providers.NewGeocodeClient(googleKey)
	places := providers.NewPlacesClient(googleKey)
	enricher := &enrich.Enricher{
		Weather:    providers.NewWeatherClient(googleKey),
		AirQuality: providers.NewAirQualityClient(googleKey),
		Pollen:     providers.NewPollenClient(googleKey),
		Elevation:  providers.NewElevationClient(googleKey),
		Geocode:    geocoder,
		Places:     places,
		Links:      providers.NewLinkPreviewer(),
		Media:      providers.NewMediaClient(cfg.Providers.TMDBAPIKey),
	}

	// Content services.
	host := content.NewHostedImages(cfg.Images.AccountID, cfg.Images.AccountHash, cfg.Images.APIToken, cfg.Images.SigningKey)
	chatters := &content.Chatters{Enricher: enricher, Store: store, Blobs: blobs}
	images := &content.Images{Store: store, Blobs: blobs, Uploader: host, Enricher: enricher}

	// Bookmark pipeline: producer on a ticker, consumer polling the
	// job queue. Both run only when a raindrop.io token is configured.
	var syncer *bookmark.Syncer
	if cfg.BookmarksEnabled() {
		raindrop := bookmark.NewClient(cfg.Bookmarks.Token)
		syncer = &bookmark.Syncer{Client: raindrop, Store: store}
		archiver := &bookmark.ArtifactDownloader{Source: raindrop, Blobs: blobs}

		pollInterval, err := cfg.JobPollInterval()
		if err != nil {
			return fmt.Errorf("jobs.poll_interval: %w", err)
		}
		worker := bookmark.NewWorker(store, raindrop, blobs, archiver, pollInterval)
		go worker.Run(ctx)

		syncInterval, err := cfg.SyncInterval()
		if err != nil {
			return fmt.Errorf("bookmarks.sync_interval: %w", err)
		}
		go runSyncLoop(ctx, syncer, syncInterval)
		slog.Info("bookmark sync enabled", "interval", syncInterval)
	} else {
		slog.Info("bookmark sync disabled, no raindrop token")
	}

	// Build HTTP handler and server.
	deps := api.AppDeps{
		Chatters: chatters,
		Images:   images,
		Geocode:  geocoder,
		Places:   places,
		Signer:   host,
		Token:    cfg.Admin.Token,
	}
	if syncer != nil {
		deps.Sync = syncer
	}
	handler := api.NewAppHandler(deps)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Chatters: chatters,
		Images:   images,
		Places:   places,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "coffey listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runSyncLoop runs one discovery pass immediately, then one per tick.
func runSyncLoop(ctx context.Context, syncer *bookmark.Syncer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if stats, err := syncer.Run(ctx); err != nil {
			slog.Error("bookmark sync failed", "error", err)
		} else {
			slog.Info("bookmark sync complete", "new", stats.New, "existing", stats.Existing)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
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
		printError("coffey is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop coffey (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to coffey (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
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

	printStatus("Blob backend", "%s", cfg.Blob.Backend)
	if cfg.BookmarksEnabled() {
		printStatus("Bookmark sync", "enabled (every %s)", cfg.Bookmarks.SyncInterval)
	} else {
		printStatus("Bookmark sync", "disabled")
	}

	// Show image count if server is running.
	if running {
		admin := &apiClient{baseURL: serverURL, token: cfg.Admin.Token, httpClient: client}
		imgResp, err := admin.get(context.Background(), "/admin/images?limit=50")
		if err == nil {
			var images []map[string]any
			if decodeJSON(imgResp, &images) == nil {
				printStatus("Images", "%s", countLabel(len(images), 50))
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
