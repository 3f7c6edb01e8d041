package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeKo-Tech/qrlens/internal/config"
	"github.com/MeKo-Tech/qrlens/internal/server"
	"github.com/MeKo-Tech/qrlens/internal/version"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for QR scanning",
	Long: `Start an HTTP server for still-image and live scanning.

The server provides the following endpoints:
  POST /scan/image - Decode an uploaded image (multipart field "image")
  GET  /ws/scan    - Live scanning; the client streams camera frames
  GET  /health     - Health check endpoint
  GET  /metrics    - Prometheus metrics

Examples:
  qrlens serve
  qrlens serve --port 8080
  qrlens serve --host 0.0.0.0 --port 3000 --requests-per-minute 60`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		applyServeFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		scanServer, err := server.NewServer(serverConfig(cfg))
		if err != nil {
			return fmt.Errorf("failed to initialize server: %w", err)
		}
		defer func() { _ = scanServer.Close() }()

		mux := http.NewServeMux()
		scanServer.SetupRoutes(mux)

		host, port := cfg.Server.Host, cfg.Server.Port
		// No write timeout: live scan connections are long-lived.
		httpServer := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", host, port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			slog.Info("Starting scan server", "host", host, "port", port, "version", version.Version)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Server error", "error", err)
				cancel()
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal", "signal", sig.String())
		case <-ctx.Done():
			slog.Info("Context cancelled, initiating shutdown")
		}

		shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
		slog.Info("Starting graceful shutdown", "timeout", shutdownTimeout.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		// Live sessions hold hijacked connections that Shutdown does not wait for.
		slog.Info("Closing live scan sessions", "active", scanServer.ActiveSessions())
		if err := scanServer.Close(); err != nil {
			slog.Error("Server cleanup error", "error", err)
		}

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		} else {
			slog.Info("HTTP server shutdown completed")
		}

		slog.Info("Graceful shutdown completed")
		return nil
	},
}

// applyServeFlags copies explicitly set server flags over cfg.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	fs := cmd.Flags()
	if fs.Changed("host") {
		cfg.Server.Host, _ = fs.GetString("host")
	}
	if fs.Changed("port") {
		cfg.Server.Port, _ = fs.GetInt("port")
	}
	if fs.Changed("cors-origin") {
		cfg.Server.CORSOrigin, _ = fs.GetString("cors-origin")
	}
	if fs.Changed("max-upload-size") {
		cfg.Server.MaxUploadMB, _ = fs.GetInt("max-upload-size")
	}
	if fs.Changed("max-frame-size") {
		cfg.Server.MaxFrameKB, _ = fs.GetInt("max-frame-size")
	}
	if fs.Changed("timeout") {
		cfg.Server.TimeoutSec, _ = fs.GetInt("timeout")
	}
	if fs.Changed("shutdown-timeout") {
		cfg.Server.ShutdownTimeout, _ = fs.GetInt("shutdown-timeout")
	}
	if fs.Changed("requests-per-minute") {
		cfg.Server.RateLimit.RequestsPerMinute, _ = fs.GetInt("requests-per-minute")
	}
	if fs.Changed("requests-per-hour") {
		cfg.Server.RateLimit.RequestsPerHour, _ = fs.GetInt("requests-per-hour")
	}
	if fs.Changed("requests-per-day") {
		cfg.Server.RateLimit.RequestsPerDay, _ = fs.GetInt("requests-per-day")
	}
	if fs.Changed("max-mb-per-hour") {
		cfg.Server.RateLimit.MaxMBPerHour, _ = fs.GetInt("max-mb-per-hour")
	}
	applyFlagOverrides(cmd, cfg)
}

// serverConfig maps the configuration onto server.Config.
func serverConfig(cfg *config.Config) server.Config {
	rl := cfg.Server.RateLimit
	return server.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		CORSOrigin:  cfg.Server.CORSOrigin,
		MaxUploadMB: int64(cfg.Server.MaxUploadMB),
		MaxFrameKB:  cfg.Server.MaxFrameKB,
		TimeoutSec:  cfg.Server.TimeoutSec,
		Barcode:     cfg.BarcodeOptions(),
		ScanOptions: cfg.ScanOptions(),
		Version:     version.Version,
		Logger:      slog.Default(),
		RateLimits: server.RateLimits{
			RequestsPerMinute: rl.RequestsPerMinute,
			RequestsPerHour:   rl.RequestsPerHour,
			RequestsPerDay:    rl.RequestsPerDay,
			BytesPerHour:      int64(rl.MaxMBPerHour) * 1024 * 1024,
		},
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origin (also checked on WebSocket upgrades)")
	serveCmd.Flags().Int("max-upload-size", 10, "maximum upload size in MB")
	serveCmd.Flags().Int("max-frame-size", 4096, "maximum live frame size in KB")
	serveCmd.Flags().Int("timeout", 30, "still-image decode timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	addDecodeFlags(serveCmd)
	serveCmd.Flags().Int("decode-timeout", 0, "per-frame decode timeout for live sessions in milliseconds (0: none)")
	// Rate limiting flags; 0 disables a limit
	serveCmd.Flags().Int("requests-per-minute", 0, "maximum requests per minute per client")
	serveCmd.Flags().Int("requests-per-hour", 0, "maximum requests per hour per client")
	serveCmd.Flags().Int("requests-per-day", 0, "maximum requests per day per client")
	serveCmd.Flags().Int("max-mb-per-hour", 0, "maximum uploaded megabytes per hour per client")
}
