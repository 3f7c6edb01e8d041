package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/MeKo-Tech/qrlens/internal/barcode"
	"github.com/MeKo-Tech/qrlens/internal/camera"
	"github.com/MeKo-Tech/qrlens/internal/config"
	"github.com/MeKo-Tech/qrlens/internal/present"
	"github.com/MeKo-Tech/qrlens/internal/scan"
	"github.com/MeKo-Tech/qrlens/internal/session"
	"github.com/spf13/cobra"
)

// scanCmd represents the scan command.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan QR codes from a live camera",
	Long: `Open the camera and scan continuously. Each detected code is printed
once; in interactive mode press enter to scan again, c to copy, s to share
and o to open a URL.

Camera settings (facing, zoom, torch) are reloaded when the config file
changes, and a camera that failed to open is retried at that point.

Examples:
  qrlens scan
  qrlens scan --facing front --zoom 0.3
  qrlens scan --replay ./frames --once --format json`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadCommandConfig(cmd)
		if err != nil {
			return err
		}
		once, _ := cmd.Flags().GetBool("once")
		watch, _ := cmd.Flags().GetBool("watch")

		parent := cmd.Context()
		if parent == nil {
			parent = context.Background()
		}
		ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runScan(ctx, cmd, cfg, once, watch)
	},
}

func runScan(ctx context.Context, cmd *cobra.Command, cfg *config.Config, once, watch bool) error {
	logger := slog.Default()

	source, err := cfg.NewSource(logger)
	if err != nil {
		return err
	}
	dec, err := barcode.NewFrameDecoder(nil, cfg.BarcodeOptions())
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	dec.WithLogger(logger)
	settings, err := cfg.SessionSettings()
	if err != nil {
		return err
	}

	popts := cfg.PresenterOptions(logger)
	if cfg.Actions.Interactive && !once {
		popts.Input = cmd.InOrStdin()
	}
	if once {
		popts.DismissAfter = 0
	}
	term := present.NewTerminal(cmd.OutOrStdout(), present.NewActions(cfg.Output.ShareDir, cfg.Output.SnapshotDir), popts)

	done := make(chan struct{})
	var doneOnce sync.Once
	finish := func() { doneOnce.Do(func() { close(done) }) }

	var presenter session.Presenter = term
	if once {
		presenter = session.PresenterFunc(func(ctx context.Context, d scan.Detection, _ func()) {
			term.Present(ctx, d, func() {})
			finish()
		})
	}

	sess := session.New(source, dec,
		session.WithPresenter(presenter),
		session.WithSettings(settings),
		session.WithLogger(logger),
		session.WithScanOptions(cfg.ScanOptions()...),
		session.WithStreamEndHandler(func() {
			logger.Info("Camera stream ended")
			finish()
		}),
	)
	defer func() { _ = sess.Close() }()

	watching := false
	if watch {
		watching = GetConfigLoader().Watch(func(newCfg *config.Config, err error) {
			if err != nil {
				logger.Warn("Ignoring invalid config change", "error", err)
				return
			}
			applyFlagOverrides(cmd, newCfg)
			st, err := newCfg.SessionSettings()
			if err != nil {
				logger.Warn("Ignoring invalid camera settings", "error", err)
				return
			}
			if err := sess.Apply(ctx, st); err != nil {
				logger.Warn("Applying camera settings failed", "error", err)
				return
			}
			logger.Info("Camera settings reloaded", "facing", st.Facing.String(), "zoom", st.Zoom, "torch", st.Torch)
		})
	}

	if err := sess.Start(ctx); err != nil {
		if errors.Is(err, camera.ErrPermissionDenied) {
			return fmt.Errorf("cannot scan: %w", err)
		}
		if !watching {
			return fmt.Errorf("failed to start camera: %w", err)
		}
		logger.Warn("Camera unavailable, waiting for a config change to retry", "error", err)
	}
	logger.Info("Scanning", "session", sess.ID(), "source", cfg.Camera.Source, "facing", settings.Facing.String())

	select {
	case <-ctx.Done():
	case <-done:
	}

	logger.Info("Scan finished", "stats", sess.Stats())
	return nil
}

func init() {
	rootCmd.AddCommand(scanCmd)
	addCameraFlags(scanCmd)
	addDecodeFlags(scanCmd)
	addOutputFlags(scanCmd)
	scanCmd.Flags().Int("decode-timeout", 0, "per-frame decode timeout in milliseconds (0: none)")
	scanCmd.Flags().Bool("interactive", true, "read result commands from stdin")
	scanCmd.Flags().Int("dismiss-after", 0, "resume scanning automatically after this many milliseconds")
	scanCmd.Flags().Bool("once", false, "exit after the first detection")
	scanCmd.Flags().Bool("watch", true, "reload camera settings when the config file changes")
}
