package cmd

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/qrlens/internal/barcode"
	"github.com/MeKo-Tech/qrlens/internal/present"
	"github.com/MeKo-Tech/qrlens/internal/scan"
	"github.com/MeKo-Tech/qrlens/internal/utils"
	"github.com/spf13/cobra"
)

// errNoCode is returned when none of the images held a QR code.
var errNoCode = errors.New("no QR code found")

// imageCmd represents the image command.
var imageCmd = &cobra.Command{
	Use:   "image <file|dir>...",
	Short: "Scan QR codes in image files",
	Long: `Decode QR codes in one or more image files. Directories are expanded one
level deep. Each image reports its first non-empty code.

Supported formats: JPEG, PNG, BMP, WebP, TIFF

Examples:
  qrlens image ticket.png
  qrlens image ./photos --format json
  qrlens image flyer.jpg --open`,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return errors.New("no input files provided")
		}
		cfg, err := loadCommandConfig(cmd)
		if err != nil {
			return err
		}

		files, err := utils.DiscoverImages(args)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return errors.New("no supported images found")
		}

		dec, err := barcode.NewFrameDecoder(nil, cfg.BarcodeOptions())
		if err != nil {
			return fmt.Errorf("failed to create decoder: %w", err)
		}
		actions := present.NewActions(cfg.Output.ShareDir, cfg.Output.SnapshotDir)

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		timeout := time.Duration(cfg.Scan.DecodeTimeoutMs) * time.Millisecond

		results := make([]present.Result, 0, len(files))
		for i, path := range files {
			r, img, found, err := scanImageFile(ctx, dec, path, timeout)
			if err != nil {
				return err
			}
			if !found {
				slog.Info("No QR code in image", "file", path)
				continue
			}
			r.Seq = uint64(i + 1) //nolint:gosec // G115: index is non-negative
			if snap, err := actions.Snapshot(r.Seq, img); err != nil {
				slog.Warn("Snapshot failed", "file", path, "error", err)
			} else {
				r.Snapshot = snap
			}
			if cfg.Actions.AutoCopy {
				if err := actions.Copy(r.Payload); err != nil {
					slog.Warn("Copy failed", "file", path, "error", err)
				}
			}
			if cfg.Actions.AutoOpen && r.URL != "" {
				if _, err := actions.Open(r.Payload); err != nil {
					slog.Warn("Open failed", "file", path, "error", err)
				}
			}
			if cfg.Output.ShareDir != "" {
				if shared, err := actions.Share(r, img); err != nil {
					slog.Warn("Share failed", "file", path, "error", err)
				} else {
					r.SharedTo = shared
				}
			}
			results = append(results, r)
		}

		if len(results) == 0 {
			return errNoCode
		}
		if len(results) == 1 {
			return present.Write(cmd.OutOrStdout(), cfg.Output.Format, results[0])
		}
		return present.Write(cmd.OutOrStdout(), cfg.Output.Format, results)
	},
}

// scanImageFile decodes path and applies the first-non-empty-payload rule.
func scanImageFile(ctx context.Context, dec *barcode.FrameDecoder, path string, timeout time.Duration) (present.Result, image.Image, bool, error) {
	img, meta, err := utils.LoadImage(path)
	if err != nil {
		return present.Result{}, nil, false, err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	results, err := dec.DecodeImage(ctx, img)
	if err != nil {
		return present.Result{}, nil, false, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	slog.Debug("Image decoded", "file", path, "format", meta.Format, "symbols", len(results), "duration", time.Since(start))

	payload, ok := scan.FirstPayload(barcode.Payloads(results))
	if !ok {
		return present.Result{}, nil, false, nil
	}
	now := time.Now()
	payload = present.SanitizePayload(payload)
	u, _ := present.NormalizeURL(payload)
	return present.Result{
		Payload:    payload,
		URL:        u,
		Scanned:    present.FormatTimestamp(now),
		DetectedAt: now,
		Source:     path,
	}, img, true, nil
}

func init() {
	rootCmd.AddCommand(imageCmd)
	addDecodeFlags(imageCmd)
	addOutputFlags(imageCmd)
	imageCmd.Flags().Int("decode-timeout", 0, "decode timeout per image in milliseconds (0: none)")
}
