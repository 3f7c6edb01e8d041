package cmd

import (
	"github.com/MeKo-Tech/qrlens/internal/config"
	"github.com/spf13/cobra"
)

// addCameraFlags registers the camera source flags.
func addCameraFlags(cmd *cobra.Command) {
	cmd.Flags().String("source", config.SourceDevice, "frame source: device or replay")
	cmd.Flags().String("device", "0", "camera device index or path")
	cmd.Flags().String("front-device", "", "device used for the front camera (default: same as --device)")
	cmd.Flags().String("facing", "back", "camera facing: back or front")
	cmd.Flags().Float64("fps", 15, "frames per second")
	cmd.Flags().Int("rotation", 0, "sensor rotation in degrees clockwise (0, 90, 180, 270)")
	cmd.Flags().Float64("zoom", 0, "linear zoom ratio (0..1)")
	cmd.Flags().Bool("torch", false, "switch the torch on (back camera only)")
	cmd.Flags().StringSlice("replay", nil, "image files or directories played as camera frames (implies --source replay)")
	cmd.Flags().Bool("loop", true, "loop replayed images")
	cmd.Flags().String("permission", "", "camera permission override: granted or denied")
}

// addDecodeFlags registers the decoder flags.
func addDecodeFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("try-harder", true, "spend more time looking for codes")
	cmd.Flags().Bool("multi", true, "look for several codes per image")
}

// addOutputFlags registers the result output flags.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "f", "text", "output format: text, json or yaml")
	cmd.Flags().String("snapshot-dir", "", "save a thumbnail of each detection into this directory")
	cmd.Flags().String("share-dir", "", "directory the share action writes to")
	cmd.Flags().Bool("copy", false, "copy each result to the clipboard")
	cmd.Flags().Bool("open", false, "open each result that is a URL in the browser")
}

// applyFlagOverrides copies explicitly set flags over cfg. Flags a command
// does not define are skipped.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	fs := cmd.Flags()
	changed := func(name string) bool {
		return fs.Lookup(name) != nil && fs.Changed(name)
	}

	if changed("source") {
		cfg.Camera.Source, _ = fs.GetString("source")
	}
	if changed("device") {
		cfg.Camera.Device, _ = fs.GetString("device")
	}
	if changed("front-device") {
		cfg.Camera.FrontDevice, _ = fs.GetString("front-device")
	}
	if changed("facing") {
		cfg.Camera.Facing, _ = fs.GetString("facing")
	}
	if changed("fps") {
		cfg.Camera.FPS, _ = fs.GetFloat64("fps")
	}
	if changed("rotation") {
		cfg.Camera.Rotation, _ = fs.GetInt("rotation")
	}
	if changed("zoom") {
		cfg.Camera.Zoom, _ = fs.GetFloat64("zoom")
	}
	if changed("torch") {
		cfg.Camera.Torch, _ = fs.GetBool("torch")
	}
	if changed("replay") {
		cfg.Camera.ReplayPaths, _ = fs.GetStringSlice("replay")
		if !changed("source") {
			cfg.Camera.Source = config.SourceReplay
		}
	}
	if changed("loop") {
		cfg.Camera.Loop, _ = fs.GetBool("loop")
	}
	if changed("permission") {
		cfg.Camera.Permission, _ = fs.GetString("permission")
	}

	if changed("try-harder") {
		cfg.Scan.TryHarder, _ = fs.GetBool("try-harder")
	}
	if changed("multi") {
		cfg.Scan.Multi, _ = fs.GetBool("multi")
	}
	if changed("decode-timeout") {
		cfg.Scan.DecodeTimeoutMs, _ = fs.GetInt("decode-timeout")
	}

	if changed("format") {
		cfg.Output.Format, _ = fs.GetString("format")
	}
	if changed("snapshot-dir") {
		cfg.Output.SnapshotDir, _ = fs.GetString("snapshot-dir")
	}
	if changed("share-dir") {
		cfg.Output.ShareDir, _ = fs.GetString("share-dir")
	}
	if changed("copy") {
		cfg.Actions.AutoCopy, _ = fs.GetBool("copy")
	}
	if changed("open") {
		cfg.Actions.AutoOpen, _ = fs.GetBool("open")
	}
	if changed("interactive") {
		cfg.Actions.Interactive, _ = fs.GetBool("interactive")
	}
	if changed("dismiss-after") {
		cfg.Actions.DismissAfterMs, _ = fs.GetInt("dismiss-after")
	}
}

// loadCommandConfig returns the merged configuration for cmd, validated.
func loadCommandConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := GetConfig()
	applyFlagOverrides(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
