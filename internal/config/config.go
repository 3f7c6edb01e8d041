package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/qrlens/internal/barcode"
	"github.com/MeKo-Tech/qrlens/internal/camera"
	"github.com/MeKo-Tech/qrlens/internal/present"
	"github.com/MeKo-Tech/qrlens/internal/scan"
	"github.com/MeKo-Tech/qrlens/internal/session"
)

// Camera source kinds.
const (
	SourceDevice = "device"
	SourceReplay = "replay"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Camera: CameraConfig{
			Source:     SourceDevice,
			Device:     "0",
			Facing:     "back",
			FPS:        15,
			Width:      1280,
			Height:     720,
			Loop:       true,
			Permission: "granted",
		},
		Scan: ScanConfig{
			DecodeTimeoutMs: 0,
			TryHarder:       true,
			Multi:           true,
			Capture:         true,
		},
		Output: OutputConfig{
			Format: present.FormatText,
		},
		Actions: ActionsConfig{
			Interactive: true,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     10,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			MaxFrameKB:      4096,
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	// Validate log level
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	// Validate output format
	if c.Output.Format != "" && !present.ValidFormat(c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: text, json, yaml)", c.Output.Format)
	}

	// Validate camera
	validSources := []string{SourceDevice, SourceReplay}
	if !slices.Contains(validSources, c.Camera.Source) {
		return fmt.Errorf("invalid camera source: %s (must be one of: %s)", c.Camera.Source, strings.Join(validSources, ", "))
	}
	if _, err := camera.ParseFacing(c.Camera.Facing); err != nil {
		return err
	}
	if _, err := camera.PermissionFromString(c.Camera.Permission); err != nil {
		return err
	}
	if err := camera.ValidateZoom(c.Camera.Zoom); err != nil {
		return fmt.Errorf("invalid camera zoom: %.2f (must be between 0.0 and 1.0)", c.Camera.Zoom)
	}
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("invalid camera fps: %.2f (must be positive)", c.Camera.FPS)
	}
	if c.Camera.Rotation%90 != 0 {
		return fmt.Errorf("invalid camera rotation: %d (must be a multiple of 90)", c.Camera.Rotation)
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 {
		return fmt.Errorf("invalid camera resolution: %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.Source == SourceReplay && len(c.Camera.ReplayPaths) == 0 {
		return fmt.Errorf("camera source %q requires camera.replay_paths", SourceReplay)
	}

	// Validate scan and actions
	if c.Scan.DecodeTimeoutMs < 0 {
		return fmt.Errorf("invalid decode timeout: %d (must not be negative)", c.Scan.DecodeTimeoutMs)
	}
	if c.Actions.DismissAfterMs < 0 {
		return fmt.Errorf("invalid dismiss delay: %d (must not be negative)", c.Actions.DismissAfterMs)
	}

	// Validate positive integers
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.MaxFrameKB <= 0 {
		return fmt.Errorf("invalid max frame size: %d (must be positive)", c.Server.MaxFrameKB)
	}
	rl := c.Server.RateLimit
	if rl.RequestsPerMinute < 0 || rl.RequestsPerHour < 0 || rl.RequestsPerDay < 0 || rl.MaxMBPerHour < 0 {
		return errors.New("invalid rate limit: limits must not be negative")
	}

	return nil
}

// SessionSettings returns the user-controlled camera settings.
func (c *Config) SessionSettings() (session.Settings, error) {
	facing, err := camera.ParseFacing(c.Camera.Facing)
	if err != nil {
		return session.Settings{}, err
	}
	return session.Settings{Facing: facing, Zoom: c.Camera.Zoom, Torch: c.Camera.Torch}, nil
}

// BarcodeOptions returns the decoder options.
func (c *Config) BarcodeOptions() barcode.Options {
	return barcode.Options{TryHarder: c.Scan.TryHarder, Multi: c.Scan.Multi}
}

// ScanOptions returns the coordinator options.
func (c *Config) ScanOptions() []scan.Option {
	return []scan.Option{
		scan.WithDecodeTimeout(time.Duration(c.Scan.DecodeTimeoutMs) * time.Millisecond),
		scan.WithCapture(c.Scan.Capture),
	}
}

// NewSource builds the configured camera source.
func (c *Config) NewSource(logger *slog.Logger) (camera.Source, error) {
	perm, err := camera.PermissionFromString(c.Camera.Permission)
	if err != nil {
		return nil, err
	}

	switch c.Camera.Source {
	case SourceReplay:
		return camera.NewReplay(camera.ReplayConfig{
			Paths:      c.Camera.ReplayPaths,
			FPS:        c.Camera.FPS,
			Loop:       c.Camera.Loop,
			Rotation:   c.Camera.Rotation,
			Permission: perm,
			Logger:     logger,
		}), nil
	case SourceDevice:
		if c.Camera.Permission == "" || c.Camera.Permission == "granted" {
			perm = camera.DevicePermission(c.Camera.Device)
		}
		return camera.NewDevice(camera.DeviceConfig{
			Device:      c.Camera.Device,
			FrontDevice: c.Camera.FrontDevice,
			Width:       c.Camera.Width,
			Height:      c.Camera.Height,
			FPS:         c.Camera.FPS,
			Rotation:    c.Camera.Rotation,
			Permission:  perm,
			Logger:      logger,
		}), nil
	default:
		return nil, fmt.Errorf("invalid camera source: %s", c.Camera.Source)
	}
}

// PresenterOptions returns the terminal presenter options. The caller sets
// Input when Actions.Interactive is on.
func (c *Config) PresenterOptions(logger *slog.Logger) present.TerminalOptions {
	return present.TerminalOptions{
		Format:       c.Output.Format,
		AutoCopy:     c.Actions.AutoCopy,
		AutoOpen:     c.Actions.AutoOpen,
		DismissAfter: time.Duration(c.Actions.DismissAfterMs) * time.Millisecond,
		Logger:       logger,
	}
}
