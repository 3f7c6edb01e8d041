//nolint:lll
package config

// Config represents the complete configuration for the qrlens scanner.
// It includes settings for all commands (scan, image, serve) and supports
// loading from configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Camera source and user-controlled camera settings
	Camera CameraConfig `mapstructure:"camera" yaml:"camera" json:"camera"`

	// Decoder and coordinator settings
	Scan ScanConfig `mapstructure:"scan" yaml:"scan" json:"scan"`

	// Output configuration
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Result actions
	Actions ActionsConfig `mapstructure:"actions" yaml:"actions" json:"actions"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
}

// CameraConfig selects the frame source and its settings.
type CameraConfig struct {
	Source      string   `mapstructure:"source" yaml:"source" json:"source"`
	Device      string   `mapstructure:"device" yaml:"device" json:"device"`
	FrontDevice string   `mapstructure:"front_device" yaml:"front_device" json:"front_device"`
	Facing      string   `mapstructure:"facing" yaml:"facing" json:"facing"`
	FPS         float64  `mapstructure:"fps" yaml:"fps" json:"fps"`
	Width       int      `mapstructure:"width" yaml:"width" json:"width"`
	Height      int      `mapstructure:"height" yaml:"height" json:"height"`
	Rotation    int      `mapstructure:"rotation" yaml:"rotation" json:"rotation"`
	Zoom        float64  `mapstructure:"zoom" yaml:"zoom" json:"zoom"`
	Torch       bool     `mapstructure:"torch" yaml:"torch" json:"torch"`
	ReplayPaths []string `mapstructure:"replay_paths" yaml:"replay_paths" json:"replay_paths"`
	Loop        bool     `mapstructure:"loop" yaml:"loop" json:"loop"`
	Permission  string   `mapstructure:"permission" yaml:"permission" json:"permission"`
}

// ScanConfig contains decoder and coordinator settings.
type ScanConfig struct {
	DecodeTimeoutMs int  `mapstructure:"decode_timeout_ms" yaml:"decode_timeout_ms" json:"decode_timeout_ms"`
	TryHarder       bool `mapstructure:"try_harder" yaml:"try_harder" json:"try_harder"`
	Multi           bool `mapstructure:"multi" yaml:"multi" json:"multi"`
	Capture         bool `mapstructure:"capture" yaml:"capture" json:"capture"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format      string `mapstructure:"format" yaml:"format" json:"format"`
	SnapshotDir string `mapstructure:"snapshot_dir" yaml:"snapshot_dir" json:"snapshot_dir"`
	ShareDir    string `mapstructure:"share_dir" yaml:"share_dir" json:"share_dir"`
}

// ActionsConfig controls what happens after a detection.
type ActionsConfig struct {
	AutoCopy       bool `mapstructure:"auto_copy" yaml:"auto_copy" json:"auto_copy"`
	AutoOpen       bool `mapstructure:"auto_open" yaml:"auto_open" json:"auto_open"`
	Interactive    bool `mapstructure:"interactive" yaml:"interactive" json:"interactive"`
	DismissAfterMs int  `mapstructure:"dismiss_after_ms" yaml:"dismiss_after_ms" json:"dismiss_after_ms"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	MaxFrameKB      int    `mapstructure:"max_frame_kb" yaml:"max_frame_kb" json:"max_frame_kb"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig bounds per-client traffic. Zero disables a limit.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	RequestsPerDay    int `mapstructure:"requests_per_day" yaml:"requests_per_day" json:"requests_per_day"`
	MaxMBPerHour      int `mapstructure:"max_mb_per_hour" yaml:"max_mb_per_hour" json:"max_mb_per_hour"`
}
