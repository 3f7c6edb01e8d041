package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func newTestLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

func writeYAML(t *testing.T, path string, v any) {
	t.Helper()
	data, err := yaml.Marshal(v)
	if err != nil {
		t.Fatalf("marshal yaml: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// TestLoadWithNoConfigFile tests loading with no config file present.
func TestLoadWithNoConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	chdir(t, tmpDir)
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	cfg, err := newTestLoader().Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %s", cfg.LogLevel)
	}
	if cfg.Camera.Source != SourceDevice {
		t.Errorf("Expected default camera source, got %s", cfg.Camera.Source)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
}

// TestLoadWithFile tests loading from a YAML file written from the config struct.
func TestLoadWithFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "debug"
	cfg.Camera.Source = SourceReplay
	cfg.Camera.ReplayPaths = []string{"/frames/a.png", "/frames/b.png"}
	cfg.Camera.Zoom = 0.25
	cfg.Scan.DecodeTimeoutMs = 500
	cfg.Output.Format = "yaml"

	path := filepath.Join(t.TempDir(), "qrlens.yaml")
	writeYAML(t, path, cfg)

	loaded, err := newTestLoader().LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile: %v", err)
	}
	if loaded.LogLevel != "debug" || loaded.Camera.Source != SourceReplay {
		t.Errorf("unexpected config %+v", loaded)
	}
	if len(loaded.Camera.ReplayPaths) != 2 || loaded.Camera.ReplayPaths[1] != "/frames/b.png" {
		t.Errorf("replay paths = %v", loaded.Camera.ReplayPaths)
	}
	if loaded.Camera.Zoom != 0.25 || loaded.Scan.DecodeTimeoutMs != 500 {
		t.Errorf("camera/scan not loaded: %+v %+v", loaded.Camera, loaded.Scan)
	}
}

func TestLoadWithFile_Errors(t *testing.T) {
	if _, err := newTestLoader().LoadWithFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("camera:\n  zoom: 3\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := newTestLoader().LoadWithFile(bad); err == nil {
		t.Error("expected validation error for zoom 3")
	}
	if _, err := newTestLoader().LoadWithFileWithoutValidation(bad); err != nil {
		t.Errorf("unvalidated load failed: %v", err)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	chdir(t, tmpDir)
	t.Setenv("HOME", tmpDir)
	t.Setenv("QRLENS_CAMERA_FACING", "front")
	t.Setenv("QRLENS_SCAN_DECODE_TIMEOUT_MS", "250")
	t.Setenv("QRLENS_SERVER_PORT", "9090")

	cfg, err := newTestLoader().Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Camera.Facing != "front" {
		t.Errorf("facing = %s", cfg.Camera.Facing)
	}
	if cfg.Scan.DecodeTimeoutMs != 250 {
		t.Errorf("decode timeout = %d", cfg.Scan.DecodeTimeoutMs)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

func TestGenerateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "generated.yaml")
	if err := GenerateDefaultConfigFile(path); err != nil {
		t.Fatalf("GenerateDefaultConfigFile: %v", err)
	}

	cfg, err := newTestLoader().LoadWithFile(path)
	if err != nil {
		t.Fatalf("generated file does not load: %v", err)
	}
	if cfg.Camera.FPS != DefaultConfig().Camera.FPS {
		t.Errorf("fps = %v", cfg.Camera.FPS)
	}
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qrlens.yaml")
	cfg := DefaultConfig()
	writeYAML(t, path, cfg)

	loader := newTestLoader()
	if _, err := loader.LoadWithFile(path); err != nil {
		t.Fatalf("LoadWithFile: %v", err)
	}

	changes := make(chan *Config, 4)
	if !loader.Watch(func(c *Config, err error) {
		if err == nil {
			changes <- c
		}
	}) {
		t.Fatal("Watch did not start")
	}

	cfg.Camera.Zoom = 0.75
	writeYAML(t, path, cfg)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if c.Camera.Zoom == 0.75 {
				return
			}
		case <-deadline:
			t.Fatal("config change not observed")
		}
	}
}

func TestWatch_NoFile(t *testing.T) {
	if newTestLoader().Watch(func(*Config, error) {}) {
		t.Error("Watch should not start without a config file")
	}
}

func TestPrintConfigInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qrlens.yaml")
	writeYAML(t, path, DefaultConfig())

	loader := newTestLoader()
	var buf strings.Builder
	loader.PrintConfigInfo(&buf)
	if !strings.Contains(buf.String(), "Configuration file used: (none)") {
		t.Errorf("unexpected output before load: %q", buf.String())
	}

	if _, err := loader.LoadWithFile(path); err != nil {
		t.Fatalf("LoadWithFile: %v", err)
	}
	buf.Reset()
	loader.PrintConfigInfo(&buf)
	if !strings.Contains(buf.String(), path) || !strings.Contains(buf.String(), EnvPrefix) {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

// chdir changes the working directory for the duration of the test,
// mirroring testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	oldwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(oldwd); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}
