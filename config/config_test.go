package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visiona/camflow/capture"
)

// TestLoadDefaults validates a missing config file yields the documented
// defaults.
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "rgb24", cfg.Camera.Format)
	assert.Equal(t, 640, cfg.Camera.Width)
	assert.Equal(t, 480, cfg.Camera.Height)
	assert.Equal(t, 30, cfg.Camera.FPS)
	assert.Equal(t, 80, cfg.Camera.Quality)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel())
}

// TestLoadFile validates an explicit YAML file overrides defaults.
func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "camflow.yaml")
	yaml := []byte("camera:\n  format: mjpeg\n  width: 1280\n  height: 720\n  fps: 15\nhttp:\n  addr: \":9000\"\nlog:\n  level: debug\n")
	require.NoError(t, os.WriteFile(path, yaml, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mjpeg", cfg.Camera.Format)
	assert.Equal(t, 1280, cfg.Camera.Width)
	assert.Equal(t, 720, cfg.Camera.Height)
	assert.Equal(t, 15, cfg.Camera.FPS)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())
}

// TestLoadEnvOverride validates CAMFLOW_* environment variables take
// precedence over defaults.
func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CAMFLOW_CAMERA_WIDTH", "1920")
	t.Setenv("CAMFLOW_HTTP_ADDR", ":8081")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 1920, cfg.Camera.Width)
	assert.Equal(t, ":8081", cfg.HTTP.Addr)
}

// TestLoadRejectsUnknownFormat validates format typos fail at load time
// rather than at session start.
func TestLoadRejectsUnknownFormat(t *testing.T) {
	t.Setenv("CAMFLOW_CAMERA_FORMAT", "yuyv")

	_, err := Load("")
	assert.ErrorContains(t, err, "unknown camera format")
}

// TestCaptureConfigMapping validates the translation into the capture
// layer's configuration.
func TestCaptureConfigMapping(t *testing.T) {
	cfg := Config{Camera: CameraConfig{
		Format: "mjpeg", Width: 800, Height: 600, FPS: 10, Quality: 75, DeviceIndex: 1,
	}}

	cc, err := cfg.CaptureConfig()
	require.NoError(t, err)

	assert.Equal(t, capture.Config{
		Width: 800, Height: 600, FrameRate: 10, Quality: 75,
		DeviceIndex: 1, Format: capture.FormatMJPEG,
	}, cc)
}
