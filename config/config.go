// Package config loads the daemon configuration from defaults, an optional
// YAML file and CAMFLOW_* environment variables, in ascending precedence.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/visiona/camflow/capture"
)

// CameraConfig selects and parameterizes the capture device.
type CameraConfig struct {
	// Format is "rgb24" (software JPEG encode) or "mjpeg" (device-native
	// passthrough).
	Format      string `mapstructure:"format"`
	Width       int    `mapstructure:"width"`
	Height      int    `mapstructure:"height"`
	FPS         int    `mapstructure:"fps"`
	Quality     int    `mapstructure:"quality"`
	DeviceIndex int    `mapstructure:"device_index"`
}

// HTTPConfig parameterizes the frame-serving endpoints.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig parameterizes structured logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Config is the full daemon configuration.
type Config struct {
	Camera CameraConfig `mapstructure:"camera"`
	HTTP   HTTPConfig   `mapstructure:"http"`
	Log    LogConfig    `mapstructure:"log"`
}

// Load reads configuration. path, when non-empty, names an explicit config
// file; otherwise the usual locations are searched and defaults apply when
// no file exists.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("camera.format", "rgb24")
	v.SetDefault("camera.width", 640)
	v.SetDefault("camera.height", 480)
	v.SetDefault("camera.fps", 30)
	v.SetDefault("camera.quality", 80)
	v.SetDefault("camera.device_index", 0)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("CAMFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("camflow")
		v.SetConfigType("yaml")
		for _, p := range []string{".", "$HOME/.camflow", "/etc/camflow"} {
			v.AddConfigPath(os.ExpandEnv(p))
		}
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("reading config: %w", err)
			}
			// No file found; defaults and environment apply.
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	if _, err := cfg.CaptureConfig(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// CaptureConfig maps the camera section onto the capture layer's
// configuration.
func (c Config) CaptureConfig() (capture.Config, error) {
	var format capture.Format
	switch strings.ToLower(c.Camera.Format) {
	case "rgb24":
		format = capture.FormatRGB24
	case "mjpeg":
		format = capture.FormatMJPEG
	default:
		return capture.Config{}, fmt.Errorf("unknown camera format %q (want rgb24 or mjpeg)",
			c.Camera.Format)
	}
	return capture.Config{
		Width:       c.Camera.Width,
		Height:      c.Camera.Height,
		FrameRate:   c.Camera.FPS,
		Quality:     c.Camera.Quality,
		DeviceIndex: c.Camera.DeviceIndex,
		Format:      format,
	}, nil
}

// LogLevel parses the configured level, defaulting to info on unknown
// values.
func (c Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
