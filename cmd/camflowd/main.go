// camflowd captures frames from a local camera and serves them over HTTP
// and WebSocket.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/visiona/camflow/capture"
	"github.com/visiona/camflow/config"
	"github.com/visiona/camflow/device/gstcam"
	"github.com/visiona/camflow/device/v4l2"
	"github.com/visiona/camflow/frameslot"
	"github.com/visiona/camflow/output/mjpeg"
	"github.com/visiona/camflow/output/ws"
)

const shutdownTimeout = 5 * time.Second

func main() {
	var (
		cfgPath string
		debug   bool
	)

	rootCmd := &cobra.Command{
		Use:   "camflowd",
		Short: "Camera frame acquisition and streaming daemon",
		Long: `camflowd drives a local camera through an asynchronous request/completion
pipeline, publishes the latest JPEG frame and serves it to any number of
HTTP and WebSocket clients.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfgPath, debug)
		},
	}
	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file (YAML)")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfgPath string, debug bool) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	level := cfg.LogLevel()
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	captureCfg, err := cfg.CaptureConfig()
	if err != nil {
		return err
	}

	var enum capture.Enumerator
	switch captureCfg.Format {
	case capture.FormatMJPEG:
		enum = v4l2.NewEnumerator(captureCfg.FrameRate)
	default:
		enum = gstcam.NewEnumerator(captureCfg.FrameRate)
	}

	slot := frameslot.New()
	session := capture.NewSession(enum, slot)

	if err := session.Configure(captureCfg); err != nil {
		return fmt.Errorf("configuring capture: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("starting capture: %w", err)
	}

	mjpegStreamer := mjpeg.NewStreamer(slot)
	wsStreamer := ws.NewStreamer(slot)

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", mjpegStreamer.ServeStream)
	mux.HandleFunc("/snapshot", mjpegStreamer.ServeSnapshot)
	mux.Handle("/ws", wsStreamer)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if session.State() != capture.StateRunning {
			http.Error(w, session.State().String(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"session": session.Stats(),
			"slot":    slot.Stats(),
			"http":    mjpegStreamer.Stats(),
			"ws":      wsStreamer.Stats(),
		})
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux}
	errChan := make(chan error, 1)
	go func() {
		slog.Info("camflowd: serving", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("camflowd: shutdown signal received")
	case err := <-errChan:
		slog.Error("camflowd: http server failed", "error", err)
	}

	if err := session.Stop(); err != nil {
		slog.Warn("camflowd: capture stop failed", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("camflowd: http shutdown incomplete", "error", err)
	}

	slog.Info("camflowd: stopped")
	return nil
}
