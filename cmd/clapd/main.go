// Command clapd runs the real-time clap detection engine: it loads the
// settings document, starts the VBAN receiver for the process lifetime,
// starts a detection session against whichever source settings select,
// and serves the event-bus websocket push channel to browser clients.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/clapd/clapd/internal/classifier"
	"github.com/clapd/clapd/internal/config"
	"github.com/clapd/clapd/internal/eventbus"
	"github.com/clapd/clapd/internal/micsource"
	"github.com/clapd/clapd/internal/supervisor"
)

// version is set at build time by GoReleaser via -ldflags.
var version = "dev"

func main() {
	var (
		configDir   = pflag.StringP("config-dir", "c", ".", "Directory holding settings.json")
		listenAddr  = pflag.StringP("listen-addr", "l", ":8089", "Address the event-bus websocket listens on")
		logLevel    = pflag.StringP("log-level", "L", "info", "Log level: debug, info, warn, error")
		listDevices = pflag.Bool("list-audio-devices", false, "List capture-capable audio devices and exit")
		help        = pflag.Bool("help", false, "Display help text.")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: clapd [flags]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	logger := newLogger(*logLevel)

	if *listDevices {
		runListAudioDevices(logger)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := config.Store{Dir: *configDir}

	// STEP 1: Resolve the classifier backend. "auto" prefers the
	// embedded YAMNet model when the binary was built with -tags
	// yamnet, falling back to the deterministic stub otherwise — the
	// same auto/fallback shape the teacher adapter uses for its engine
	// selection.
	classifierFactory := classifier.Factory(classifier.NewStubSession)
	if classifier.NativeAvailable() {
		classifierFactory = classifier.NewNativeSession
		logger.Info("classifier backend ready", "backend", "yamnet")
	} else {
		logger.Warn("yamnet backend not compiled in, using stub classifier (build with -tags yamnet for production)")
	}

	sup := supervisor.New(store, classifierFactory, logger)

	// STEP 2: Serve the event-bus websocket push channel immediately,
	// independent of whether a detection session is running.
	mux := http.NewServeMux()
	mux.Handle("/ws", eventbus.NewWebSocketHandler(sup.Hub, logger))
	httpServer := &http.Server{Addr: *listenAddr, Handler: mux}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("event bus websocket listening", "addr", *listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// STEP 3: Run the VBAN receiver for the process lifetime.
	vbanErr := make(chan error, 1)
	go func() {
		if err := sup.Run(ctx); err != nil {
			vbanErr <- err
		}
	}()

	// STEP 4: Start detecting against whatever source the settings
	// document selects.
	if err := sup.Start(); err != nil {
		logger.Error("failed to start detection", "error", err)
	} else {
		logger.Info("detection started", "source", sup.Status().ActiveSourceID, "kind", sup.Status().ActiveKind)
	}

	logger.Info("clapd ready", "version", version)

	// STEP 5: Wait for shutdown or a fatal error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-serverErr:
		logger.Error("event bus websocket server terminated with error", "error", err)
	case err := <-vbanErr:
		logger.Error("vban receiver terminated with error", "error", err)
	}

	if err := sup.Stop(); err != nil {
		logger.Error("error stopping detection", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("event bus websocket server did not shut down cleanly", "error", err)
	}

	logger.Info("clapd stopped")
}

func runListAudioDevices(logger *slog.Logger) {
	devices, err := micsource.ListDevices()
	if err != nil {
		logger.Error("failed to list audio devices", "error", err)
		os.Exit(1)
	}
	for _, d := range devices {
		fmt.Printf("%d\t%s\t(%d input channels, %.0f Hz default)\n", d.Index, d.Name, d.MaxInputChannels, d.DefaultSampleRate)
	}
}

func newLogger(level string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler)
}

func parseLevel(value string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
