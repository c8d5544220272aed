package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	broadcastimpl "github.com/ferndesk/roomscribe/external/broadcast"
	configloader "github.com/ferndesk/roomscribe/external/config"
	forwardimpl "github.com/ferndesk/roomscribe/external/forward"
	"github.com/ferndesk/roomscribe/external/httpapi"
	rtcimpl "github.com/ferndesk/roomscribe/external/rtc"
	storeimpl "github.com/ferndesk/roomscribe/external/store"
	streamimpl "github.com/ferndesk/roomscribe/external/stream"
	transcriberimpl "github.com/ferndesk/roomscribe/external/transcriber"
	"github.com/ferndesk/roomscribe/internal/broadcast"
	"github.com/ferndesk/roomscribe/internal/config"
	"github.com/ferndesk/roomscribe/internal/session"
	"github.com/ferndesk/roomscribe/internal/stream"
	"github.com/samber/do/v2"
)

const shutdownTimeout = 30 * time.Second

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: launching http server")
	runServer(cfg, injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	storeimpl.RegisterDI(injector)
	rtcimpl.RegisterDI(injector)
	transcriberimpl.RegisterDI(injector)
	forwardimpl.RegisterDI(injector)
	broadcastimpl.RegisterDI(injector)
	streamimpl.RegisterDI(injector)
	session.RegisterDI(injector)
	httpapi.RegisterDI(injector)

	return injector
}

func runServer(cfg *config.Config, injector do.Injector) {
	registry, err := do.Invoke[*session.Registry](injector)
	if err != nil {
		slog.Error("failed to resolve session registry", "error", err)
		os.Exit(1)
	}
	api, err := do.Invoke[*httpapi.Server](injector)
	if err != nil {
		slog.Error("failed to resolve http api", "error", err)
		os.Exit(1)
	}
	publisher, err := do.Invoke[stream.Publisher](injector)
	if err != nil {
		slog.Error("failed to resolve stream publisher", "error", err)
		os.Exit(1)
	}
	broadcaster, err := do.Invoke[broadcast.Broadcaster](injector)
	if err != nil {
		slog.Error("failed to resolve broadcaster", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:    cfg.HTTPListenAddr,
		Handler: api.Handler(),
	}

	done := make(chan struct{})
	go func() {
		slog.Info("startup: listening", "addr", cfg.HTTPListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
		}
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("shutting down")
	case <-done:
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	registry.StopAll(ctx)
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown failed", "error", err)
	}
	closeQuietly("stream publisher", publisher)
	closeQuietly("broadcaster", broadcaster)
	slog.Info("shutdown complete")
}

// closeQuietly flushes and closes a long-lived sink after the last
// session has stopped. Sinks without buffered state expose no Closer
// and are skipped.
func closeQuietly(name string, v any) {
	closer, ok := v.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		slog.Error("failed to close "+name, "error", err)
	}
}
