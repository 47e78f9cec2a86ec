// Command remotetrx bridges a radio transceiver to a voice-chat channel.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shackpi/remotetrx/internal/app"
	"github.com/shackpi/remotetrx/internal/config"
	"github.com/shackpi/remotetrx/internal/control"
	"github.com/shackpi/remotetrx/internal/observe"
	"github.com/shackpi/remotetrx/internal/ptt/cm108"
	malgoaudio "github.com/shackpi/remotetrx/pkg/audio/malgo"
	"github.com/shackpi/remotetrx/pkg/transport"
	"github.com/shackpi/remotetrx/pkg/transport/discord"
	"github.com/shackpi/remotetrx/pkg/transport/mumble"
)

// version is stamped at build time via -ldflags "-X main.version=…".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "remotetrx: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "remotetrx: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Slog())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("remotetrx starting",
		"version", version,
		"config", *configPath,
		"transport", cfg.Transport.Kind,
		"listen_addr", cfg.Server.ListenAddr,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "error", err)
		return 1
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(tctx); err != nil {
			slog.Warn("telemetry shutdown error", "error", err)
		}
	}()

	// ── Hardware ──────────────────────────────────────────────────────────────
	backend, err := malgoaudio.New()
	if err != nil {
		slog.Error("failed to initialise audio backend", "error", err)
		return 1
	}
	defer backend.Close()

	key, err := cm108.Open(cfg.PTT.Device, cfg.PTT.Pin)
	if err != nil {
		slog.Error("failed to open PTT device", "device", cfg.PTT.Device, "error", err)
		return 1
	}
	defer key.Close()

	// ── Transport ─────────────────────────────────────────────────────────────
	var tp transport.Transport
	switch cfg.Transport.Kind {
	case config.TransportMumble:
		tp = mumble.New(mumble.Config{
			Address:            cfg.Transport.Address,
			Port:               cfg.Transport.Port,
			Username:           cfg.Transport.Username,
			Password:           cfg.Transport.Password,
			Channel:            cfg.Transport.Channel,
			FrameSize:          cfg.Audio.FrameSize,
			InsecureSkipVerify: cfg.Transport.InsecureSkipVerify,
		})
	case config.TransportDiscord:
		tp = discord.New(discord.Config{
			Token:     cfg.Transport.Token,
			GuildID:   cfg.Transport.GuildID,
			ChannelID: cfg.Transport.ChannelID,
			FrameSize: cfg.Audio.FrameSize,
		})
	default:
		slog.Error("unknown transport kind", "kind", cfg.Transport.Kind)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(cfg, app.Providers{
		Audio:     backend,
		PTT:       key,
		Transport: tp,
	})
	if err != nil {
		slog.Error("failed to initialise application", "error", err)
		return 1
	}
	if err := application.Start(ctx); err != nil {
		slog.Error("startup failed", "error", err)
		return 1
	}

	// ── Config watcher: runtime log level ─────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		if old.Server.LogLevel != new.Server.LogLevel {
			level.Set(new.Server.LogLevel.Slog())
			slog.Info("log level changed", "level", new.Server.LogLevel)
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "error", err)
	} else {
		defer watcher.Stop()
	}

	// ── Control server ────────────────────────────────────────────────────────
	srv := control.New(cfg.Server.ListenAddr, application)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })

	slog.Info("bridge ready — press Ctrl+C to shut down")

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("control server error", "error", err)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	application.Shutdown()
	slog.Info("goodbye")

	if err != nil && !errors.Is(err, context.Canceled) {
		return 1
	}
	return 0
}
