package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/wilsonzlin/aero/proxy/room-signal/internal/auth"
	"github.com/wilsonzlin/aero/proxy/room-signal/internal/config"
	"github.com/wilsonzlin/aero/proxy/room-signal/internal/httpserver"
	"github.com/wilsonzlin/aero/proxy/room-signal/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/room-signal/internal/room"
	"github.com/wilsonzlin/aero/proxy/room-signal/internal/signaling"
	"github.com/wilsonzlin/aero/proxy/room-signal/internal/turnrest"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	// A .env file is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting room-signal",
		"listen_addr", cfg.ListenAddr,
		"public_base_url", cfg.PublicBaseURL,
		"mode", cfg.Mode,
		"auth_mode", cfg.AuthMode,
		"max_connections", cfg.MaxConnections,
		"send_queue_messages", cfg.SendQueueMessages,
		"send_queue_bytes", cfg.SendQueueBytes,
		"slow_consumer_policy", cfg.SlowConsumerPolicy,
		"ice_servers", len(cfg.ICEServers),
		"turn_rest_enabled", cfg.TURNREST.Enabled(),
	)

	logStartupSecurityWarnings(logger, cfg)

	if err := run(cfg, logger); err != nil {
		logger.Error("room-signal exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	sigCfg := signaling.ConfigFrom(cfg)
	if cfg.AuthMode != config.AuthModeNone {
		verifier, err := auth.NewVerifier(cfg)
		if err != nil {
			return fmt.Errorf("configure signaling auth: %w", err)
		}
		sigCfg.Verifier = verifier
	}

	turn, err := turnrest.FromConfig(cfg.TURNREST)
	if err != nil {
		return fmt.Errorf("configure turn rest: %w", err)
	}

	m := metrics.New()
	rooms := room.NewRegistry(room.WithMaxRoomIDLength(cfg.MaxRoomIDLength))
	hub := signaling.NewHub(cfg.MaxConnections, m)
	if err := registerGauges(m, rooms, hub); err != nil {
		return fmt.Errorf("register gauges: %w", err)
	}

	sigCfg.Rooms = rooms
	sigCfg.Hub = hub
	sigCfg.Metrics = m
	sigCfg.Logger = logger
	sig := signaling.NewServer(sigCfg)

	commit, built := resolveBuildInfo(buildCommit, buildTime)
	opts := []httpserver.Option{httpserver.WithRooms(rooms)}
	if turn != nil {
		opts = append(opts, httpserver.WithTURNREST(turn))
	}
	if sigCfg.Verifier != nil {
		opts = append(opts, httpserver.WithVerifier(sigCfg.Verifier))
	}
	srv := httpserver.New(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: built}, opts...)
	sig.RegisterRoutes(srv.Mux())
	srv.Mux().Handle("GET /metrics", metrics.PrometheusHandler(m))

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		sig.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by http.Server, so close
	// them explicitly before waiting on the listener.
	sig.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server after shutdown: %w", err)
	}
	return nil
}

func registerGauges(m *metrics.Metrics, rooms *room.Registry, hub *signaling.Hub) error {
	return errors.Join(
		m.GaugeFunc("rooms_active", "Rooms with at least one member.", func() float64 {
			return float64(rooms.Stats().Rooms)
		}),
		m.GaugeFunc("room_members", "Members across all rooms.", func() float64 {
			return float64(rooms.Stats().Members)
		}),
		m.GaugeFunc("connections_active", "Open signaling connections.", func() float64 {
			return float64(hub.Len())
		}),
	)
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values but fall back to the Go build info when
	// available (`go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return commit, buildTime
}
