package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkaninda/msimamizi/internal/config"
	"github.com/jkaninda/msimamizi/internal/events"
	"github.com/jkaninda/msimamizi/internal/gateway/httpapi"
	"github.com/jkaninda/msimamizi/internal/gateway/ws"
	"github.com/jkaninda/msimamizi/internal/ratelimit"
	"github.com/jkaninda/msimamizi/internal/scheduler"
	goutils "github.com/jkaninda/go-utils"
)

var (
	serveConfigPath string
	servePort       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

func init() {
	// Register flags on both root and serve so that
	// `msimamizi --config path` and `msimamizi serve --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultConfigPath(), "path to config file")
		cmd.Flags().StringVar(&servePort, "port", "", "override HTTP listen address (e.g. :8080)")
	}
}

// runServe starts Msimamizi in server mode (HTTP API, WebSocket event
// stream, cron scheduler).
func runServe(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(goutils.Env("MSIMAMIZI_CONFIG", serveConfigPath))
	if err != nil {
		return err
	}

	// Apply CLI overrides.
	if servePort != "" {
		if cfg.Server == nil {
			cfg.Server = &config.ServerConfig{Enabled: true}
		}
		cfg.Server.ListenAddr = servePort
	}
	if cfg.Server == nil || !cfg.Server.Enabled {
		return fmt.Errorf("server is not enabled in config (set server.enabled or pass --port)")
	}

	logger.Info("starting in server mode", slog.String("config", serveConfigPath))

	// WebSocket event stream (optional). The server implements events.Sink,
	// so the engine publishes straight into it.
	var wsServer *ws.Server
	var sink events.Sink = events.Discard
	if cfg.Server.WebSocket != nil && cfg.Server.WebSocket.Enabled {
		wsServer = ws.NewServer(ws.Config{Token: cfg.Server.WebSocket.Token}, logger)
		sink = wsServer
		logger.Debug("websocket event stream initialized",
			slog.String("path", cfg.Server.WebSocket.WSPath()),
		)
	}

	c, err := initComponents(cfg, logger, sink)
	if err != nil {
		return err
	}
	defer c.Cleanup()

	if wsServer != nil && c.Obs != nil && c.Obs.Metrics != nil {
		wsServer.WithConnectionGauge(c.Obs.Metrics.WSConnections)
	}

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Cron scheduler (optional).
	if cfg.Scheduler != nil && cfg.Scheduler.Enabled {
		var schedMetrics *scheduler.Metrics
		if c.Obs != nil && c.Obs.Metrics != nil {
			schedMetrics = scheduler.NewMetrics(c.Obs.Metrics.Registry)
		}
		sched := scheduler.New(c.Manager, schedMetrics, logger, cfg.Scheduler)
		stopScheduler, err := sched.Start(ctx)
		if err != nil {
			return err
		}
		defer stopScheduler()
		logger.Info("cron scheduler started", slog.Int("schedules", len(cfg.Scheduler.Schedules)))
	}

	gw := buildHTTPGateway(cfg, c, wsServer)

	// Start the gateway and wait for a signal or a server error.
	errs := make(chan error, 1)
	go func() {
		errs <- gw.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("gateway exited with error", slog.String("error", err.Error()))
		}
	}

	// Graceful shutdown with deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Error("stopping gateway", slog.String("error", err.Error()))
	}

	return nil
}

// buildHTTPGateway creates the HTTP API gateway from config and shared components.
func buildHTTPGateway(cfg *config.Config, c *components, wsServer *ws.Server) *httpapi.Gateway {
	var limiter *ratelimit.Limiter
	if cfg.Server.RateLimit != nil {
		limiter = ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.Server.RateLimit.RequestsPerMinute,
			BurstSize:         cfg.Server.RateLimit.BurstSize,
		})
	}

	// Build API key → caller mapping from config + env override.
	apiKeys := cfg.Server.APIKeys
	if envKeys := os.Getenv("MSIMAMIZI_API_KEYS"); envKeys != "" {
		if apiKeys == nil {
			apiKeys = make(map[string]string)
		}
		for _, entry := range strings.Split(envKeys, ",") {
			parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
			if len(parts) == 2 {
				apiKeys[parts[0]] = parts[1]
			}
		}
	}

	httpCfg := httpapi.Config{
		ListenAddr:     cfg.Server.Addr(),
		EnableDocs:     cfg.Server.EnableDocs,
		APIKeys:        apiKeys,
		MaxRequestSize: cfg.Server.MaxRequestSize(),
	}
	if c.Obs != nil {
		httpCfg.Metrics = c.Obs.Metrics
		httpCfg.HealthChecker = c.Obs.Health
		if c.Obs.Metrics != nil {
			httpCfg.MetricsRegistry = c.Obs.Metrics.Registry
		}
		if c.Obs.Tracer != nil {
			httpCfg.Tracer = c.Obs.Tracer.Tracer()
		}
		if cfg.Observability != nil && cfg.Observability.Metrics != nil {
			httpCfg.MetricsPath = cfg.Observability.Metrics.MetricsPath()
		}
	}

	gw := httpapi.NewGateway(httpCfg, c.Manager, limiter, c.Logger)
	if wsServer != nil {
		gw.WithHandler(cfg.Server.WebSocket.WSPath(), wsServer.Handler())
		c.Logger.Debug("websocket event endpoint mounted",
			slog.String("path", cfg.Server.WebSocket.WSPath()),
		)
	}
	return gw
}
