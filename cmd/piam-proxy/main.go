// Command piam-proxy is the S3-compatible reverse proxy's process
// entrypoint: it loads configuration, builds the live ProxyState, and
// serves the proxy, admin, and metrics HTTP listeners until signaled to
// stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/patsnapops/piam-sub000/internal/admin"
	"github.com/patsnapops/piam-sub000/internal/analytics"
	"github.com/patsnapops/piam-sub000/internal/config"
	"github.com/patsnapops/piam-sub000/internal/domain"
	"github.com/patsnapops/piam-sub000/internal/forwarder"
	"github.com/patsnapops/piam-sub000/internal/manager"
	"github.com/patsnapops/piam-sub000/internal/metrics"
	"github.com/patsnapops/piam-sub000/internal/server"
	"github.com/patsnapops/piam-sub000/internal/state"
	"github.com/patsnapops/piam-sub000/internal/tracing"
)

var (
	// Version, GitCommit and BuildDate are set via ldflags during build.
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var configFile = flag.String("config", "", "Path to configuration file (required)")

func main() {
	flag.Parse()

	if *configFile == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		fmt.Fprintf(os.Stderr, "Usage: %s -config <path-to-config.toml>\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration from %s: %v\n", *configFile, err)
		os.Exit(1)
	}

	metrics.SetEnabled(cfg.Metrics.Enabled)
	metrics.Init()

	levelVar := &slog.LevelVar{}
	logger := setupLogger(cfg, levelVar)
	slog.SetDefault(logger)
	ctx := context.Background()

	logger.InfoContext(ctx, "piam-proxy starting",
		"version", Version, "git_commit", GitCommit, "build_date", BuildDate,
		"config_file", *configFile, "listen_addr", cfg.Proxy.ListenAddr,
		"uni_key_enabled", cfg.Proxy.UniKeyEnabled)

	tracingShutdown, err := tracing.InitTracer(cfg)
	if err != nil {
		logger.ErrorContext(ctx, "failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer tracingShutdown()

	httpClient := &http.Client{Timeout: cfg.Manager.RequestTimeout}
	mgr := manager.New(cfg.Manager.BaseAddress, cfg.Manager.MetaKey, cfg.Proxy.DevMode, httpClient)

	stateManager := state.NewManager(state.Params{
		Manager:               mgr,
		HTTPClient:            httpClient,
		PolicyModel:           domain.ObjectStorageModel,
		DevMode:               cfg.Proxy.DevMode,
		UniKeyEnabled:         cfg.Proxy.UniKeyEnabled,
		PinRegion:             cfg.Proxy.Region,
		PinEnv:                cfg.Proxy.Env,
		Pinned:                cfg.Proxy.Region != "" || cfg.Proxy.Env != "",
		ConfigFetchingTimeout: cfg.Proxy.ConfigFetchingTimeout,
	}, logger)

	logger.InfoContext(ctx, "fetching initial proxy state from manager")
	stateManager.Initialize(ctx)
	logger.InfoContext(ctx, "initial proxy state loaded")

	updateCtx, cancelUpdates := context.WithCancel(ctx)
	defer cancelUpdates()
	go stateManager.RunUpdateLoop(updateCtx, cfg.Proxy.StateUpdateInterval)

	fwd := forwarder.New(&http.Client{}, logger)
	analyticsPublisher := analytics.NewAnalytics(cfg)

	handler := &server.Handler{
		State:          stateManager,
		Forwarder:      fwd,
		Logger:         logger,
		ProxyType:      cfg.Proxy.Type,
		ClusterEnv:     cfg.Proxy.ClusterEnv,
		UniKeyEnabled:  cfg.Proxy.UniKeyEnabled,
		TencentEnabled: cfg.Proxy.TencentSignatureEnabled,
		Analytics:      analyticsPublisher,
		Health:         &admin.HealthHandler{State: stateManager},
		ManageAPI:      &admin.DebugToggleHandler{Level: levelVar},
	}

	proxyServer := &http.Server{
		Addr:    cfg.Proxy.ListenAddr,
		Handler: tracingMiddleware(cfg.Proxy.Type, handler),
	}

	proxyErrCh := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "proxy listener starting", "addr", cfg.Proxy.ListenAddr)
		if err := proxyServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			proxyErrCh <- err
		}
	}()

	var adminServer *http.Server
	if cfg.Admin.Enabled {
		adminServer = newAdminServer(cfg, stateManager)
		go func() {
			logger.InfoContext(ctx, "admin listener starting", "port", cfg.Admin.Port)
			if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.ErrorContext(ctx, "admin server error", "error", err)
			}
		}()
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: mux}
		go func() {
			logger.InfoContext(ctx, "metrics listener starting", "port", cfg.Metrics.Port)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.ErrorContext(ctx, "metrics server error", "error", err)
			}
		}()
		go startMemoryMetricsUpdater(updateCtx, 15*time.Second)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.InfoContext(ctx, "received signal, shutting down gracefully", "signal", sig)
	case err := <-proxyErrCh:
		logger.ErrorContext(ctx, "proxy server error", "error", err)
	}

	cancelUpdates()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := proxyServer.Shutdown(shutdownCtx); err != nil {
		logger.ErrorContext(ctx, "error shutting down proxy server", "error", err)
	}
	if adminServer != nil {
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			logger.ErrorContext(ctx, "error shutting down admin server", "error", err)
		}
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.ErrorContext(ctx, "error shutting down metrics server", "error", err)
		}
	}

	logger.InfoContext(ctx, "piam-proxy shut down successfully")
}

// newAdminServer mounts the operator-only config-dump handler behind the
// admin listener. The liveness probe and debug-level toggle live on the
// proxy listener itself (see server.Handler), matching SPEC_FULL.md §6's
// external interface.
func newAdminServer(cfg *config.Config, stateManager *state.Manager) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/debug/config", &admin.DumpHandler{State: stateManager})
	return &http.Server{Addr: fmt.Sprintf(":%d", cfg.Admin.Port), Handler: mux}
}

// tracingMiddleware extracts any W3C trace context carried on the request
// and starts a child span for the duration of request handling.
func tracingMiddleware(serviceName string, next http.Handler) http.Handler {
	if serviceName == "" {
		serviceName = "piam-proxy"
	}
	tracer := otel.Tracer(serviceName)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		spanCtx := tracing.ExtractTraceContext(r.Context(), r)
		spanCtx, span := tracer.Start(spanCtx, r.Method+" "+r.URL.Path)
		defer span.End()
		next.ServeHTTP(w, r.WithContext(spanCtx))
	})
}

// startMemoryMetricsUpdater periodically refreshes the process memory
// gauges until ctx is canceled.
func startMemoryMetricsUpdater(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateMemoryMetrics()
		}
	}
}

// setupLogger builds the process-wide structured logger from cfg, wiring
// levelVar so the admin debug toggle can adjust verbosity at runtime.
func setupLogger(cfg *config.Config, levelVar *slog.LevelVar) *slog.Logger {
	switch cfg.Logging.Level {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: levelVar}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
