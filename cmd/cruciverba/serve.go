package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	sqliteadapter "github.com/ericfisherdev/cruciverba/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/cruciverba/internal/adapter/driving/http"
	webhandler "github.com/ericfisherdev/cruciverba/internal/adapter/driving/web"
	"github.com/ericfisherdev/cruciverba/internal/application"
	"github.com/ericfisherdev/cruciverba/internal/metrics"
)

const rateLimitSweepInterval = 10 * time.Minute

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the contribution form and the admin pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	// 1. Load configuration (fail fast on invalid values).
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"force_https", cfg.ForceHTTPS,
		"session_lifetime", cfg.SessionLife,
		"metrics_enabled", cfg.MetricsEnabled,
		"trusted_proxies", len(cfg.TrustedProxies),
	)

	// 2. Open database and run migrations.
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	// 3. Metrics registry, only when enabled.
	var (
		m        *metrics.Metrics
		gatherer prometheus.Gatherer
	)
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.New(reg)
		gatherer = reg
	}

	// 4. Wire services.
	logger := slog.Default()
	store := sqliteadapter.NewContributionRepo(db)
	sanitizer := application.NewSanitizer()
	security := application.NewSecurityLog(logger, m)
	contributionSvc := application.NewContributionService(store, sanitizer, security, m, logger)
	accessSvc := application.NewAccessService(cfg.FormPassword, cfg.AdminPassword, sanitizer, security, m, logger)

	// 5. Web handler, rate limiter and CSRF protection.
	sessions := webhandler.NewSessionManager(cfg.SecretKey, cfg.SessionLife, cfg.ForceHTTPS)
	webHandler := webhandler.NewHandler(contributionSvc, accessSvc, security, sessions, logger)

	limiter := httphandler.NewRateLimiter(security, http.HandlerFunc(webHandler.TooManyRequests))
	go limiter.Run(ctx, rateLimitSweepInterval)

	csrf := webhandler.NewCSRF(cfg.SecretKey, cfg.CSRFMaxAge, cfg.ForceHTTPS, http.HandlerFunc(webHandler.CSRFFailure))

	// 6. Register routes and apply middleware.
	mux := http.NewServeMux()
	httphandler.RegisterRoutes(mux, httphandler.NewHandler(contributionSvc, logger), gatherer)
	webhandler.RegisterRoutes(mux, webHandler, limiter, webhandler.RateLimitsFromConfig(cfg))

	handler := httphandler.ApplyMiddleware(csrf.Middleware(mux), logger, cfg.TrustedProxies)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// 7. Wait for a shutdown signal or a listener failure.
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	// 8. Graceful shutdown with 10s timeout to drain in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
