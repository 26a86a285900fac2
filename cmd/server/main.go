package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/labstack/echo/v4"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/dukerupert/mesa/internal"
	"github.com/dukerupert/mesa/internal/billing"
	"github.com/dukerupert/mesa/internal/events"
	"github.com/dukerupert/mesa/internal/handler/api"
	"github.com/dukerupert/mesa/internal/handler/webhook"
	"github.com/dukerupert/mesa/internal/middleware"
	"github.com/dukerupert/mesa/internal/postgres"
	"github.com/dukerupert/mesa/internal/reconciler"
	"github.com/dukerupert/mesa/internal/router"
	"github.com/dukerupert/mesa/internal/telemetry"
)

func run(ctx context.Context) error {
	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database/sql connection for migrations
	logger.Info().Msg("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	logger.Info().Msg("Running database migrations...")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	// Initialize pgx connection pool for application
	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	store := postgres.NewSubscriptionStore(pool)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	webhookMetrics := telemetry.NewWebhookMetrics(reg, cfg.MetricsNamespace)
	httpMetrics := middleware.NewMetrics(reg, cfg.MetricsNamespace)

	// Error tracking
	reporter, flushSentry, err := telemetry.NewSentryReporter(telemetry.SentryConfig{
		DSN:         cfg.Sentry.DSN,
		Enabled:     cfg.Sentry.Enabled,
		Environment: cfg.Sentry.Environment,
		Release:     cfg.Sentry.Release,
		SampleRate:  cfg.Sentry.SampleRate,
		Debug:       cfg.Sentry.Debug,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Sentry: %w", err)
	}
	defer flushSentry()

	// Stripe
	stripeConfig := billing.StripeConfig{
		APIKey:         cfg.Stripe.SecretKey,
		WebhookSecret:  cfg.Stripe.WebhookSecret,
		PriceID:        cfg.Stripe.PriceID,
		MaxRetries:     int(cfg.Stripe.MaxRetries),
		TimeoutSeconds: 30,
	}
	provider, err := billing.NewStripeProvider(stripeConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize Stripe provider: %w", err)
	}
	logger.Info().Bool("test_mode", stripeConfig.IsTestMode()).Msg("Stripe billing provider initialized")

	verifier := billing.NewWebhookVerifier(cfg.Stripe.WebhookSecret, cfg.Stripe.WebhookTolerance, cfg.Stripe.StrictAPIVersion)

	opts := []reconciler.Option{
		reconciler.WithVerifier(verifier),
		reconciler.WithMetrics(webhookMetrics),
		reconciler.WithLogger(logger),
		reconciler.WithFaultReporter(reporter),
	}

	// Change publication is optional
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = events.Connect(cfg.NATS.URL, "mesa-server")
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer nc.Drain()
		opts = append(opts, reconciler.WithPublisher(events.NewNATSPublisher(nc, cfg.NATS.SubjectPrefix)))
		logger.Info().Str("url", nc.ConnectedUrlRedacted()).Msg("Publishing subscription changes to NATS")
	}

	rec := reconciler.New(store, opts...)

	e := router.New(router.Deps{
		Logger:   logger,
		Gatherer: reg,
		Metrics:  httpMetrics,
		Webhook:  webhook.NewStripeHandler(rec),
		Billing:  api.NewBillingHandler(provider, store, cfg.Stripe.PriceID, cfg.BaseURL, webhookMetrics),
		Ready: func(c echo.Context) error {
			return pool.Ping(c.Request().Context())
		},
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("address", srv.Addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		logger.Fatal().Err(err).Msg("server exited")
	}
}
