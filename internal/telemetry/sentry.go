package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
)

// SentryConfig holds configuration for Sentry error tracking
type SentryConfig struct {
	// DSN is the Sentry Data Source Name (required if Enabled is true)
	DSN string

	// Enabled controls whether Sentry is active
	Enabled bool

	// Environment identifies the deployment environment (dev, prod)
	Environment string

	// Release is the application version/release identifier
	Release string

	// SampleRate controls the percentage of errors to capture (0.0 to 1.0)
	SampleRate float64

	// Debug enables Sentry SDK debug logging
	Debug bool
}

// SentryReporter sends integrity faults and other loud errors to Sentry.
// A disabled reporter drops everything.
type SentryReporter struct {
	hub     *sentry.Hub
	enabled bool
}

// NewSentryReporter initializes a Sentry client from cfg.
// The returned cleanup function flushes buffered events and should run on shutdown.
func NewSentryReporter(cfg SentryConfig, logger zerolog.Logger) (*SentryReporter, func(), error) {
	noop := func() {}

	if !cfg.Enabled {
		logger.Info().Msg("Sentry disabled (SENTRY_ENABLED=false)")
		return &SentryReporter{}, noop, nil
	}
	if cfg.DSN == "" {
		logger.Warn().Msg("Sentry DSN not configured, disabling error tracking")
		return &SentryReporter{}, noop, nil
	}

	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = 1.0
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		SampleRate:  sampleRate,
		Debug:       cfg.Debug,
	})
	if err != nil {
		return nil, noop, fmt.Errorf("failed to initialize Sentry: %w", err)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("release", cfg.Release).
		Float64("sample_rate", sampleRate).
		Msg("Sentry initialized")

	hub := sentry.NewHub(client, sentry.NewScope())
	cleanup := func() {
		hub.Flush(2 * time.Second)
	}
	return &SentryReporter{hub: hub, enabled: true}, cleanup, nil
}

// IsEnabled returns whether events are being sent.
func (s *SentryReporter) IsEnabled() bool {
	return s != nil && s.enabled
}

// ReportFault captures err at fatal level with tags.
// Safe to call even when Sentry is disabled.
func (s *SentryReporter) ReportFault(ctx context.Context, err error, tags map[string]string) {
	if !s.IsEnabled() || err == nil {
		return
	}

	hub := s.hub
	if ctxHub := sentry.GetHubFromContext(ctx); ctxHub != nil {
		hub = ctxHub
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelFatal)
		scope.SetTags(tags)
		hub.CaptureException(err)
	})
}
