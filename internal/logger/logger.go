// Package logger configures the application's logging, monitoring, and
// observability.
//
// It uses ZeroLog for logging and integrates with New Relic to instrument
// the codebase, forwarding logs, metrics, and traces for debugging.
package logger

import (
	"fmt"
	"os"
	"time"

	"github.com/deppfellow/osmcha-backend/internal/config"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"
)

// LoggerService wraps the optional New Relic application instance.
// When New Relic is not configured, nrApp is nil and every method degrades
// into a no-op.
type LoggerService struct {
	nrApp *newrelic.Application
}

// GetApplication returns the underlying New Relic application, or nil when
// the agent is disabled.
func (s *LoggerService) GetApplication() *newrelic.Application {
	return s.nrApp
}

// Shutdown flushes pending telemetry and stops the agent.
func (s *LoggerService) Shutdown(timeout time.Duration) {
	if s.nrApp != nil {
		s.nrApp.Shutdown(timeout)
	}
}

// New builds the application logger and the LoggerService.
//
// The logger writes console output in non-production environments and JSON
// elsewhere. The New Relic agent is only started when a license key is
// configured; a missing key is not an error.
func New(cfg *config.Config) (*zerolog.Logger, *LoggerService, error) {
	level, err := zerolog.ParseLevel(cfg.Observability.GetLogLevel())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing log level: %w", err)
	}

	var logger zerolog.Logger
	if cfg.Observability.Logging.Format == "console" || !cfg.Observability.IsProduction() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).
			With().Timestamp().
			Str("service", cfg.Observability.ServiceName).
			Logger()
	} else {
		logger = zerolog.New(os.Stderr).
			Level(level).
			With().Timestamp().
			Str("service", cfg.Observability.ServiceName).
			Str("environment", cfg.Observability.Environment).
			Logger()
	}

	service := &LoggerService{}

	if key := cfg.Observability.NewRelic.LicenseKey; key != "" {
		opts := []newrelic.ConfigOption{
			newrelic.ConfigAppName(cfg.Observability.ServiceName),
			newrelic.ConfigLicense(key),
			newrelic.ConfigDistributedTracerEnabled(cfg.Observability.NewRelic.DistributedTracingEnabled),
			newrelic.ConfigAppLogForwardingEnabled(cfg.Observability.NewRelic.AppLogForwardingEnabled),
		}
		if cfg.Observability.NewRelic.DebugLogging {
			opts = append(opts, newrelic.ConfigDebugLogger(os.Stderr))
		}

		nrApp, err := newrelic.NewApplication(opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing new relic: %w", err)
		}
		service.nrApp = nrApp
		logger.Info().Msg("new relic agent enabled")
	}

	return &logger, service, nil
}

// NewPgxLogger returns a logger dedicated to pgx query tracing output.
func NewPgxLogger(level zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().
		Str("component", "pgx").
		Logger()
}

// GetPgxTraceLogLevel maps the application log level onto pgx tracelog
// levels so SQL logging follows the global verbosity.
func GetPgxTraceLogLevel(level zerolog.Level) tracelog.LogLevel {
	switch level {
	case zerolog.TraceLevel, zerolog.DebugLevel:
		return tracelog.LogLevelDebug
	case zerolog.InfoLevel:
		return tracelog.LogLevelInfo
	case zerolog.WarnLevel:
		return tracelog.LogLevelWarn
	default:
		return tracelog.LogLevelError
	}
}

// WithTraceContext adds New Relic trace correlation fields to a logger so
// log lines can be joined with distributed traces.
func WithTraceContext(logger zerolog.Logger, txn *newrelic.Transaction) zerolog.Logger {
	if txn == nil {
		return logger
	}
	md := txn.GetTraceMetadata()
	builder := logger.With()
	if md.TraceID != "" {
		builder = builder.Str("trace.id", md.TraceID)
	}
	if md.SpanID != "" {
		builder = builder.Str("span.id", md.SpanID)
	}
	return builder.Logger()
}
