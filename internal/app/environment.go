// Package app runs the migrator commands. The cobra commands in cmd/ parse
// flags into conf.Settings and hand over to an Environment, which owns the
// logger, the telemetry client and the database connections of one command.
package app

import (
	"context"
	"io"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/eventlog-migrator/internal/buildinfo"
	"github.com/tphakala/eventlog-migrator/internal/conf"
	"github.com/tphakala/eventlog-migrator/internal/datastore"
	"github.com/tphakala/eventlog-migrator/internal/errors"
	"github.com/tphakala/eventlog-migrator/internal/logger"
	"github.com/tphakala/eventlog-migrator/internal/observability"
	"github.com/tphakala/eventlog-migrator/internal/observability/metrics"
)

const (
	componentApp      = "app"
	sentryFlushWindow = 2 * time.Second
)

// Environment is the runtime of a single command invocation.
type Environment struct {
	Settings *conf.Settings
	Build    *buildinfo.Context

	out     io.Writer
	log     logger.Logger
	central *logger.CentralLogger
}

// Option customizes an Environment.
type Option func(*Environment)

// WithLogger replaces the central logger built from the logging settings.
func WithLogger(log logger.Logger) Option {
	return func(e *Environment) { e.log = log }
}

// WithOutput sets where reports are printed. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(e *Environment) { e.out = w }
}

// NewEnvironment sets up logging and, when telemetry is enabled, Sentry.
func NewEnvironment(settings *conf.Settings, build *buildinfo.Context, opts ...Option) (*Environment, error) {
	env := &Environment{Settings: settings, Build: build, out: os.Stdout}
	for _, opt := range opts {
		opt(env)
	}

	if env.log == nil {
		central, err := logger.NewCentralLogger(&settings.Logging)
		if err != nil {
			return nil, errors.New(err).
				Component(componentApp).
				Category(errors.CategoryConfiguration).
				Context("operation", "init_logging").
				Build()
		}
		env.central = central
		env.log = central.Module(componentApp)
	}
	env.log = env.log.With(logger.String("instance_id", build.InstanceID()))

	if settings.Telemetry.Enabled {
		if err := errors.InitSentry(settings.Telemetry.DSN, build.Release()); err != nil {
			// Reporting is optional; the migration runs without it.
			env.log.Warn("error reporting disabled", logger.Error(err))
		}
	}

	return env, nil
}

// Logger returns the environment logger.
func (e *Environment) Logger() logger.Logger {
	return e.log
}

// Close flushes telemetry and log outputs.
func (e *Environment) Close() error {
	errors.FlushSentry(sentryFlushWindow)
	if e.central != nil {
		return e.central.Close()
	}
	return nil
}

// openStore connects to one of the configured databases. The legacy and
// target stores always get their own pools, even when they share a SQLite
// file, so reads of full legacy records never wait on a target transaction.
func (e *Environment) openStore(name string, cfg *conf.StoreSettings) (*gorm.DB, error) {
	db, err := datastore.Open(cfg, e.log.Module("datastore."+name))
	if err != nil {
		return nil, err
	}
	e.log.Debug("database opened", logger.String("store", name), logger.String("driver", cfg.Driver))
	return db, nil
}

func (e *Environment) closeStore(name string, db *gorm.DB) {
	if err := datastore.Close(db); err != nil {
		e.log.Warn("failed to close database", logger.String("store", name), logger.Error(err))
	}
}

// startMetrics registers the pipeline collectors and serves them when the
// endpoint is enabled. The returned stop function is always non-nil.
func (e *Environment) startMetrics(ctx context.Context) (*metrics.MigrationMetrics, func(), error) {
	if !e.Settings.Metrics.Enabled {
		return nil, func() {}, nil
	}

	registry := observability.NewRegistry()
	m, err := metrics.NewMigrationMetrics(registry)
	if err != nil {
		return nil, nil, err
	}

	endpointCtx, cancel := context.WithCancel(ctx)
	endpoint := observability.NewEndpoint(e.Settings.Metrics.Listen, registry, e.log.Module("metrics"))
	endpoint.Start(endpointCtx)

	return m, func() {
		cancel()
		endpoint.Stop()
	}, nil
}
