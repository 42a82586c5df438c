// Package observability serves the Prometheus metrics endpoint.
package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/eventlog-migrator/internal/logger"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// Endpoint serves /metrics for the lifetime of a migration run.
type Endpoint struct {
	server *http.Server
	log    logger.Logger
	done   chan struct{}
}

// NewEndpoint creates an endpoint for registry on listen.
func NewEndpoint(listen string, registry *prometheus.Registry, log logger.Logger) *Endpoint {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &Endpoint{
		server: &http.Server{
			Addr:              listen,
			Handler:           mux,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		log:  log,
		done: make(chan struct{}),
	}
}

// Handler exposes the mux, mainly for tests.
func (e *Endpoint) Handler() http.Handler {
	return e.server.Handler
}

// Start serves in the background until ctx is cancelled or Stop is called.
func (e *Endpoint) Start(ctx context.Context) {
	go func() {
		defer close(e.done)
		e.log.Info("metrics endpoint starting", logger.String("address", e.server.Addr))
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Error("metrics endpoint failed", logger.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		e.Stop()
	}()
}

// Stop shuts the server down and waits for the serve loop to exit.
func (e *Endpoint) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(ctx); err != nil {
		e.log.Warn("metrics endpoint shutdown", logger.Error(err))
	}
	<-e.done
}
