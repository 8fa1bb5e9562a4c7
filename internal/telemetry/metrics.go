// Package telemetry wires logging, metrics and tracing for the bridge.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsShutdownGrace = 5 * time.Second

// Metrics tracks backend calls and served HTTP responses. A nil *Metrics records
// nothing, so callers never need to check whether metrics are enabled.
//
// Metrics:
//   - <ns>_rpc_calls_total{procedure, outcome}: outcome is "ok" or the error kind
//   - <ns>_rpc_call_duration_seconds{procedure}
//   - <ns>_http_responses_total{route, code}
type Metrics struct {
	registry     *prometheus.Registry
	rpcCalls     *prometheus.CounterVec
	rpcLatency   *prometheus.HistogramVec
	httpRequests *prometheus.CounterVec
}

// NewMetrics creates and registers the bridge metrics. If registry is nil a fresh
// one is used.
func NewMetrics(namespace string, registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		rpcCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rpc_calls_total",
				Help:      "Backend procedure calls by outcome",
			},
			[]string{"procedure", "outcome"},
		),
		rpcLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rpc_call_duration_seconds",
				Help:      "Backend procedure call latency in seconds",
				// LLM calls run from milliseconds (list) to minutes (long chats).
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"procedure"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_responses_total",
				Help:      "HTTP responses by route and status code",
			},
			[]string{"route", "code"},
		),
	}

	registry.MustRegister(m.rpcCalls, m.rpcLatency, m.httpRequests)
	return m
}

// ObserveRPC records one backend call.
func (m *Metrics) ObserveRPC(procedure, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.rpcCalls.WithLabelValues(procedure, outcome).Inc()
	m.rpcLatency.WithLabelValues(procedure).Observe(elapsed.Seconds())
}

// ObserveHTTP records one written response.
func (m *Metrics) ObserveHTTP(route string, status int) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// Handler exposes the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	slog.Info("serving metrics", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}
