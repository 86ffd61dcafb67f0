package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mcpscene/internal/domain"
)

const defaultDrainTimeout = 5 * time.Second

type HTTPServerOptions struct {
	Addr          string
	EnableMetrics bool
	EnableHealthz bool
	Health        *HealthTracker
	Registry      prometheus.Gatherer
	// EngineState backs /readyz. Nil leaves the route unmounted.
	EngineState func() domain.EngineState
	// DrainTimeout bounds graceful shutdown. Zero means five seconds.
	DrainTimeout time.Duration
}

// ReadinessReport is the /readyz body.
type ReadinessReport struct {
	Ready bool               `json:"ready"`
	State domain.EngineState `json:"state"`
}

// StartHTTPServer runs the listener scraped by operators: tool call and
// round metrics on /metrics, health-monitor heartbeats on /healthz and the
// orchestration engine state on /readyz. It returns once ctx is cancelled
// and the listener has drained.
func StartHTTPServer(ctx context.Context, opts HTTPServerOptions, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !opts.EnableMetrics && !opts.EnableHealthz {
		logger.Debug("observability server disabled")
		return nil
	}

	addr := opts.Addr
	if addr == "" {
		addr = domain.DefaultMetricsListenAddress
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           NewObservabilityHandler(opts),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger = logger.With(
		zap.Bool("metrics", opts.EnableMetrics),
		zap.Bool("healthz", opts.EnableHealthz),
		zap.Bool("readyz", opts.EnableHealthz && opts.EngineState != nil),
	)
	return serve(ctx, server, "observability", opts.DrainTimeout, logger)
}

// NewObservabilityHandler builds the mux behind StartHTTPServer.
func NewObservabilityHandler(opts HTTPServerOptions) http.Handler {
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	if opts.EnableMetrics {
		mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	if opts.EnableHealthz {
		mux.Handle("GET /healthz", healthHandler(opts.Health))
		if opts.EngineState != nil {
			mux.Handle("GET /readyz", readyHandler(opts.EngineState))
		}
	}
	return mux
}

// Serve runs server until ctx is done, then shuts it down gracefully.
func Serve(ctx context.Context, server *http.Server, name string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	return serve(ctx, server, name, 0, logger)
}

func serve(ctx context.Context, server *http.Server, name string, drain time.Duration, logger *zap.Logger) error {
	if drain <= 0 {
		drain = defaultDrainTimeout
	}
	errChan := make(chan error, 1)
	go func() {
		logger.Info(name+" server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("%s server failed to start: %w", name, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error(name+" server shutdown error", zap.Error(err))
			return err
		}
		logger.Info(name + " server stopped")
		return nil
	}
}

func healthHandler(tracker *HealthTracker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		report := HealthReport{Status: "ok"}
		if tracker != nil {
			report = tracker.Report()
		}
		status := http.StatusOK
		if report.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		writeReport(w, status, report)
	})
}

// readyHandler reports 200 only while the engine is ready to enhance turns.
// A disabled engine is alive but not ready.
func readyHandler(state func() domain.EngineState) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		current := state()
		report := ReadinessReport{Ready: current == domain.EngineReady, State: current}
		status := http.StatusOK
		if !report.Ready {
			status = http.StatusServiceUnavailable
		}
		writeReport(w, status, report)
	})
}

func writeReport(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
