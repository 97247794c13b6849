// Package metrics holds the Prometheus collectors for threadbot and the
// /metrics endpoint that exposes them.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the process-wide registry. Tests may read values from it.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// --- Pre-defined metrics used across the application ---

var (
	EventsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "threadbot_events_total",
		Help: "Inbound chat events by classified state",
	}, []string{"state"})

	RepliesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "threadbot_replies_total",
		Help: "Replies posted, by outcome",
	}, []string{"outcome"}) // ok, error, skipped

	ModelRequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "threadbot_model_requests_total",
		Help: "Model API requests, by model and status",
	}, []string{"model", "status"})

	ModelTokens = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "threadbot_model_tokens_total",
		Help: "Model token usage, by kind",
	}, []string{"kind"}) // input, output, cache_read, cache_creation

	ModelLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "threadbot_model_latency_seconds",
		Help:    "Model request latency in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	OverflowTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "threadbot_overflow_total",
		Help: "Replies over the display limit, by handling",
	}, []string{"result"}) // uploaded, truncated

	AttachmentsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "threadbot_attachments_total",
		Help: "Attachment resolutions, by result",
	}, []string{"result"}) // hit, miss, error

	DeletedReplies = factory.NewCounter(prometheus.CounterOpts{
		Name: "threadbot_deleted_replies_total",
		Help: "Bot replies removed by cascading deletes",
	})

	QueueWait = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "threadbot_event_queue_wait_seconds",
		Help:    "Time from event receipt until a handler picks it up",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	})

	InFlight = factory.NewGauge(prometheus.GaugeOpts{
		Name: "threadbot_events_in_flight",
		Help: "Events currently being handled",
	})
)

// Handler renders the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics endpoint listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
