// Package metrics holds the Prometheus collectors for the coordination core
// and the HTTP server that exposes them.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// RequestTransitions counts request state changes by kind and target status.
	RequestTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohort_request_transitions_total",
			Help: "Request state transitions by kind and resulting status",
		},
		[]string{"kind", "status"},
	)

	NotificationsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohort_notifications_recorded_total",
			Help: "Notifications stored, by kind",
		},
		[]string{"kind"},
	)

	// NotificationsDispatched counts broker publishes by result (ok, failed).
	NotificationsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohort_notifications_dispatched_total",
			Help: "Real-time notification publishes by result",
		},
		[]string{"result"},
	)

	AssignmentsMade = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohort_batch_assignments_total",
			Help: "Batch assignment outcomes by phase kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	TriggerRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohort_phase_trigger_runs_total",
			Help: "Phase trigger invocations by outcome",
		},
		[]string{"outcome"},
	)

	TriggerDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cohort_phase_trigger_duration_seconds",
			Help:    "Duration of phase trigger runs that executed a batch",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	RealtimeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cohort_realtime_sessions",
			Help: "Currently connected real-time sessions",
		},
	)
)

// Collectors lists every collector owned by this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		RequestTransitions,
		NotificationsRecorded,
		NotificationsDispatched,
		AssignmentsMade,
		TriggerRuns,
		TriggerDuration,
		RealtimeSessions,
	}
}

// NewRegistry returns a registry with the Go and process collectors plus the
// package collectors.
func NewRegistry() (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

type Server struct {
	server *http.Server
	logger *zap.Logger
}

func NewServer(addr string, reg *prometheus.Registry, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start serves in the background. An empty address disables the server.
func (s *Server) Start() {
	if s.server.Addr == "" {
		s.logger.Info("metrics server disabled")
		return
	}
	go func() {
		s.logger.Info("metrics server started", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
