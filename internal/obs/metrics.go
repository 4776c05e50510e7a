package obs

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var latencyBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Metrics holds the gateway's Prometheus collectors, constructed once
// per process and passed by reference to every package that records
// against it — no package-level registry.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests     *prometheus.CounterVec
	taskLatency     *prometheus.HistogramVec
	activeTasks     prometheus.Gauge
	policyEvals     *prometheus.CounterVec
	sandboxExecTime *prometheus.HistogramVec
	errors          *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		apiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "api_requests_total", Help: "Total number of API calls"},
			[]string{"method", "path", "status"},
		),
		taskLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "task_latency_ms", Help: "Task execution time in milliseconds", Buckets: latencyBuckets},
			[]string{"task_type", "status"},
		),
		activeTasks: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "active_tasks", Help: "Number of currently running tasks"},
		),
		policyEvals: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "policy_evaluations_total", Help: "Total number of policy evaluations"},
			[]string{"policy", "result"},
		),
		sandboxExecTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "sandbox_execution_time_ms", Help: "Sandbox execution time in milliseconds", Buckets: latencyBuckets},
			[]string{"command"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "errors_total", Help: "Total number of errors"},
			[]string{"type", "code"},
		),
	}

	registry.MustRegister(m.apiRequests, m.taskLatency, m.activeTasks, m.policyEvals, m.sandboxExecTime, m.errors)
	return m
}

// ObserveRequest implements transport.Metrics.
func (m *Metrics) ObserveRequest(method, status string, duration time.Duration) {
	m.apiRequests.WithLabelValues(method, method, status).Inc()
}

func (m *Metrics) ObserveTaskLatency(taskType, status string, duration time.Duration) {
	m.taskLatency.WithLabelValues(taskType, status).Observe(float64(duration.Milliseconds()))
}

func (m *Metrics) IncActiveTasks()   { m.activeTasks.Inc() }
func (m *Metrics) DecActiveTasks()   { m.activeTasks.Dec() }

func (m *Metrics) ObservePolicyEvaluation(policy, result string) {
	m.policyEvals.WithLabelValues(policy, result).Inc()
}

func (m *Metrics) ObserveSandboxExecutionTime(command string, duration time.Duration) {
	m.sandboxExecTime.WithLabelValues(command).Observe(float64(duration.Milliseconds()))
}

func (m *Metrics) ObserveError(errorType, code string) {
	m.errors.WithLabelValues(errorType, code).Inc()
}

// Serve runs the /metrics and /health HTTP endpoints until ctx is
// cancelled. addr is expected in "host:port" form, e.g. ":9090".
func (m *Metrics) Serve(ctx context.Context, addr string, log logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	log.WithField("addr", addr).Info("observability endpoint listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("observability server: %w", err)
		}
		return nil
	}
}
