package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry            *prometheus.Registry
	handler             http.Handler
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	gateDecisions       *prometheus.CounterVec
	approvalTransitions *prometheus.CounterVec
	jobsTotal           *prometheus.CounterVec
	menuReloads         prometheus.Counter
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "authz_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	gate := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_gate_decisions_total",
		Help: "Keputusan route gate berdasarkan hasil dan kode.",
	}, []string{"outcome", "code"})
	approvals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_approval_transitions_total",
		Help: "Transisi workflow persetujuan izin berdasarkan hasil.",
	}, []string{"outcome"})
	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_jobs_total",
		Help: "Jumlah eksekusi job latar belakang berdasarkan tipe dan status.",
	}, []string{"task", "status"})
	reloads := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_menu_rules_reloads_total",
		Help: "Jumlah pemuatan ulang aturan menu.",
	})
	registry.MustRegister(requests, duration, gate, approvals, jobs, reloads)
	return &Metrics{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:       requests,
		requestDuration:     duration,
		gateDecisions:       gate,
		approvalTransitions: approvals,
		jobsTotal:           jobs,
		menuReloads:         reloads,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveGateDecision mencatat satu keputusan route gate.
func (m *Metrics) ObserveGateDecision(outcome, code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "none"
	}
	m.gateDecisions.WithLabelValues(outcome, code).Inc()
}

// ObserveApproval mencatat transisi workflow persetujuan.
func (m *Metrics) ObserveApproval(outcome string) {
	if m == nil {
		return
	}
	m.approvalTransitions.WithLabelValues(outcome).Inc()
}

// ObserveJob mencatat hasil eksekusi job.
func (m *Metrics) ObserveJob(task string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.jobsTotal.WithLabelValues(task, status).Inc()
}

// ObserveMenuReload mencatat pemuatan ulang aturan menu.
func (m *Metrics) ObserveMenuReload() {
	if m == nil {
		return
	}
	m.menuReloads.Inc()
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
