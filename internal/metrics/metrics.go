// Package metrics exposes Prometheus counters for document actions and
// notification delivery.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Recorder owns a private registry so tests and multiple servers never collide
// on the global default registerer.
type Recorder struct {
	registry      *prometheus.Registry
	actions       *prometheus.CounterVec
	notifications *prometheus.CounterVec
	requests      *prometheus.HistogramVec
}

func New() *Recorder {
	registry := prometheus.NewRegistry()
	r := &Recorder{
		registry: registry,
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "folio",
			Name:      "actions_total",
			Help:      "Document actions by kind, action and result.",
		}, []string{"kind", "action", "result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "folio",
			Name:      "notifications_total",
			Help:      "Notification deliveries by template and status.",
		}, []string{"template", "status"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "folio",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
	registry.MustRegister(
		r.actions,
		r.notifications,
		r.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) Action(kind, action string, err error) {
	if r == nil {
		return
	}
	r.actions.WithLabelValues(kind, action, result(err)).Inc()
}

func (r *Recorder) Notification(template string, err error) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(template, result(err)).Inc()
}

func (r *Recorder) Request(method, status string, seconds float64) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(method, status).Observe(seconds)
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
