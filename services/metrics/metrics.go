// Package metrics exposes the Prometheus collectors of the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "psms"

// Metrics holds collectors registered on their own registry, so that test servers do not clash.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	SubmissionsUploaded prometheus.Counter
	FeedbackSent        prometheus.Counter
	NotificationsPushed *prometheus.CounterVec
	WebsocketClients    prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		SubmissionsUploaded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_uploaded_total",
			Help:      "Total number of proposal files uploaded",
		}),

		FeedbackSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_sent_total",
			Help:      "Total number of feedback messages sent by supervisors",
		}),

		NotificationsPushed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_pushed_total",
				Help:      "Total number of notification pushes to websocket connections",
			},
			[]string{"result"}, // delivered, no_client, dropped
		),

		WebsocketClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Current number of connected websocket clients",
		}),
	}
}

// ObserveRequest records a served request. route is the matched route pattern, not the raw path.
func (m *Metrics) ObserveRequest(method, route string, status int, took time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

// ClientsChanged & Pushed make Metrics a realtime.Observer.
func (m *Metrics) ClientsChanged(n int) { m.WebsocketClients.Set(float64(n)) }

func (m *Metrics) Pushed(result string) { m.NotificationsPushed.WithLabelValues(result).Inc() }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }
