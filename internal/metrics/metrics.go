// Package metrics holds the Prometheus collectors of the mailer.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeSent      = "sent"
	OutcomeFailed    = "failed"
	OutcomeScheduled = "scheduled"

	BeaconHit     = "hit"
	BeaconUnknown = "unknown"
	BeaconError   = "error"
)

type Metrics struct {
	sends            *prometheus.CounterVec
	transport        prometheus.Histogram
	transportTimeout prometheus.Counter
	beaconHits       *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	scheduledPending prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers every collector on reg. A nil reg uses a private registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campaign_sends_total",
			Help: "Per-recipient dispatch outcomes",
		}, []string{"outcome"}),
		transport: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "campaign_transport_duration_seconds",
			Help:    "Latency of one mail sender call",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		transportTimeout: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campaign_transport_timeouts_total",
			Help: "Sends abandoned at their deadline; the message may still have been delivered",
		}),
		beaconHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campaign_beacon_hits_total",
			Help: "Tracking pixel requests by result",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campaign_record_transitions_total",
			Help: "Campaign record status changes",
		}, []string{"status"}),
		scheduledPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "campaign_scheduled_pending",
			Help: "Scheduled sends waiting for their timer",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests processed",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	for _, c := range []prometheus.Collector{
		m.sends, m.transport, m.transportTimeout, m.beaconHits, m.transitions, m.scheduledPending,
		m.httpRequests, m.httpDuration,
	} {
		if err := registerCollector(reg, c); err != nil {
			return nil, err
		}
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m, nil
}

// registerCollector tolerates collectors already registered on reg.
func registerCollector(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return nil
		}
		return err
	}
	return nil
}

// Handler serves the registry New was given, or the default gatherer.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) Send(outcome string) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveTransport(d time.Duration) {
	if m == nil {
		return
	}
	m.transport.Observe(d.Seconds())
}

// TransportTimeout counts a send whose outcome is unknown.
func (m *Metrics) TransportTimeout() {
	if m == nil {
		return
	}
	m.transportTimeout.Inc()
}

func (m *Metrics) Beacon(result string) {
	if m == nil {
		return
	}
	m.beaconHits.WithLabelValues(result).Inc()
}

func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) SetScheduledPending(n int) {
	if m == nil {
		return
	}
	m.scheduledPending.Set(float64(n))
}

// Middleware records request count and latency labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		method := strings.ToUpper(r.Method)
		path := routePattern(r)
		m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// routePattern keeps label cardinality bounded: tracking ids never become labels.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
