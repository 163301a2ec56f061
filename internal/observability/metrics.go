package observability

import (
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer    promclient.Gatherer
	apiRequests *promclient.CounterVec
	apiLatency  *promclient.HistogramVec
	apiInflight promclient.Gauge
	submissions *promclient.CounterVec
	cacheLookup *promclient.CounterVec
	reminders   *promclient.CounterVec
}

// NewMetrics registers the collectors on reg, reusing any already registered under the
// same name. A nil reg uses a fresh registry.
func NewMetrics(namespace string, reg *promclient.Registry) (*Metrics, error) {
	if namespace == "" {
		namespace = "coachd"
	}
	if reg == nil {
		reg = promclient.NewRegistry()
	}
	m := &Metrics{gatherer: reg}

	var err error
	if m.apiRequests, err = registerCounterVec(reg, promclient.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, "method", "route", "status"); err != nil {
		return nil, err
	}
	if m.apiLatency, err = registerHistogramVec(reg, promclient.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   promclient.DefBuckets,
	}, "method", "route"); err != nil {
		return nil, err
	}
	gauge := promclient.NewGauge(promclient.GaugeOpts{
		Namespace: namespace,
		Name:      "http_requests_inflight",
		Help:      "Requests currently being served.",
	})
	if err := reg.Register(gauge); err != nil {
		are, ok := err.(promclient.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register inflight gauge: %w", err)
		}
		existing, ok := are.ExistingCollector.(promclient.Gauge)
		if !ok {
			return nil, fmt.Errorf("register inflight gauge: %w", err)
		}
		gauge = existing
	}
	m.apiInflight = gauge
	if m.submissions, err = registerCounterVec(reg, promclient.CounterOpts{
		Namespace: namespace,
		Name:      "intake_submissions_total",
		Help:      "Intake submissions by form type and outcome.",
	}, "form_type", "outcome"); err != nil {
		return nil, err
	}
	if m.cacheLookup, err = registerCounterVec(reg, promclient.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Read-model cache lookups by kind and result.",
	}, "kind", "result"); err != nil {
		return nil, err
	}
	if m.reminders, err = registerCounterVec(reg, promclient.CounterOpts{
		Namespace: namespace,
		Name:      "expiry_reminders_total",
		Help:      "Membership expiry reminders by outcome.",
	}, "outcome"); err != nil {
		return nil, err
	}
	return m, nil
}

func registerCounterVec(reg promclient.Registerer, opts promclient.CounterOpts, labels ...string) (*promclient.CounterVec, error) {
	c := promclient.NewCounterVec(opts, labels)
	if err := reg.Register(c); err != nil {
		if are, ok := err.(promclient.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*promclient.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register %s: %w", opts.Name, err)
	}
	return c, nil
}

func registerHistogramVec(reg promclient.Registerer, opts promclient.HistogramOpts, labels ...string) (*promclient.HistogramVec, error) {
	h := promclient.NewHistogramVec(opts, labels)
	if err := reg.Register(h); err != nil {
		if are, ok := err.(promclient.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*promclient.HistogramVec); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register %s: %w", opts.Name, err)
	}
	return h, nil
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ApiInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) ApiInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

func (m *Metrics) ObserveAPI(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) RecordSubmission(formType string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.submissions.WithLabelValues(formType, outcome).Inc()
}

func (m *Metrics) RecordCacheLookup(kind string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookup.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) RecordReminder(err error) {
	if m == nil {
		return
	}
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	m.reminders.WithLabelValues(outcome).Inc()
}
