// Package metrics provides Prometheus instrumentation for password store
// operations and the HTTP service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace is the Prometheus namespace for all pph metrics
	Namespace = "pph"

	LabelResult       = "result"
	LabelVerification = "verification"
	LabelMethod       = "method"
	LabelRoute        = "route"
	LabelStatusCode   = "status_code"

	ResultValid   = "valid"
	ResultInvalid = "invalid"
	ResultSuccess = "success"
	ResultError   = "error"

	VerificationPartial = "partial"
	VerificationFull    = "full"
)

// Metrics owns a private registry so that several stores, or tests, do not
// collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	LoginsTotal         *prometheus.CounterVec
	UnlocksTotal        *prometheus.CounterVec
	AccountsCreated     prometheus.Counter
	SharesIssued        prometheus.Counter
	Unlocked            prometheus.Gauge
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "logins_total",
				Help:      "Login checks by result and verification mode",
			},
			[]string{LabelResult, LabelVerification},
		),
		UnlocksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "unlocks_total",
				Help:      "Attempts to unlock the password data by result",
			},
			[]string{LabelResult},
		),
		AccountsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "accounts_created_total",
				Help:      "Accounts created",
			},
		),
		SharesIssued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "shares_issued_total",
				Help:      "Shares issued to new accounts",
			},
		),
		Unlocked: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "unlocked",
				Help:      "1 once the password data is unlocked",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests by method, route and status code",
			},
			[]string{LabelMethod, LabelRoute, LabelStatusCode},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{LabelMethod, LabelRoute},
		),
	}

	m.registry.MustRegister(
		m.LoginsTotal,
		m.UnlocksTotal,
		m.AccountsCreated,
		m.SharesIssued,
		m.Unlocked,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

// Registry exposes the registry for gathering, e.g. in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// LoginChecked records one login verification.
func (m *Metrics) LoginChecked(unlocked, valid bool) {
	verification := VerificationPartial
	if unlocked {
		verification = VerificationFull
	}
	result := ResultInvalid
	if valid {
		result = ResultValid
	}
	m.LoginsTotal.WithLabelValues(result, verification).Inc()
}

// UnlockAttempted records the outcome of an unlock.
func (m *Metrics) UnlockAttempted(err error) {
	if err != nil {
		m.UnlocksTotal.WithLabelValues(ResultError).Inc()
		return
	}
	m.UnlocksTotal.WithLabelValues(ResultSuccess).Inc()
	m.Unlocked.Set(1)
}

// AccountCreated records a new account holding shares shares.
func (m *Metrics) AccountCreated(shares int) {
	m.AccountsCreated.Inc()
	m.SharesIssued.Add(float64(shares))
}

// ObserveRequest records a finished HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// WriteToTextfile writes the current values for the node exporter textfile
// collector.
func (m *Metrics) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
