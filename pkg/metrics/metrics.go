// Package metrics holds the Prometheus collectors of the billing engine.
//
// A nil *Metrics is valid and records nothing, so services can be built
// without a registry in tests.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "meed"

// Result labels produced by the default classifier.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultCanceled = "canceled"
)

// Classifier maps an operation error to a bounded label value.
// It must return ResultOK for a nil error.
type Classifier func(error) string

// DefaultClassifier distinguishes success, cancellation and any other failure.
func DefaultClassifier(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ResultCanceled
	default:
		return ResultError
	}
}

// Metrics holds all collectors.
type Metrics struct {
	// Engine operations
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Credits
	CreditsGrantedTotal  *prometheus.CounterVec
	CreditsDeductedTotal *prometheus.CounterVec

	// Subscriptions and payments
	SubscriptionsStartedTotal *prometheus.CounterVec
	SubscriptionsExpiredTotal prometheus.Counter
	PaymentsTotal             *prometheus.CounterVec
	PaymentsAmountTotal       *prometheus.CounterVec

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	classify Classifier
}

// Option configures Metrics.
type Option func(*Metrics)

// WithClassifier sets how operation errors become result labels.
func WithClassifier(c Classifier) Option {
	return func(m *Metrics) {
		if c != nil {
			m.classify = c
		}
	}
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer, opts ...Option) *Metrics {
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of engine operations by result",
			},
			[]string{"operation", "result"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Engine operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		CreditsGrantedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credits_granted_total",
				Help:      "Credits added to balances",
			},
			[]string{"reason"},
		),
		CreditsDeductedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credits_deducted_total",
				Help:      "Credits removed from balances",
			},
			[]string{"reason"},
		),
		SubscriptionsStartedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscriptions_started_total",
				Help:      "Subscriptions created or extended",
			},
			[]string{"kind", "plan"},
		),
		SubscriptionsExpiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscriptions_expired_total",
				Help:      "Subscriptions whose term ended",
			},
		),
		PaymentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payments_total",
				Help:      "Recorded payments by kind",
			},
			[]string{"kind"},
		),
		PaymentsAmountTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payments_amount_total",
				Help:      "Recorded payment value in the smallest currency unit",
			},
			[]string{"kind", "currency"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		classify: DefaultClassifier,
	}
	for _, opt := range opts {
		opt(m)
	}

	reg.MustRegister(
		m.OperationsTotal,
		m.OperationDuration,
		m.CreditsGrantedTotal,
		m.CreditsDeductedTotal,
		m.SubscriptionsStartedTotal,
		m.SubscriptionsExpiredTotal,
		m.PaymentsTotal,
		m.PaymentsAmountTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

// Observe records one operation that started at start and ended with err.
func (m *Metrics) Observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(op, m.classify(err)).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// CreditsMoved records a balance change. Negative deltas count as deductions.
func (m *Metrics) CreditsMoved(reason string, delta int64) {
	if m == nil || delta == 0 {
		return
	}
	if delta > 0 {
		m.CreditsGrantedTotal.WithLabelValues(reason).Add(float64(delta))
		return
	}
	m.CreditsDeductedTotal.WithLabelValues(reason).Add(float64(-delta))
}

// SubscriptionStarted records a trial, subscription or renewal.
func (m *Metrics) SubscriptionStarted(kind, plan string) {
	if m == nil {
		return
	}
	m.SubscriptionsStartedTotal.WithLabelValues(kind, plan).Inc()
}

// SubscriptionsExpired adds n expiries.
func (m *Metrics) SubscriptionsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SubscriptionsExpiredTotal.Add(float64(n))
}

// Payment records a payment of amount units in currency.
func (m *Metrics) Payment(kind, currency string, amount int64) {
	if m == nil {
		return
	}
	m.PaymentsTotal.WithLabelValues(kind).Inc()
	if amount > 0 {
		m.PaymentsAmountTotal.WithLabelValues(kind, currency).Add(float64(amount))
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Middleware instruments HTTP requests. Requests are labeled by their chi
// route pattern to keep label cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
