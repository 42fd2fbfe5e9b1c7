// Package metrics exposes Prometheus metrics for the swap service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "simpleswap"

// Metrics holds all swap metrics.
type Metrics struct {
	gatherer prometheus.Gatherer

	// Swap metrics
	SwapsTotal    *prometheus.CounterVec
	SwapDuration  prometheus.Histogram
	SwappedAmount *prometheus.CounterVec

	// Recovery metrics
	RecoveredSwaps *prometheus.CounterVec

	// Reserve metrics
	Reserve *prometheus.GaugeVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
}

// New registers swap metrics on reg. A nil reg uses a private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		SwapsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "swaps_total",
			Help:      "Total number of swap invocations by direction and outcome",
		}, []string{"direction", "outcome"}),
		SwapDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "swap_duration_seconds",
			Help:      "Swap invocation latency",
			Buckets:   prometheus.DefBuckets,
		}),
		SwappedAmount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "swapped_amount_total",
			Help:      "Total amount received by the contract per input asset",
		}, []string{"asset"}),
		RecoveredSwaps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recovery",
			Name:      "swaps_total",
			Help:      "Journaled swaps resolved at startup by final status",
		}, []string{"status"}),
		Reserve: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "reserve",
			Help:      "Contract balance of each registered asset, last observed",
		}, []string{"asset"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
	}
}

// ObserveSwap records one swap invocation.
func (m *Metrics) ObserveSwap(direction, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.SwapsTotal.WithLabelValues(direction, outcome).Inc()
	m.SwapDuration.Observe(time.Since(started).Seconds())
}

// AddSwapped adds a completed swap's amount for the input asset.
func (m *Metrics) AddSwapped(asset string, amount float64) {
	if m == nil {
		return
	}
	m.SwappedAmount.WithLabelValues(asset).Add(amount)
}

// SetReserve records the last observed reserve of asset.
func (m *Metrics) SetReserve(asset string, amount float64) {
	if m == nil {
		return
	}
	m.Reserve.WithLabelValues(asset).Set(amount)
}

// ObserveRecovery counts a swap resolved during startup reconciliation.
func (m *Metrics) ObserveRecovery(status string) {
	if m == nil {
		return
	}
	m.RecoveredSwaps.WithLabelValues(status).Inc()
}

// ObserveHTTP counts an HTTP response.
func (m *Metrics) ObserveHTTP(route, code string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, code).Inc()
}

// Handler returns the Prometheus HTTP handler for the registered metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
