package observability

import (
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type ledgerMetrics struct {
	orders      *prometheus.CounterVec
	activeOrder prometheus.Gauge
	feeTotal    *prometheus.CounterVec
	upstream    *prometheus.CounterVec
}

type stakingMetrics struct {
	totalStaked prometheus.Gauge
	operations  *prometheus.CounterVec
	rewardsPaid prometheus.Counter
}

type httpMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	ledgerMetricsOnce sync.Once
	ledgerRegistry    *ledgerMetrics

	stakingMetricsOnce sync.Once
	stakingRegistry    *stakingMetrics

	httpMetricsOnce sync.Once
	httpRegistry    *httpMetrics
)

// Ledger returns the lazily-initialised order ledger metrics.
func Ledger() *ledgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &ledgerMetrics{
			orders: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "limitbook",
				Subsystem: "orders",
				Name:      "transitions_total",
				Help:      "Order lifecycle transitions segmented by action and direction.",
			}, []string{"action", "direction"}),
			activeOrder: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "limitbook",
				Subsystem: "orders",
				Name:      "active",
				Help:      "Number of open orders in the working set.",
			}),
			feeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "limitbook",
				Subsystem: "fees",
				Name:      "currency_total",
				Help:      "Currency diverted from executed trades segmented by destination.",
			}, []string{"destination"}),
			upstream: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "limitbook",
				Subsystem: "orders",
				Name:      "upstream_failures_total",
				Help:      "Executions rejected by the exchange segmented by operation.",
			}, []string{"operation"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.orders,
			ledgerRegistry.activeOrder,
			ledgerRegistry.feeTotal,
			ledgerRegistry.upstream,
		)
	})
	return ledgerRegistry
}

// RecordOrder counts a lifecycle transition.
func (m *ledgerMetrics) RecordOrder(action, direction string) {
	if m == nil {
		return
	}
	if direction == "" {
		direction = "unknown"
	}
	m.orders.WithLabelValues(strings.ToLower(action), direction).Inc()
}

// SetActive publishes the size of the working set.
func (m *ledgerMetrics) SetActive(count int) {
	if m == nil {
		return
	}
	m.activeOrder.Set(float64(count))
}

// RecordFee adds a fee share to the destination counter.
func (m *ledgerMetrics) RecordFee(destination string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.feeTotal.WithLabelValues(destination).Add(bigToFloat(amount))
}

// RecordUpstreamFailure counts an exchange rejection.
func (m *ledgerMetrics) RecordUpstreamFailure(operation string) {
	if m == nil {
		return
	}
	m.upstream.WithLabelValues(operation).Inc()
}

// Staking returns the lazily-initialised reward pool metrics.
func Staking() *stakingMetrics {
	stakingMetricsOnce.Do(func() {
		stakingRegistry = &stakingMetrics{
			totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "limitbook",
				Subsystem: "staking",
				Name:      "total_staked",
				Help:      "Protocol tokens currently staked.",
			}),
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "limitbook",
				Subsystem: "staking",
				Name:      "operations_total",
				Help:      "Staking operations segmented by kind.",
			}, []string{"operation"}),
			rewardsPaid: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "limitbook",
				Subsystem: "staking",
				Name:      "rewards_paid_total",
				Help:      "Currency paid out to stakers.",
			}),
		}
		prometheus.MustRegister(stakingRegistry.totalStaked, stakingRegistry.operations, stakingRegistry.rewardsPaid)
	})
	return stakingRegistry
}

// RecordOperation counts a staking operation.
func (m *stakingMetrics) RecordOperation(operation string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation).Inc()
}

// SetTotalStaked publishes the pool size.
func (m *stakingMetrics) SetTotalStaked(total *big.Int) {
	if m == nil || total == nil {
		return
	}
	m.totalStaked.Set(bigToFloat(total))
}

// RecordRewardPaid adds a paid reward.
func (m *stakingMetrics) RecordRewardPaid(amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.rewardsPaid.Add(bigToFloat(amount))
}

// HTTP returns the lazily-initialised daemon request metrics.
func HTTP() *httpMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &httpMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "limitbook",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests segmented by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "limitbook",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "limitbook",
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Requests rejected by the rate limiter.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(httpRegistry.requests, httpRegistry.latency, httpRegistry.throttles)
	})
	return httpRegistry
}

// Observe records the outcome of a request.
func (m *httpMetrics) Observe(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit".
func (m *httpMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

func bigToFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
