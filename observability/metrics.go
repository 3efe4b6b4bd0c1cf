package observability

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	stakingMetricsOnce sync.Once
	stakingRegistry    *StakingMetrics
)

// StakingMetrics bundles the collectors exported by the vault daemon.
type StakingMetrics struct {
	operations    *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	payouts       *prometheus.CounterVec
	payoutAmount  *prometheus.CounterVec
	totalStaked   prometheus.Gauge
	treasury      prometheus.Gauge
	capacity      prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	throttles     *prometheus.CounterVec
	pauseEngaged  prometheus.Gauge
	streamClients prometheus.Gauge
}

// Staking returns the lazily-initialised vault metrics registry.
func Staking() *StakingMetrics {
	stakingMetricsOnce.Do(func() {
		stakingRegistry = &StakingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakevault",
				Subsystem: "vault",
				Name:      "operations_total",
				Help:      "Vault operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "stakevault",
				Subsystem: "vault",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for vault operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakevault",
				Subsystem: "vault",
				Name:      "payouts_total",
				Help:      "Deposits settled segmented by exit kind.",
			}, []string{"kind"}),
			payoutAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakevault",
				Subsystem: "vault",
				Name:      "payout_amount_total",
				Help:      "Token units paid out segmented by exit kind.",
			}, []string{"kind"}),
			totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakevault",
				Subsystem: "vault",
				Name:      "total_staked",
				Help:      "Principal currently staked in integer token units.",
			}),
			treasury: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakevault",
				Subsystem: "vault",
				Name:      "treasury_balance",
				Help:      "Token balance held by the vault treasury.",
			}),
			capacity: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakevault",
				Subsystem: "vault",
				Name:      "reward_capacity",
				Help:      "Treasury balance not backing principal, floored at zero.",
			}),
			httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakevault",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests segmented by route and status code.",
			}, []string{"route", "status"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakevault",
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Requests rejected by throttling policies.",
			}, []string{"reason"}),
			pauseEngaged: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakevault",
				Subsystem: "vault",
				Name:      "pause_engaged",
				Help:      "Indicates whether the operator pause is active (1) or not (0).",
			}),
			streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakevault",
				Subsystem: "stream",
				Name:      "clients",
				Help:      "Connected websocket event subscribers.",
			}),
		}
		prometheus.MustRegister(
			stakingRegistry.operations,
			stakingRegistry.latency,
			stakingRegistry.payouts,
			stakingRegistry.payoutAmount,
			stakingRegistry.totalStaked,
			stakingRegistry.treasury,
			stakingRegistry.capacity,
			stakingRegistry.httpRequests,
			stakingRegistry.throttles,
			stakingRegistry.pauseEngaged,
			stakingRegistry.streamClients,
		)
	})
	return stakingRegistry
}

// ObserveOperation records the outcome and latency of a vault operation.
func (m *StakingMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	op := label(operation)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordPayout counts a settled deposit.
func (m *StakingMetrics) RecordPayout(kind string, amount *uint256.Int) {
	if m == nil {
		return
	}
	k := label(kind)
	m.payouts.WithLabelValues(k).Inc()
	m.payoutAmount.WithLabelValues(k).Add(amountToFloat(amount))
}

// RecordTreasury updates the treasury gauges.
func (m *StakingMetrics) RecordTreasury(totalStaked, balance, capacity *uint256.Int) {
	if m == nil {
		return
	}
	m.totalStaked.Set(amountToFloat(totalStaked))
	m.treasury.Set(amountToFloat(balance))
	m.capacity.Set(amountToFloat(capacity))
}

// ObserveHTTP counts an HTTP response.
func (m *StakingMetrics) ObserveHTTP(route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(label(route), strconv.Itoa(status)).Inc()
}

// RecordThrottle increments the throttle counter for reason.
func (m *StakingMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(label(reason)).Inc()
}

// SetPause toggles the pause_engaged gauge.
func (m *StakingMetrics) SetPause(engaged bool) {
	if m == nil {
		return
	}
	if engaged {
		m.pauseEngaged.Set(1)
		return
	}
	m.pauseEngaged.Set(0)
}

// StreamClients adjusts the connected subscriber gauge by delta.
func (m *StakingMetrics) StreamClients(delta int) {
	if m == nil {
		return
	}
	m.streamClients.Add(float64(delta))
}

func label(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

func amountToFloat(value *uint256.Int) float64 {
	if value == nil {
		return 0
	}
	if value.IsUint64() {
		return float64(value.Uint64())
	}
	floatVal, acc := new(big.Float).SetInt(value.ToBig()).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
