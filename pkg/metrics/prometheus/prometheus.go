package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JoeShih716/go-cash-ledger/pkg/metrics"
)

// PrometheusCollector 以 Prometheus 實作 metrics.Collector
type PrometheusCollector struct {
	operations      *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	balances        *prometheus.GaugeVec
	eventsPublished *prometheus.CounterVec
	circuitState    *prometheus.GaugeVec
	circuitOpens    *prometheus.CounterVec
}

// NewPrometheusCollector 建立 collector，需再呼叫 Register 註冊
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	return &PrometheusCollector{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of ledger operations by operation and result",
			},
			[]string{"op", "result"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Ledger operation latency",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15), // 0.1ms ~ 3s
			},
			[]string{"op"},
		),
		balances: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "account_balance",
				Help:      "Current balance per account",
			},
			[]string{"account"},
		),
		eventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Total number of ledger events published by result",
			},
			[]string{"result"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		circuitOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_opens_total",
				Help:      "Total number of circuit breaker opens",
			},
			[]string{"name"},
		),
	}
}

// Register 把所有指標註冊到 registry
func (pc *PrometheusCollector) Register(registry prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		pc.operations,
		pc.latency,
		pc.balances,
		pc.eventsPublished,
		pc.circuitState,
		pc.circuitOpens,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

func (pc *PrometheusCollector) RecordOperation(op, result string, duration time.Duration) {
	pc.operations.WithLabelValues(op, result).Inc()
	pc.latency.WithLabelValues(op).Observe(duration.Seconds())
}

func (pc *PrometheusCollector) RecordBalance(accountID string, balance float64) {
	pc.balances.WithLabelValues(accountID).Set(balance)
}

func (pc *PrometheusCollector) RecordEventPublished(success bool) {
	result := metrics.ResultOK
	if !success {
		result = metrics.ResultError
	}
	pc.eventsPublished.WithLabelValues(result).Inc()
}

func (pc *PrometheusCollector) RecordCircuitState(name string, state metrics.CircuitState) {
	pc.circuitState.WithLabelValues(name).Set(float64(state))
	if state == metrics.CircuitOpen {
		pc.circuitOpens.WithLabelValues(name).Inc()
	}
}

var _ metrics.Collector = (*PrometheusCollector)(nil)
