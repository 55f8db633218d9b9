package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics содержит метрики операций леджера.
// Методы безопасны для nil-получателя: сервис без метрик просто их не пишет.
type LedgerMetrics struct {
	obligationsCreated *prometheus.CounterVec
	transitions        *prometheus.CounterVec
	settlements        *prometheus.CounterVec
	settledAmount      *prometheus.CounterVec
	creditRejections   prometheus.Counter
	operationErrors    *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec

	overduePromoted prometheus.Counter
	sweepFailures   prometheus.Counter
	sweepDuration   prometheus.Histogram
	lastSweepUnix   prometheus.Gauge
}

// NewLedgerMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewLedgerMetrics() *LedgerMetrics {
	return NewLedgerMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewLedgerMetricsWithRegisterer регистрирует метрики в указанном registerer;
// повторная регистрация возвращает уже существующие коллекторы.
func NewLedgerMetricsWithRegisterer(registerer prometheus.Registerer) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &LedgerMetrics{
		obligationsCreated: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ledger_obligations_created_total",
			Help: "Total number of obligations created by kind",
		}, []string{"kind"}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ledger_obligation_transitions_total",
			Help: "Total number of obligation status transitions",
		}, []string{"from", "to"}),
		settlements: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ledger_settlements_recorded_total",
			Help: "Total number of settlements recorded by method",
		}, []string{"method"}),
		settledAmount: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ledger_settled_amount_minor_total",
			Help: "Sum of settled amounts in minor units by currency",
		}, []string{"currency"}),
		creditRejections: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_credit_limit_rejections_total",
			Help: "Total number of charges rejected by credit limit",
		}),
		operationErrors: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ledger_operation_errors_total",
			Help: "Total number of failed ledger operations",
		}, []string{"operation"}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		overduePromoted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_overdue_promoted_total",
			Help: "Total number of obligations moved to overdue by the sweeper",
		}),
		sweepFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_overdue_sweep_failures_total",
			Help: "Total number of obligations the sweeper failed to promote",
		}),
		sweepDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "ledger_overdue_sweep_duration_seconds",
			Help:    "Duration of overdue sweeps in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		lastSweepUnix: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "ledger_overdue_sweep_last_run_timestamp_seconds",
			Help: "Unix time of the last completed overdue sweep",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordObligationCreated учитывает созданное обязательство.
func (m *LedgerMetrics) RecordObligationCreated(kind string) {
	if m == nil {
		return
	}
	m.obligationsCreated.WithLabelValues(kind).Inc()
}

// RecordTransition учитывает смену статуса обязательства.
func (m *LedgerMetrics) RecordTransition(from, to string) {
	if m == nil || from == to {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordSettlement учитывает погашение и его сумму.
func (m *LedgerMetrics) RecordSettlement(method, currency string, amountMinor int64) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(method).Inc()
	m.settledAmount.WithLabelValues(currency).Add(float64(amountMinor))
}

// RecordCreditRejection учитывает отказ по кредитному лимиту.
func (m *LedgerMetrics) RecordCreditRejection() {
	if m == nil {
		return
	}
	m.creditRejections.Inc()
}

// ObserveOperation записывает длительность операции и, если err != nil, ошибку.
func (m *LedgerMetrics) ObserveOperation(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	if err != nil {
		m.operationErrors.WithLabelValues(operation).Inc()
	}
}

// RecordSweep записывает итог прохода свипа.
func (m *LedgerMetrics) RecordSweep(promoted, failures int, duration time.Duration, finishedAt time.Time) {
	if m == nil {
		return
	}
	m.overduePromoted.Add(float64(promoted))
	m.sweepFailures.Add(float64(failures))
	m.sweepDuration.Observe(duration.Seconds())
	m.lastSweepUnix.Set(float64(finishedAt.Unix()))
}
