package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// POSMetrics содержит метрики кассового движка.
type POSMetrics struct {
	// Изменения корзины по операциям
	cartMutations *prometheus.CounterVec

	// Счётчики оплаты
	checkoutStarted   prometheus.Counter
	checkoutCompleted prometheus.Counter
	checkoutDeclined  prometheus.Counter
	checkoutDuration  prometheus.Histogram

	// Выручка по чекам
	receiptsAmount prometheus.Counter

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	activeSessions prometheus.Gauge
}

// NewPOSMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewPOSMetrics() *POSMetrics {
	return NewPOSMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewPOSMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewPOSMetricsWithRegisterer(registerer prometheus.Registerer) *POSMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &POSMetrics{
		cartMutations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pos_cart_mutations_total",
			Help: "Total number of cart mutations grouped by operation",
		}, []string{"operation"}),
		checkoutStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_checkout_started_total",
			Help: "Total number of payment attempts submitted",
		}),
		checkoutCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_checkout_completed_total",
			Help: "Total number of payment attempts completed successfully",
		}),
		checkoutDeclined: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_checkout_declined_total",
			Help: "Total number of payment attempts declined",
		}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "pos_checkout_duration_seconds",
			Help:    "Duration of payment attempts from submit to outcome in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 1.5, 2.0, 3.0, 5.0, 10.0},
		}),
		receiptsAmount: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_receipts_amount_total",
			Help: "Total amount of completed receipts including tax",
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		activeSessions: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "pos_active_sessions",
			Help: "Number of currently open register sessions",
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

// RecordCartMutation увеличивает счётчик изменений корзины для операции.
func (m *POSMetrics) RecordCartMutation(operation string) {
	m.cartMutations.WithLabelValues(operation).Inc()
}

// RecordCheckoutStarted увеличивает счётчик отправленных платежей.
func (m *POSMetrics) RecordCheckoutStarted() {
	m.checkoutStarted.Inc()
}

// RecordCheckoutCompleted увеличивает счётчик успешных оплат и выручку.
func (m *POSMetrics) RecordCheckoutCompleted(amount float64) {
	m.checkoutCompleted.Inc()
	if amount > 0 {
		m.receiptsAmount.Add(amount)
	}
}

// RecordCheckoutDeclined увеличивает счётчик отклонённых оплат.
func (m *POSMetrics) RecordCheckoutDeclined() {
	m.checkoutDeclined.Inc()
}

// RecordCheckoutDuration записывает время от отправки платежа до исхода.
func (m *POSMetrics) RecordCheckoutDuration(duration time.Duration) {
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordSessionOpened увеличивает количество открытых сессий.
func (m *POSMetrics) RecordSessionOpened() {
	m.activeSessions.Inc()
}

// RecordSessionClosed уменьшает количество открытых сессий.
func (m *POSMetrics) RecordSessionClosed() {
	m.activeSessions.Dec()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *POSMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *POSMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
