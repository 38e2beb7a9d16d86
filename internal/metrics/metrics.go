package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics собирает счётчики жизненного цикла заказа и конвейера уведомлений.
type Metrics struct {
	orderTransitions *prometheus.CounterVec
	ordersCreated    prometheus.Counter
	pricingQuotes    *prometheus.CounterVec

	busPublished      *prometheus.CounterVec
	busHandlerFailure *prometheus.CounterVec

	queuePublish  *prometheus.CounterVec
	queueOutcome  *prometheus.CounterVec
	queueDuration *prometheus.HistogramVec

	channelDeliveries *prometheus.CounterVec
	analyticsEvents   *prometheus.CounterVec

	realtimeConnections prometheus.Gauge
	realtimeDropped     prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default возвращает метрики, зарегистрированные в prometheus.DefaultRegisterer.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewWithRegisterer(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewWithRegisterer создаёт метрики в указанном реестре (в тестах изолированном).
func NewWithRegisterer(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		orderTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "campusprint_order_transitions_total",
			Help: "Order status transition attempts grouped by from, to and result.",
		}, []string{"from", "to", "result"}),
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "campusprint_orders_created_total",
			Help: "Total number of orders created.",
		}),
		pricingQuotes: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "campusprint_pricing_quotes_total",
			Help: "Price calculations grouped by surge state.",
		}, []string{"surge"}),
		busPublished: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "campusprint_eventbus_published_total",
			Help: "Domain events published on the in-process bus.",
		}, []string{"event_type"}),
		busHandlerFailure: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "campusprint_eventbus_handler_failures_total",
			Help: "Event bus handlers that returned an error or panicked.",
		}, []string{"event_type"}),
		queuePublish: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "campusprint_queue_publish_total",
			Help: "Queue publish attempts grouped by queue and result.",
		}, []string{"queue", "result"}),
		queueOutcome: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "campusprint_queue_messages_total",
			Help: "Consumed queue messages grouped by queue and outcome (ack, reject).",
		}, []string{"queue", "outcome"}),
		queueDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "campusprint_queue_handle_duration_seconds",
			Help:    "Time spent handling one queue message.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"queue"}),
		channelDeliveries: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "campusprint_channel_deliveries_total",
			Help: "Notification channel deliveries grouped by channel and result.",
		}, []string{"channel", "result"}),
		analyticsEvents: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "campusprint_analytics_events_total",
			Help: "Domain events received on the analytics queue.",
		}, []string{"event_type"}),
		realtimeConnections: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "campusprint_realtime_connections",
			Help: "Currently connected realtime sockets.",
		}),
		realtimeDropped: registerCounter(registerer, prometheus.CounterOpts{
			Name: "campusprint_realtime_dropped_total",
			Help: "Realtime frames dropped because a client send buffer was full.",
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

// RecordTransition учитывает попытку смены статуса; result принимает ok, invalid, forbidden, conflict, error.
func (m *Metrics) RecordTransition(from, to, result string) {
	m.orderTransitions.WithLabelValues(from, to, result).Inc()
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *Metrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}

// RecordPricingQuote учитывает расчёт цены.
func (m *Metrics) RecordPricingQuote(surged bool) {
	label := "none"
	if surged {
		label = "applied"
	}
	m.pricingQuotes.WithLabelValues(label).Inc()
}

func (m *Metrics) RecordEventPublished(eventType string) {
	m.busPublished.WithLabelValues(eventType).Inc()
}

func (m *Metrics) RecordHandlerFailure(eventType string) {
	m.busHandlerFailure.WithLabelValues(eventType).Inc()
}

// RecordQueuePublish учитывает публикацию; ошибки публикации не пробрасываются вызывающему.
func (m *Metrics) RecordQueuePublish(queue string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.queuePublish.WithLabelValues(queue, result).Inc()
}

// RecordQueueOutcome учитывает ack/reject и время обработки.
func (m *Metrics) RecordQueueOutcome(queue, outcome string, duration time.Duration) {
	m.queueOutcome.WithLabelValues(queue, outcome).Inc()
	m.queueDuration.WithLabelValues(queue).Observe(duration.Seconds())
}

func (m *Metrics) RecordChannelDelivery(channel string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.channelDeliveries.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) RecordAnalyticsEvent(eventType string) {
	m.analyticsEvents.WithLabelValues(eventType).Inc()
}

func (m *Metrics) RealtimeConnected()    { m.realtimeConnections.Inc() }
func (m *Metrics) RealtimeDisconnected() { m.realtimeConnections.Dec() }
func (m *Metrics) RecordRealtimeDropped() {
	m.realtimeDropped.Inc()
}
