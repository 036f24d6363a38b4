package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "solar_"

	resultSuccess = "success"
	resultError   = "error"

	cacheHit     = "hit"
	cacheMiss    = "miss"
	cacheRefresh = "refresh"

	eventDelivered = "delivered"
	eventFailed    = "failed"
	eventUnrouted  = "unrouted"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	consumerLag     *prometheus.GaugeVec
	eventsPublished *prometheus.CounterVec

	aggregationTotal   *prometheus.CounterVec
	aggregationLatency *prometheus.HistogramVec

	forecastCache *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	alarmEventsTotal   *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	reportsTotal       *prometheus.CounterVec
)

// Init registers observability metrics and DB-backed gauges. db may be nil.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total ingest requests by result",
			},
			[]string{"result"},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Total ingest errors by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		consumerLag = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "event_consumer_lag_seconds",
				Help: "Consumer processing lag in seconds",
			},
			[]string{"consumer"},
		)

		eventsPublished = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_published_total",
				Help: "Total in-process events by type and delivery outcome",
			},
			[]string{"event_type", "outcome"},
		)
		aggregationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "aggregation_total",
				Help: "Total aggregation runs by kind and result",
			},
			[]string{"kind", "result"},
		)
		aggregationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "aggregation_latency_seconds",
				Help:    "Aggregation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		)

		forecastCache = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "forecast_cache_total",
				Help: "Forecast cache lookups by outcome",
			},
			[]string{"outcome"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total telemetry exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Telemetry export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format"},
		)

		alarmEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_events_total",
				Help: "Total alarm lifecycle events by type",
			},
			[]string{"event"},
		)
		notificationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Total notifications by channel and result",
			},
			[]string{"channel", "result"},
		)
		reportsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reports_sent_total",
				Help: "Total summary reports by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestErrors,
			ingestLatency,
			consumerLag,
			eventsPublished,
			aggregationTotal,
			aggregationLatency,
			forecastCache,
			exportTotal,
			exportLatency,
			alarmEventsTotal,
			notificationsTotal,
			reportsTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIngest records ingest request duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncIngestError increments ingest error counter.
func IncIngestError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(reason).Inc()
	}
}

// ObserveConsumerLag sets consumer lag in seconds.
func ObserveConsumerLag(consumer string, lag time.Duration) {
	if consumer == "" {
		consumer = "unknown"
	}
	if lag < 0 {
		lag = 0
	}
	if consumerLag != nil {
		consumerLag.WithLabelValues(consumer).Set(lag.Seconds())
	}
}

// IncEventPublished counts a published event by delivery outcome.
func IncEventPublished(eventType, outcome string) {
	if eventType == "" {
		eventType = "unknown"
	}
	if eventsPublished != nil {
		eventsPublished.WithLabelValues(eventType, outcome).Inc()
	}
}

// ObserveAggregation records an aggregation run.
func ObserveAggregation(kind, result string, duration time.Duration) {
	if kind == "" {
		kind = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if aggregationTotal != nil {
		aggregationTotal.WithLabelValues(kind, result).Inc()
	}
	if aggregationLatency != nil {
		aggregationLatency.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// IncForecastCache counts a forecast cache lookup outcome.
func IncForecastCache(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if forecastCache != nil {
		forecastCache.WithLabelValues(outcome).Inc()
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format).Observe(duration.Seconds())
	}
}

// IncAlarmEvent increments alarm lifecycle counters.
func IncAlarmEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if alarmEventsTotal != nil {
		alarmEventsTotal.WithLabelValues(event).Inc()
	}
}

// IncNotification counts a notification delivery attempt.
func IncNotification(channel, result string) {
	if channel == "" {
		channel = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if notificationsTotal != nil {
		notificationsTotal.WithLabelValues(channel, result).Inc()
	}
}

// IncReport counts a summary report send.
func IncReport(result string) {
	if result == "" {
		result = resultSuccess
	}
	if reportsTotal != nil {
		reportsTotal.WithLabelValues(result).Inc()
	}
}

// ResultOf maps an error to a result label.
func ResultOf(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	CacheHit     = cacheHit
	CacheMiss    = cacheMiss
	CacheRefresh = cacheRefresh

	EventDelivered = eventDelivered
	EventFailed    = eventFailed
	EventUnrouted  = eventUnrouted
)
