package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "fleet_"

	resultSuccess = "success"
	resultError   = "error"
)

// Ingest result labels.
const (
	IngestResultAccepted  = "accepted"
	IngestResultDuplicate = "duplicate"
	IngestResultInvalid   = "invalid"
	IngestResultError     = resultError
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	streamPublished *prometheus.CounterVec

	consumerProcessed *prometheus.CounterVec
	consumerLag       *prometheus.GaugeVec

	storeWrites  *prometheus.CounterVec
	storeDropped prometheus.Counter

	alertsEmitted *prometheus.CounterVec

	deadLetters *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
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

		streamPublished = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "stream_published_total",
				Help: "Total entries appended per stream",
			},
			[]string{"stream"},
		)

		consumerProcessed = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "consumer_entries_total",
				Help: "Total stream entries handled per consumer group by result",
			},
			[]string{"consumer", "result"},
		)
		consumerLag = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "consumer_lag_seconds",
				Help: "Consumer processing lag in seconds",
			},
			[]string{"consumer"},
		)

		storeWrites = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "store_writes_total",
				Help: "Total durable store writes by result",
			},
			[]string{"result"},
		)
		storeDropped = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "store_writes_dropped_total",
				Help: "Durable store writes dropped due to a full queue",
			},
		)

		alertsEmitted = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_emitted_total",
				Help: "Total alerts emitted by type and severity",
			},
			[]string{"type", "severity"},
		)

		deadLetters = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "stream_dead_letters_total",
				Help: "Total entries dead-lettered per consumer group",
			},
			[]string{"consumer"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_export_total",
				Help: "Total report exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_export_latency_seconds",
				Help:    "Report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestErrors,
			ingestLatency,
			streamPublished,
			consumerProcessed,
			consumerLag,
			storeWrites,
			storeDropped,
			alertsEmitted,
			deadLetters,
			exportTotal,
			exportLatency,
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

// IncIngestError increments the ingest error counter.
func IncIngestError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(reason).Inc()
	}
}

// IncStreamPublished increments the per-stream append counter.
func IncStreamPublished(stream string) {
	if streamPublished != nil {
		streamPublished.WithLabelValues(stream).Inc()
	}
}

// IncConsumerProcessed increments the per-consumer handled-entry counter.
func IncConsumerProcessed(consumer string, ok bool) {
	result := resultSuccess
	if !ok {
		result = resultError
	}
	if consumerProcessed != nil {
		consumerProcessed.WithLabelValues(consumer, result).Inc()
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

// IncStoreWrite increments the durable store write counter.
func IncStoreWrite(ok bool) {
	result := resultSuccess
	if !ok {
		result = resultError
	}
	if storeWrites != nil {
		storeWrites.WithLabelValues(result).Inc()
	}
}

// IncStoreDropped counts a store write dropped because the queue was full.
func IncStoreDropped() {
	if storeDropped != nil {
		storeDropped.Inc()
	}
}

// IncAlertEmitted increments the alert counter.
func IncAlertEmitted(alertType, severity string) {
	if alertsEmitted != nil {
		alertsEmitted.WithLabelValues(alertType, severity).Inc()
	}
}

// IncDeadLetter increments the per-consumer dead-letter counter.
func IncDeadLetter(consumer string) {
	if deadLetters != nil {
		deadLetters.WithLabelValues(consumer).Inc()
	}
}

// ObserveExport records a report export by format.
func ObserveExport(format string, ok bool, duration time.Duration) {
	result := resultSuccess
	if !ok {
		result = resultError
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}
