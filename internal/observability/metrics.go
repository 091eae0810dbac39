// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the indexer.
type Metrics struct {
	// Ingestion metrics
	BlocksProcessed     prometheus.Counter
	BlockRetries        prometheus.Counter
	BlockDuration       prometheus.Histogram
	SwapsDecoded        *prometheus.CounterVec
	SwapsInserted       *prometheus.CounterVec
	SwapsDropped        *prometheus.CounterVec
	CurveStatesUpserted prometheus.Counter
	ExportErrors        prometheus.Counter

	// Scheduler metrics
	LatestSlot      prometheus.Gauge
	LastIndexedSlot prometheus.Gauge
	SlotLag         prometheus.Gauge
	SlotsSkipped    prometheus.Counter
	FetchesInFlight prometheus.Gauge

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCErrors      *prometheus.CounterVec
	WSReconnects   prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Health metrics
	LastSuccessfulBlock prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "swap_indexer"
	}
	f := promauto.With(reg)

	return &Metrics{
		BlocksProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "blocks_processed_total",
			Help:      "Total number of blocks committed",
		}),
		BlockRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "block_retries_total",
			Help:      "Total number of block transaction retries",
		}),
		BlockDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "block_duration_seconds",
			Help:      "Time to decode and commit one block",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		SwapsDecoded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "swaps_decoded_total",
			Help:      "Total number of swap events decoded",
		}, []string{"venue"}),
		SwapsInserted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "swaps_inserted_total",
			Help:      "Total number of swaps newly stored",
		}, []string{"venue"}),
		SwapsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "swaps_dropped_total",
			Help:      "Total number of decoded swaps not stored",
		}, []string{"reason"}),
		CurveStatesUpserted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "curve_states_upserted_total",
			Help:      "Total number of bonding curve state writes",
		}),
		ExportErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "export_errors_total",
			Help:      "Total number of failed analytics exports",
		}),

		LatestSlot: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "latest_slot",
			Help:      "Highest chain slot observed",
		}),
		LastIndexedSlot: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "last_indexed_slot",
			Help:      "Last slot committed to the database",
		}),
		SlotLag: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "slot_lag",
			Help:      "Distance between the chain tip and the last indexed slot",
		}),
		SlotsSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "slots_skipped_total",
			Help:      "Total number of slots without a block",
		}),
		FetchesInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "fetches_in_flight",
			Help:      "Number of block fetches currently running",
		}),

		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "RPC call latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		RPCErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "errors_total",
			Help:      "Total number of RPC errors by kind",
		}, []string{"method", "kind"}),
		WSReconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "ws_reconnects_total",
			Help:      "Total number of websocket reconnects",
		}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		CacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Dimension cache hits",
		}, []string{"dimension"}),
		CacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Dimension cache misses",
		}, []string{"dimension"}),

		LastSuccessfulBlock: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_block_timestamp",
			Help:      "Unix time of the last committed block",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", prometheus.DefaultRegisterer)

// RecordBlockProcessed records a committed block.
func RecordBlockProcessed(slot uint64, d time.Duration) {
	DefaultMetrics.BlocksProcessed.Inc()
	DefaultMetrics.BlockDuration.Observe(d.Seconds())
	DefaultMetrics.LastIndexedSlot.Set(float64(slot))
	DefaultMetrics.LastSuccessfulBlock.SetToCurrentTime()
}

// RecordBlockRetry increments the block retry counter.
func RecordBlockRetry() {
	DefaultMetrics.BlockRetries.Inc()
}

// RecordSwapsDecoded adds n decoded swaps for venue.
func RecordSwapsDecoded(venue string, n int) {
	DefaultMetrics.SwapsDecoded.WithLabelValues(venue).Add(float64(n))
}

// RecordSwapsInserted adds n stored swaps for venue.
func RecordSwapsInserted(venue string, n int) {
	DefaultMetrics.SwapsInserted.WithLabelValues(venue).Add(float64(n))
}

// RecordSwapsDropped adds n swaps dropped for reason.
func RecordSwapsDropped(reason string, n int) {
	if n == 0 {
		return
	}
	DefaultMetrics.SwapsDropped.WithLabelValues(reason).Add(float64(n))
}

// RecordCurveStatesUpserted adds n curve state writes.
func RecordCurveStatesUpserted(n int) {
	DefaultMetrics.CurveStatesUpserted.Add(float64(n))
}

// RecordExportError increments the analytics export error counter.
func RecordExportError() {
	DefaultMetrics.ExportErrors.Inc()
}

// UpdateLatestSlot sets the chain tip gauge.
func UpdateLatestSlot(slot uint64) {
	DefaultMetrics.LatestSlot.Set(float64(slot))
}

// UpdateSlotLag sets the lag gauge.
func UpdateSlotLag(lag uint64) {
	DefaultMetrics.SlotLag.Set(float64(lag))
}

// RecordSlotSkipped increments the skipped slot counter.
func RecordSlotSkipped() {
	DefaultMetrics.SlotsSkipped.Inc()
}

// AddFetchesInFlight adjusts the in-flight fetch gauge by delta.
func AddFetchesInFlight(delta int) {
	DefaultMetrics.FetchesInFlight.Add(float64(delta))
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordRPCError records a classified RPC error.
func RecordRPCError(method, kind string) {
	DefaultMetrics.RPCErrors.WithLabelValues(method, kind).Inc()
}

// RecordWSReconnect increments the websocket reconnect counter.
func RecordWSReconnect() {
	DefaultMetrics.WSReconnects.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordCacheLookup records hits and misses for a dimension cache.
func RecordCacheLookup(dimension string, hits, misses int) {
	if hits > 0 {
		DefaultMetrics.CacheHits.WithLabelValues(dimension).Add(float64(hits))
	}
	if misses > 0 {
		DefaultMetrics.CacheMisses.WithLabelValues(dimension).Add(float64(misses))
	}
}
