package metrics

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Metrics holds the resampling engine counters
type Metrics struct {
	startTime time.Time

	// Resampling passes
	passesTotal      atomic.Int64
	passesFailed     atomic.Int64
	passLatencySum   atomic.Int64 // microseconds
	passLatencyCount atomic.Int64

	// Pass contents
	bucketsTotal        atomic.Int64
	samplesTotal        atomic.Int64
	samplesSkippedTotal atomic.Int64
	cellsWrittenTotal   atomic.Int64

	// Errors
	conflictsTotal    atomic.Int64
	configErrorsTotal atomic.Int64

	// Sources
	sourceReadsTotal  atomic.Int64
	sourceBytesTotal  atomic.Int64
	sourceErrorsTotal atomic.Int64

	// Batch runs
	flightsProcessed atomic.Int64
	flightsFailed    atomic.Int64
	exportsWritten   atomic.Int64

	logger zerolog.Logger
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			startTime: time.Now(),
			logger:    zerolog.Nop(),
		}
	})
	return instance
}

// Init initializes the metrics with a logger
func Init(logger zerolog.Logger) *Metrics {
	m := Get()
	m.logger = logger.With().Str("component", "metrics").Logger()
	m.logger.Debug().Msg("Metrics collector initialized")
	return m
}

// Pass metrics
func (m *Metrics) IncPasses()                  { m.passesTotal.Add(1) }
func (m *Metrics) IncPassesFailed()            { m.passesFailed.Add(1) }
func (m *Metrics) IncBuckets(count int64)      { m.bucketsTotal.Add(count) }
func (m *Metrics) IncSamples(count int64)      { m.samplesTotal.Add(count) }
func (m *Metrics) IncSamplesSkipped(n int64)   { m.samplesSkippedTotal.Add(n) }
func (m *Metrics) IncCellsWritten(count int64) { m.cellsWrittenTotal.Add(count) }

// RecordPassLatency records a resampling pass duration in microseconds
func (m *Metrics) RecordPassLatency(durationMicros int64) {
	m.passLatencySum.Add(durationMicros)
	m.passLatencyCount.Add(1)
}

// Error metrics
func (m *Metrics) IncConflicts()    { m.conflictsTotal.Add(1) }
func (m *Metrics) IncConfigErrors() { m.configErrorsTotal.Add(1) }

// Source metrics
func (m *Metrics) IncSourceReads()            { m.sourceReadsTotal.Add(1) }
func (m *Metrics) IncSourceBytes(bytes int64) { m.sourceBytesTotal.Add(bytes) }
func (m *Metrics) IncSourceErrors()           { m.sourceErrorsTotal.Add(1) }

// Batch metrics
func (m *Metrics) IncFlightsProcessed() { m.flightsProcessed.Add(1) }
func (m *Metrics) IncFlightsFailed()    { m.flightsFailed.Add(1) }
func (m *Metrics) IncExportsWritten()   { m.exportsWritten.Add(1) }

// Snapshot returns all metrics as a map (logged by the CLI on exit)
func (m *Metrics) Snapshot() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	var avgPassMicros float64
	if count := m.passLatencyCount.Load(); count > 0 {
		avgPassMicros = float64(m.passLatencySum.Load()) / float64(count)
	}

	return map[string]interface{}{
		"uptime_seconds":     time.Since(m.startTime).Seconds(),
		"goroutines":         runtime.NumGoroutine(),
		"memory_alloc_bytes": memStats.Alloc,

		"passes_total":         m.passesTotal.Load(),
		"passes_failed":        m.passesFailed.Load(),
		"pass_latency_avg_us":  avgPassMicros,
		"buckets_total":        m.bucketsTotal.Load(),
		"samples_total":        m.samplesTotal.Load(),
		"samples_skipped":      m.samplesSkippedTotal.Load(),
		"cells_written_total":  m.cellsWrittenTotal.Load(),
		"conflicts_total":      m.conflictsTotal.Load(),
		"config_errors_total":  m.configErrorsTotal.Load(),
		"source_reads_total":   m.sourceReadsTotal.Load(),
		"source_bytes_total":   m.sourceBytesTotal.Load(),
		"source_errors_total":  m.sourceErrorsTotal.Load(),
		"flights_processed":    m.flightsProcessed.Load(),
		"flights_failed":       m.flightsFailed.Load(),
		"exports_written":      m.exportsWritten.Load(),
	}
}

// PrometheusFormat returns metrics in Prometheus text exposition format,
// suitable for a node_exporter textfile collector
func (m *Metrics) PrometheusFormat() string {
	var b []byte
	b = appendGauge(b, "flightstats_uptime_seconds", "Time since the process started", time.Since(m.startTime).Seconds())

	b = appendCounter(b, "flightstats_passes_total", "Resampling passes started", m.passesTotal.Load())
	b = appendCounter(b, "flightstats_passes_failed_total", "Resampling passes that returned an error", m.passesFailed.Load())
	b = appendCounter(b, "flightstats_pass_latency_microseconds_sum", "Total time spent in resampling passes", m.passLatencySum.Load())
	b = appendCounter(b, "flightstats_pass_latency_microseconds_count", "Number of timed resampling passes", m.passLatencyCount.Load())
	b = appendCounter(b, "flightstats_buckets_total", "Buckets produced", m.bucketsTotal.Load())
	b = appendCounter(b, "flightstats_samples_total", "Samples fed into accumulators", m.samplesTotal.Load())
	b = appendCounter(b, "flightstats_samples_skipped_total", "Non-finite samples skipped", m.samplesSkippedTotal.Load())
	b = appendCounter(b, "flightstats_cells_written_total", "Cells written into output tables", m.cellsWrittenTotal.Load())
	b = appendCounter(b, "flightstats_conflicts_total", "Conflicting writes into output tables", m.conflictsTotal.Load())
	b = appendCounter(b, "flightstats_config_errors_total", "Rejected metric specifications", m.configErrorsTotal.Load())

	b = append(b, "# HELP flightstats_source_events_total Source reads by outcome\n"...)
	b = append(b, "# TYPE flightstats_source_events_total counter\n"...)
	b = appendMetricWithLabel(b, "flightstats_source_events_total", "event", "read", float64(m.sourceReadsTotal.Load()))
	b = appendMetricWithLabel(b, "flightstats_source_events_total", "event", "error", float64(m.sourceErrorsTotal.Load()))
	b = appendCounter(b, "flightstats_source_bytes_total", "Bytes read from sample sources", m.sourceBytesTotal.Load())

	b = append(b, "# HELP flightstats_flights_total Flights handled by the batch runner\n"...)
	b = append(b, "# TYPE flightstats_flights_total counter\n"...)
	b = appendMetricWithLabel(b, "flightstats_flights_total", "status", "ok", float64(m.flightsProcessed.Load()))
	b = appendMetricWithLabel(b, "flightstats_flights_total", "status", "failed", float64(m.flightsFailed.Load()))
	b = appendCounter(b, "flightstats_exports_written_total", "Export files written", m.exportsWritten.Load())

	return string(b)
}

func appendGauge(b []byte, name, help string, value float64) []byte {
	b = append(b, "# HELP "...)
	b = append(b, name...)
	b = append(b, ' ')
	b = append(b, help...)
	b = append(b, "\n# TYPE "...)
	b = append(b, name...)
	b = append(b, " gauge\n"...)
	return appendMetric(b, name, value)
}

func appendCounter(b []byte, name, help string, value int64) []byte {
	b = append(b, "# HELP "...)
	b = append(b, name...)
	b = append(b, ' ')
	b = append(b, help...)
	b = append(b, "\n# TYPE "...)
	b = append(b, name...)
	b = append(b, " counter\n"...)
	return appendMetric(b, name, float64(value))
}

// Helper functions for Prometheus format
func appendMetric(b []byte, name string, value float64) []byte {
	b = append(b, name...)
	b = append(b, ' ')
	b = appendFloat(b, value)
	b = append(b, '\n')
	return b
}

func appendMetricWithLabel(b []byte, name, labelName, labelValue string, value float64) []byte {
	b = append(b, name...)
	b = append(b, '{')
	b = append(b, labelName...)
	b = append(b, '=', '"')
	b = append(b, labelValue...)
	b = append(b, '"', '}', ' ')
	b = appendFloat(b, value)
	b = append(b, '\n')
	return b
}

func appendFloat(b []byte, v float64) []byte {
	if v == float64(int64(v)) {
		return appendInt(b, int64(v))
	}
	// up to 6 decimal places
	intPart := int64(v)
	fracPart := int64((v - float64(intPart)) * 1000000)
	if fracPart < 0 {
		fracPart = -fracPart
	}
	if v < 0 && intPart == 0 {
		b = append(b, '-')
	}
	b = appendInt(b, intPart)
	b = append(b, '.')
	for pad := int64(100000); pad > 1 && fracPart < pad; pad /= 10 {
		b = append(b, '0')
	}
	return appendInt(b, fracPart)
}

func appendInt(b []byte, v int64) []byte {
	if v < 0 {
		b = append(b, '-')
		v = -v
	}
	if v == 0 {
		return append(b, '0')
	}
	var digits [20]byte
	i := len(digits)
	for v > 0 {
		i--
		digits[i] = byte('0' + v%10)
		v /= 10
	}
	return append(b, digits[i:]...)
}
