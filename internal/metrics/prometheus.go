package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the AM receiver
type Metrics struct {
	// Frame metrics
	DataFramesReceived     prometheus.Counter
	MetadataFramesReceived prometheus.Counter
	ProtocolErrors         prometheus.Counter
	SequenceGaps           prometheus.Counter
	FrameSamples           prometheus.Histogram

	// DSP metrics
	SamplesProcessed prometheus.Counter
	SamplesEmitted   prometheus.Counter
	AGCGain          prometheus.Gauge
	AGCLevel         prometheus.Gauge

	// Output metrics
	SinkFlushes prometheus.Counter

	// Session metrics
	SessionState    prometheus.Gauge
	CenterFrequency prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Frame metrics
		DataFramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "amrx_data_frames_received_total",
			Help: "Total number of I/Q data frames received",
		}),
		MetadataFramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "amrx_metadata_frames_received_total",
			Help: "Total number of metadata frames received",
		}),
		ProtocolErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "amrx_protocol_errors_total",
			Help: "Total number of frame parse and validation errors",
		}),
		SequenceGaps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "amrx_sequence_gaps_total",
			Help: "Total number of observed frame sequence discontinuities",
		}),
		FrameSamples: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "amrx_frame_samples",
			Help:    "Number of I/Q sample pairs per data frame",
			Buckets: prometheus.ExponentialBuckets(256, 2, 12), // 256 to ~1M samples
		}),

		// DSP metrics
		SamplesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "amrx_samples_processed_total",
			Help: "Total number of I/Q sample pairs through the demodulation chain",
		}),
		SamplesEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "amrx_samples_emitted_total",
			Help: "Total number of decimated audio samples emitted",
		}),
		AGCGain: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "amrx_agc_gain",
			Help: "Current automatic gain control gain factor",
		}),
		AGCLevel: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "amrx_agc_level",
			Help: "Current smoothed signal level seen by the AGC",
		}),

		// Output metrics
		SinkFlushes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "amrx_sink_flushes_total",
			Help: "Total number of audio buffer flushes to the output sink",
		}),
		// Session metrics
		SessionState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "amrx_session_state",
			Help: "Current session state (0=connecting, 1=header exchange, 2=streaming, 3=closed)",
		}),
		CenterFrequency: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "amrx_center_frequency_hz",
			Help: "Tuned center frequency reported by the server",
		}),
	}
}

// RecordDataFrame records a received I/Q data frame
func (m *Metrics) RecordDataFrame(samples int) {
	m.DataFramesReceived.Inc()
	m.FrameSamples.Observe(float64(samples))
}

// RecordMetadataFrame increments the metadata frames counter
func (m *Metrics) RecordMetadataFrame() {
	m.MetadataFramesReceived.Inc()
}

// RecordProtocolError increments the protocol errors counter
func (m *Metrics) RecordProtocolError() {
	m.ProtocolErrors.Inc()
}

// RecordSequenceGap increments the sequence gap counter
func (m *Metrics) RecordSequenceGap() {
	m.SequenceGaps.Inc()
}

// RecordSamples records sample pairs in and audio samples out of the chain
func (m *Metrics) RecordSamples(processed, emitted int) {
	m.SamplesProcessed.Add(float64(processed))
	m.SamplesEmitted.Add(float64(emitted))
}

// SetAGCState sets the current AGC gain and level gauges
func (m *Metrics) SetAGCState(gain, level float64) {
	m.AGCGain.Set(gain)
	m.AGCLevel.Set(level)
}

// RecordSinkFlush increments the sink flushes counter
func (m *Metrics) RecordSinkFlush() {
	m.SinkFlushes.Inc()
}

// SetSessionState sets the session state gauge
func (m *Metrics) SetSessionState(state int) {
	m.SessionState.Set(float64(state))
}

// SetCenterFrequency sets the tuned center frequency gauge
func (m *Metrics) SetCenterFrequency(hz float64) {
	m.CenterFrequency.Set(hz)
}
