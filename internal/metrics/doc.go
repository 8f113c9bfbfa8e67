// Package metrics defines the Prometheus instrumentation for the
// receiver: frame counters, demodulation chain throughput, AGC state
// and session lifecycle gauges.
package metrics
