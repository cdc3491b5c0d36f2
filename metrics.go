package graphid

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    allocations *prometheus.CounterVec
//	    renewals    prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordAllocation(kind graphid.Kind, d time.Duration, err error) {
//	    p.allocations.WithLabelValues(kind.String()).Inc()
//	}
type MetricsCollector interface {
	// RecordAllocation is called after each NewID call.
	// duration is the total time taken, err is nil if successful.
	RecordAllocation(kind Kind, duration time.Duration, err error)

	// RecordRenewal is called after each block renewal, including renewals
	// started early by prefetching.
	RecordRenewal(partition, namespace uint32, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAllocation(Kind, time.Duration, error)        {}
func (NoopMetricsCollector) RecordRenewal(uint32, uint32, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AllocationCount      atomic.Int64
	AllocationErrors     atomic.Int64
	AllocationTotalNanos atomic.Int64
	RenewalCount         atomic.Int64
	RenewalErrors        atomic.Int64
	RenewalTotalNanos    atomic.Int64
	RenewalMaxNanos      atomic.Int64
}

// RecordAllocation implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAllocation(_ Kind, duration time.Duration, err error) {
	b.AllocationCount.Add(1)
	b.AllocationTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AllocationErrors.Add(1)
	}
}

// RecordRenewal implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRenewal(_, _ uint32, duration time.Duration, err error) {
	b.RenewalCount.Add(1)
	b.RenewalTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RenewalErrors.Add(1)
	}
	for {
		cur := b.RenewalMaxNanos.Load()
		if duration.Nanoseconds() <= cur || b.RenewalMaxNanos.CompareAndSwap(cur, duration.Nanoseconds()) {
			return
		}
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AllocationCount:    b.AllocationCount.Load(),
		AllocationErrors:   b.AllocationErrors.Load(),
		AllocationAvgNanos: avg(b.AllocationTotalNanos.Load(), b.AllocationCount.Load()),
		RenewalCount:       b.RenewalCount.Load(),
		RenewalErrors:      b.RenewalErrors.Load(),
		RenewalAvgNanos:    avg(b.RenewalTotalNanos.Load(), b.RenewalCount.Load()),
		RenewalMaxNanos:    b.RenewalMaxNanos.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AllocationCount    int64
	AllocationErrors   int64
	AllocationAvgNanos int64
	RenewalCount       int64
	RenewalErrors      int64
	RenewalAvgNanos    int64
	RenewalMaxNanos    int64
}
