package metrics

import (
	"sync/atomic"
	"time"
)

const (
	// BucketCount is the number of latency histogram buckets.
	BucketCount   = 8
	cacheLineSize = 64
)

type histogram struct {
	buckets [BucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Config selects which instruments record.
type Config struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// Registry holds a fixed table of counters and latency histograms indexed by
// metric ID. IDs outside [0, size) are ignored.
type Registry struct {
	enabled       bool
	enableLatency bool
	counters      []paddedCounter
	histograms    []histogram
	latency       []bool
}

// Snapshot is a point-in-time copy of the registry.
type Snapshot struct {
	Counters   map[int]uint64
	Histograms map[int][]uint64
}

// New returns a registry with size counters. latencyIDs lists the IDs that
// also record a histogram.
func New(cfg Config, size int, latencyIDs ...int) *Registry {
	if size < 0 {
		size = 0
	}
	r := &Registry{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
		counters:      make([]paddedCounter, size),
		histograms:    make([]histogram, size),
		latency:       make([]bool, size),
	}
	for _, id := range latencyIDs {
		if id >= 0 && id < size {
			r.latency[id] = true
		}
	}
	return r
}

// Enabled reports whether counters record.
func (r *Registry) Enabled() bool {
	return r != nil && r.enabled
}

// LatencyEnabled reports whether histograms record.
func (r *Registry) LatencyEnabled() bool {
	return r != nil && r.enableLatency
}

// Inc adds one to counter id.
func (r *Registry) Inc(id int) {
	if r == nil || !r.enabled || id < 0 || id >= len(r.counters) {
		return
	}
	atomic.AddUint64(&r.counters[id].value, 1)
}

// Observe records d in the histogram for id.
func (r *Registry) Observe(id int, d time.Duration) {
	if r == nil || !r.enableLatency || id < 0 || id >= len(r.histograms) || !r.latency[id] {
		return
	}
	atomic.AddUint64(&r.histograms[id].buckets[BucketIndex(d)], 1)
}

// Value returns the current value of counter id.
func (r *Registry) Value(id int) uint64 {
	if r == nil || id < 0 || id >= len(r.counters) {
		return 0
	}
	return atomic.LoadUint64(&r.counters[id].value)
}

// Snapshot copies every counter and, when latency is enabled, every
// histogram. A disabled registry yields empty maps.
func (r *Registry) Snapshot() Snapshot {
	if r == nil || !r.enabled {
		return Snapshot{
			Counters:   map[int]uint64{},
			Histograms: map[int][]uint64{},
		}
	}

	s := Snapshot{
		Counters:   make(map[int]uint64, len(r.counters)),
		Histograms: make(map[int][]uint64),
	}
	for id := range r.counters {
		s.Counters[id] = atomic.LoadUint64(&r.counters[id].value)
	}
	if r.enableLatency {
		for id, on := range r.latency {
			if !on {
				continue
			}
			buckets := make([]uint64, BucketCount)
			for i := 0; i < BucketCount; i++ {
				buckets[i] = atomic.LoadUint64(&r.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}
	return s
}

// BucketIndex maps d to its histogram bucket.
func BucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
