package dmxp

import "sync/atomic"

// MetricsProvider tracks ring-level counters.
type MetricsProvider interface {
	IncrementSent(count uint64)
	IncrementReceived(count uint64)
	IncrementBatches(count uint64)
	AddSpinIterations(count uint64)
	IncrementFull(count uint64)
	IncrementEmpty(count uint64)
	IncrementTimeouts(count uint64)
	IncrementCorruptions(count uint64)
	SetActiveProducers(count uint64)
	SetActiveConsumers(count uint64)
	GetStats() MetricsSnapshot
}

// MetricsSnapshot is a point-in-time view of a Ring's (or Region-wide
// aggregate's) metrics.
type MetricsSnapshot struct {
	TotalSent        uint64
	TotalReceived     uint64
	TotalBatches      uint64
	SpinIterations    uint64
	FullCount         uint64
	EmptyCount        uint64
	TimeoutCount      uint64
	CorruptionCount   uint64
	ActiveProducers   uint64
	ActiveConsumers   uint64
}

// AtomicMetrics implements MetricsProvider with plain atomic counters.
type AtomicMetrics struct {
	totalSent      uint64
	totalReceived  uint64
	totalBatches   uint64
	spinIterations uint64
	fullCount      uint64
	emptyCount     uint64
	timeoutCount   uint64
	corruptions    uint64
	activeProducers uint64
	activeConsumers uint64
}

var _ MetricsProvider = (*AtomicMetrics)(nil)

// NewAtomicMetrics returns a zeroed AtomicMetrics.
func NewAtomicMetrics() *AtomicMetrics {
	return &AtomicMetrics{}
}

func (m *AtomicMetrics) IncrementSent(count uint64)     { atomic.AddUint64(&m.totalSent, count) }
func (m *AtomicMetrics) IncrementReceived(count uint64) { atomic.AddUint64(&m.totalReceived, count) }
func (m *AtomicMetrics) IncrementBatches(count uint64)  { atomic.AddUint64(&m.totalBatches, count) }
func (m *AtomicMetrics) AddSpinIterations(count uint64) { atomic.AddUint64(&m.spinIterations, count) }
func (m *AtomicMetrics) IncrementFull(count uint64)     { atomic.AddUint64(&m.fullCount, count) }
func (m *AtomicMetrics) IncrementEmpty(count uint64)    { atomic.AddUint64(&m.emptyCount, count) }
func (m *AtomicMetrics) IncrementTimeouts(count uint64) { atomic.AddUint64(&m.timeoutCount, count) }
func (m *AtomicMetrics) IncrementCorruptions(count uint64) {
	atomic.AddUint64(&m.corruptions, count)
}
func (m *AtomicMetrics) SetActiveProducers(count uint64) { atomic.StoreUint64(&m.activeProducers, count) }
func (m *AtomicMetrics) SetActiveConsumers(count uint64) { atomic.StoreUint64(&m.activeConsumers, count) }

func (m *AtomicMetrics) GetStats() MetricsSnapshot {
	return MetricsSnapshot{
		TotalSent:       atomic.LoadUint64(&m.totalSent),
		TotalReceived:   atomic.LoadUint64(&m.totalReceived),
		TotalBatches:    atomic.LoadUint64(&m.totalBatches),
		SpinIterations:  atomic.LoadUint64(&m.spinIterations),
		FullCount:       atomic.LoadUint64(&m.fullCount),
		EmptyCount:      atomic.LoadUint64(&m.emptyCount),
		TimeoutCount:    atomic.LoadUint64(&m.timeoutCount),
		CorruptionCount: atomic.LoadUint64(&m.corruptions),
		ActiveProducers: atomic.LoadUint64(&m.activeProducers),
		ActiveConsumers: atomic.LoadUint64(&m.activeConsumers),
	}
}
