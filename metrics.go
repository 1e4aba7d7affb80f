package rtkernel

import (
	"sync"
	"sync/atomic"
)

// Metrics tracks runtime statistics for a Kernel. It is optional — see
// WithMetrics — and every method is safe to call from any goroutine,
// since the dispatcher only ever writes to it through the recordX
// helpers below while external callers only read snapshots via Snapshot.
type Metrics struct {
	dispatchCount atomic.Uint64
	tickCount     atomic.Uint64

	sleepOvershoot distMetrics // ticks a Sleep overran its requested duration by
	mutexWait      distMetrics // ticks a task spent blocked in LockMutex
}

// distMetrics tracks a streaming distribution using the P-Square
// algorithm, the same O(1) percentile estimator the ancestral event loop
// used for latency tracking — here repurposed for tick-denominated
// durations instead of wall-clock ones.
type distMetrics struct {
	mu      sync.Mutex
	psquare *pSquareMultiQuantile
}

func (d *distMetrics) record(v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.psquare == nil {
		d.psquare = newPSquareMultiQuantile(0.50, 0.90, 0.99)
	}
	d.psquare.Update(v)
}

// DistSnapshot is a point-in-time read of a distMetrics.
type DistSnapshot struct {
	Count int
	Mean  float64
	P50   float64
	P90   float64
	P99   float64
	Max   float64
}

func (d *distMetrics) snapshot() DistSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.psquare == nil {
		return DistSnapshot{}
	}
	return DistSnapshot{
		Count: d.psquare.Count(),
		Mean:  d.psquare.Mean(),
		P50:   d.psquare.Quantile(0),
		P90:   d.psquare.Quantile(1),
		P99:   d.psquare.Quantile(2),
		Max:   d.psquare.Max(),
	}
}

func newMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) recordTicks(n uint64) {
	m.tickCount.Add(n)
}

func (m *Metrics) recordDispatch() {
	m.dispatchCount.Add(1)
}

func (m *Metrics) recordSleepOvershoot(ticks int) {
	if ticks < 0 {
		ticks = 0
	}
	m.sleepOvershoot.record(float64(ticks))
}

func (m *Metrics) recordMutexWait(ticks int) {
	if ticks < 0 {
		ticks = 0
	}
	m.mutexWait.record(float64(ticks))
}

// Snapshot is a point-in-time copy of a Kernel's metrics.
type Snapshot struct {
	Dispatches     uint64
	Ticks          uint64
	SleepOvershoot DistSnapshot
	MutexWait      DistSnapshot
}

// Snapshot returns a copy of the kernel's current metrics.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Dispatches:     m.dispatchCount.Load(),
		Ticks:          m.tickCount.Load(),
		SleepOvershoot: m.sleepOvershoot.snapshot(),
		MutexWait:      m.mutexWait.snapshot(),
	}
}
