package rtkernel

import (
	"sync/atomic"
	"time"
)

// defaultTickPeriod is the simulator's default quantum, a stand-in for the
// hardware timer top value on a typical microcontroller target (~10ms).
const defaultTickPeriod = 10 * time.Millisecond

// TickSource is the kernel's external timer collaborator: a periodic
// hardware timer delivering a tick interrupt at a fixed period. A
// TickSource only needs to accumulate pending ticks; the dispatcher drains
// them in a single batch rather than waking the dispatcher on every interrupt.
type TickSource interface {
	// Ticks returns a channel that receives a value once per elapsed tick.
	// The dispatcher drains it opportunistically; a TickSource must not
	// block sending — buffer or drop as appropriate for overrun.
	Ticks() <-chan struct{}
	// Pending drains and returns the number of ticks accumulated since the
	// last call, the way a hardware timer ISR accumulates a tick count for
	// the scheduler to consume in one pass.
	Pending() uint64
	// Stop releases any resources (e.g. a time.Ticker).
	Stop()
}

// timerTickSource is a TickSource driven by a real time.Ticker. This is the
// production default — see NewManualTickSource for the deterministic,
// test-oriented alternative.
type timerTickSource struct {
	ticker *time.Ticker
	count  atomic.Uint64
	ch     chan struct{}
	done   chan struct{}
}

// NewTimerTickSource creates a TickSource backed by a real-time ticker
// firing every period. This is the kernel's default TickSource.
func NewTimerTickSource(period time.Duration) TickSource {
	t := &timerTickSource{
		ticker: time.NewTicker(period),
		ch:     make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *timerTickSource) run() {
	for {
		select {
		case <-t.ticker.C:
			t.count.Add(1)
			select {
			case t.ch <- struct{}{}:
			default:
			}
		case <-t.done:
			return
		}
	}
}

func (t *timerTickSource) Ticks() <-chan struct{} { return t.ch }

func (t *timerTickSource) Pending() uint64 { return t.count.Swap(0) }

func (t *timerTickSource) Stop() {
	t.ticker.Stop()
	close(t.done)
}

// manualTickSource is a TickSource a test drives explicitly via Advance,
// giving deterministic control over sleep/wake ordering without real-time
// flakiness — useful for scenario tests covering sleep ordering and
// priority inheritance under a controlled schedule.
type manualTickSource struct {
	count atomic.Uint64
	ch    chan struct{}
}

// NewManualTickSource creates a TickSource with no autonomous timer; call
// Advance to simulate elapsed ticks.
func NewManualTickSource() *ManualTickSource {
	return &ManualTickSource{inner: &manualTickSource{ch: make(chan struct{}, 1)}}
}

// ManualTickSource is the exported handle for a manually-driven TickSource.
type ManualTickSource struct {
	inner *manualTickSource
}

// Advance records n elapsed ticks and wakes the dispatcher if it is idle.
func (m *ManualTickSource) Advance(n uint64) {
	if n == 0 {
		return
	}
	m.inner.count.Add(n)
	select {
	case m.inner.ch <- struct{}{}:
	default:
	}
}

// TickSource returns the underlying TickSource for passing to WithTickSource.
func (m *ManualTickSource) TickSource() TickSource { return m.inner }

func (t *manualTickSource) Ticks() <-chan struct{} { return t.ch }
func (t *manualTickSource) Pending() uint64        { return t.count.Swap(0) }
func (t *manualTickSource) Stop()                  {}
