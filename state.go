package rtkernel

import (
	"sync/atomic"
)

// TaskState is a task's position in the kernel's state machine.
//
// State Machine:
//
//	DEAD -> READY                     [CreateTask]
//	READY -> RUNNING                  [dispatch]
//	RUNNING -> READY                   [yield / preempted by higher-priority wakeup / tick with no change]
//	RUNNING -> SLEEPING                [Sleep]
//	SLEEPING -> READY                  [tick handler, remaining ticks <= 0]
//	RUNNING -> WAIT_EVENT              [WaitEvent, count == 0]
//	WAIT_EVENT -> READY                [matching SignalEvent]
//	RUNNING -> WAIT_MUTEX              [LockMutex, owned by another task]
//	WAIT_MUTEX -> READY                [selected by UnlockMutex's handoff]
//	* -> SUSPENDED                     [Suspend; forbidden while owning a mutex, or from DEAD/SUSPENDED]
//	SUSPENDED -> lastState             [Resume]
//	* -> DEAD                          [Terminate, after releasing owned mutexes]
//
// Unlike [KernelState], task state is mutated only by the kernel's single
// dispatcher goroutine, so a plain field suffices — no CAS is needed because
// the dispatcher is the only writer, by construction of the trap/resume
// channel handoff that stands in for disabled-interrupt critical
// sections.
type TaskState int

const (
	// DEAD marks a free task-table slot, eligible for reuse by CreateTask.
	DEAD TaskState = iota
	// READY marks a task eligible for dispatch.
	READY
	// RUNNING marks the single task currently executing.
	RUNNING
	// SLEEPING marks a task waiting out a Task_Sleep.
	SLEEPING
	// SUSPENDED marks a task parked by Suspend; lastState holds what to
	// restore on Resume.
	SUSPENDED
	// WAIT_EVENT marks a task blocked in WaitEvent.
	WAIT_EVENT
	// WAIT_MUTEX marks a task blocked in LockMutex.
	WAIT_MUTEX
)

// String returns a human-readable representation of the state.
func (s TaskState) String() string {
	switch s {
	case DEAD:
		return "DEAD"
	case READY:
		return "READY"
	case RUNNING:
		return "RUNNING"
	case SLEEPING:
		return "SLEEPING"
	case SUSPENDED:
		return "SUSPENDED"
	case WAIT_EVENT:
		return "WAIT_EVENT"
	case WAIT_MUTEX:
		return "WAIT_MUTEX"
	default:
		return "UNKNOWN"
	}
}

// KernelState represents the lifecycle of the Kernel itself, as distinct
// from any individual task's TaskState. Unlike TaskState, this genuinely
// is touched from more than one goroutine — Run() from the dispatcher
// goroutine, Shutdown() from whichever goroutine requests a stop — so it
// uses a lock-free atomic CAS state machine rather than a plain field.
type KernelState uint32

const (
	// KernelAwake indicates the kernel has been created but Run has not
	// been called.
	KernelAwake KernelState = iota
	// KernelRunning indicates the dispatcher loop is active.
	KernelRunning
	// KernelTerminating indicates Shutdown has been requested but the
	// dispatcher has not yet observed it.
	KernelTerminating
	// KernelTerminated indicates the dispatcher loop has returned.
	KernelTerminated
)

// String returns a human-readable representation of the state.
func (s KernelState) String() string {
	switch s {
	case KernelAwake:
		return "Awake"
	case KernelRunning:
		return "Running"
	case KernelTerminating:
		return "Terminating"
	case KernelTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free KernelState holder.
type fastState struct {
	v atomic.Uint32
}

func newFastState() *fastState {
	s := &fastState{}
	s.v.Store(uint32(KernelAwake))
	return s
}

// Load returns the current state atomically.
func (s *fastState) Load() KernelState {
	return KernelState(s.v.Load())
}

// Store atomically stores a new state, bypassing transition validation.
// Only used for the irreversible terminal transition.
func (s *fastState) Store(state KernelState) {
	s.v.Store(uint32(state))
}

// TryTransition attempts to atomically transition from one state to another.
func (s *fastState) TryTransition(from, to KernelState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
