// Package rtkernel simulates a small preemptive/cooperative priority-scheduled
// real-time kernel for a single (virtual) core, in the style of a classroom
// AVR RTOS: a fixed set of tasks, one-shot events, reentrant mutexes with
// priority inheritance, and blocking sleeps driven by a periodic tick.
//
// # Architecture
//
// The kernel is built around a [Kernel] core that owns three fixed-capacity
// tables (tasks, events, mutexes) and a single dispatcher goroutine. Tasks
// are themselves goroutines, but only one ever runs at a time: every syscall
// a task makes traps into the dispatcher and blocks the calling goroutine
// until it is dispatched again — the channel-based stand-in for an
// assembly context switch under a global interrupt mask. See [Task] for
// the trap-like entry point application code uses.
//
// # Execution model
//
// [Kernel.Run] is the dispatcher: it never returns on its own, mirroring a
// hardware kernel's main loop. It only returns when its context is canceled
// or [Kernel.Shutdown] is called, both of which exist purely so tests (and
// embedding programs that need a clean exit) have a way to stop a simulated
// kernel; production callers pass context.Background().
//
// Within each dispatch, ticks delivered by the configured [TickSource] are
// drained in a single batch and applied to every sleeping task before the
// next syscall is serviced, exactly as a real tick ISR's accumulated count
// would be.
//
// # Usage
//
//	k, err := rtkernel.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	k.Spawn(func(t *rtkernel.Task) {
//	    for {
//	        t.Sleep(10)
//	        fmt.Println("tick")
//	    }
//	}, 5, 0)
//
//	if err := k.Run(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
// # Error handling
//
// Every syscall method returns an error wrapping [*KernelError], whose
// [ErrorKind] follows a last-error-code taxonomy.
// [Kernel.LastError] additionally exposes the most recent kind for callers
// that want literal last-error-code semantics.
package rtkernel
