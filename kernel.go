package rtkernel

import (
	"context"
	"errors"
	"sync"
)

// Standard errors.
var (
	// ErrKernelAlreadyRunning is returned when Run is called on a kernel
	// that is already running.
	ErrKernelAlreadyRunning = errors.New("rtkernel: kernel is already running")

	// ErrKernelTerminated is returned when Run is called on a kernel that
	// is terminating or has terminated, and by a repeated Shutdown call
	// that finds the dispatcher has not yet stopped. Shutdown on a kernel
	// that has already terminated returns nil.
	ErrKernelTerminated = errors.New("rtkernel: kernel has been terminated")
)

// Kernel is a single-core, priority-scheduled cooperative/preemptive
// kernel. Every task runs on its own goroutine, but only one goroutine is
// ever actually executing task code at a time — the dispatcher goroutine
// started by Run hands a baton (the resume channel) to exactly one task
// goroutine and then blocks until that task either yields it back
// voluntarily (Yield, Sleep, Suspend, Resume, the Event/Mutex calls) or
// terminates. This single-baton discipline is what stands in for the
// disabled-interrupts critical section a single-core firmware kernel would
// use for the same purpose: outside of
// the brief window between a trap arriving and the next resume being
// sent, exactly one goroutine ever touches the task/event/mutex tables.
type Kernel struct {
	opts *kernelOptions

	tasks   []*processDescriptor
	events  []*event
	mutexes []*mutex

	lastPID     PID
	lastEventID EventID
	lastMutexID MutexID
	rrCursor    int
	tickCounter uint64

	cur *processDescriptor // task currently holding the baton, nil when idle

	trap     chan *processDescriptor
	loopDone chan struct{}
	stopOnce sync.Once

	state *fastState

	mu      sync.Mutex // guards lastErr against concurrent external reads
	lastErr ErrorKind

	metrics *Metrics
	logger  Logger
}

// New creates a Kernel configured by opts. The returned Kernel has no
// tasks yet; use Spawn to seed the initial task set before calling Run.
func New(opts ...Option) (*Kernel, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	k := &Kernel{
		opts:     cfg,
		tasks:    make([]*processDescriptor, 0, cfg.maxTasks),
		events:   make([]*event, 0, cfg.maxEvents),
		mutexes:  make([]*mutex, 0, cfg.maxMutexes),
		trap:     make(chan *processDescriptor),
		loopDone: make(chan struct{}),
		state:    newFastState(),
		logger:   cfg.logger,
	}
	if cfg.metricsEnabled {
		k.metrics = newMetrics()
	}
	return k, nil
}

// Spawn creates a task before the kernel starts running. It is the
// bootstrap counterpart to Task.CreateTask, which a running task uses to
// spawn further tasks once the dispatcher is active — Spawn cannot be
// called after Run has started.
func (k *Kernel) Spawn(fn TaskFunc, pri Priority, arg int) (PID, error) {
	if k.state.Load() != KernelAwake {
		return 0, newKernelError("Spawn", ErrInvalidKernelRequest)
	}
	return k.createTask(fn, pri, arg)
}

// createTask is the table-mutating core shared by Spawn (called directly,
// before the dispatcher exists) and the reqCreateTask handler (called
// from the dispatcher goroutine once a task asks for a sibling).
func (k *Kernel) createTask(fn TaskFunc, pri Priority, arg int) (PID, error) {
	if fn == nil {
		return 0, newKernelError("CreateTask", ErrInvalidArg)
	}
	if pri < 0 || pri > k.opts.lowestPriority {
		return 0, newKernelError("CreateTask", ErrInvalidArg)
	}
	slot, ok := k.findDeadTaskSlot()
	if !ok {
		return 0, newKernelError("CreateTask", ErrMaxProcess)
	}
	k.lastPID++
	pd := &processDescriptor{
		pid:    k.lastPID,
		slot:   slot,
		pri:    pri,
		effPri: pri,
		arg:    arg,
		fn:     fn,
		state:  READY,
		resume: make(chan struct{}),
	}
	if slot == len(k.tasks) {
		k.tasks = append(k.tasks, pd)
	} else {
		k.tasks[slot] = pd
	}
	t := &Task{k: k, pd: pd}
	pd.handle = t
	go func() {
		<-pd.resume
		fn(t)
		t.Terminate()
	}()
	return pd.pid, nil
}

func (k *Kernel) findDeadTaskSlot() (int, bool) {
	for i, pd := range k.tasks {
		if pd == nil || pd.state == DEAD {
			return i, true
		}
	}
	if len(k.tasks) < k.opts.maxTasks {
		return len(k.tasks), true
	}
	return 0, false
}

func (k *Kernel) taskByPID(pid PID) *processDescriptor {
	if pid == 0 {
		return nil
	}
	for _, pd := range k.tasks {
		if pd != nil && pd.pid == pid {
			return pd
		}
	}
	return nil
}

// Run starts the dispatcher and blocks until ctx is cancelled or Shutdown
// is called. It returns ctx.Err() on context cancellation, nil on a clean
// Shutdown, and ErrKernelAlreadyRunning/ErrKernelTerminated if called at
// the wrong point in the kernel's lifecycle.
func (k *Kernel) Run(ctx context.Context) error {
	if !k.state.TryTransition(KernelAwake, KernelRunning) {
		switch k.state.Load() {
		case KernelTerminating, KernelTerminated:
			return ErrKernelTerminated
		default:
			return ErrKernelAlreadyRunning
		}
	}
	defer close(k.loopDone)
	k.logger.Info("kernel started", "tasks", len(k.tasks))

	// held is non-nil when the previous trap's request kind does not call
	// for a new scheduling decision: the same task is simply resumed
	// directly, without consulting pickNextReady, exactly as the reference
	// kernel's main loop falls through several of its switch cases with no
	// Dispatch() call at all.
	var held *processDescriptor
	for {
		select {
		case <-ctx.Done():
			k.state.Store(KernelTerminated)
			k.logger.Info("kernel stopped", "reason", "context cancelled")
			return ctx.Err()
		default:
		}
		if k.state.Load() == KernelTerminating {
			k.state.Store(KernelTerminated)
			k.logger.Info("kernel stopped", "reason", "shutdown")
			return nil
		}

		k.drainTicks()

		var pd *processDescriptor
		if held != nil {
			pd = held
			held = nil
		} else {
			pd = k.pickNextReady()
			if pd == nil {
				k.waitIdle(ctx)
				continue
			}
			pd.state = RUNNING
			if k.metrics != nil {
				k.metrics.recordDispatch()
			}
		}

		k.cur = pd
		pd.resume <- struct{}{}
		trapped := <-k.trap
		k.cur = nil
		if k.handleRequest(trapped) {
			held = trapped
		}
	}
}

// Shutdown requests that the dispatcher stop at its next opportunity, and
// blocks until it has (or ctx expires first). It is safe to call more
// than once; only the first call takes effect.
func (k *Kernel) Shutdown(ctx context.Context) error {
	var result error
	k.stopOnce.Do(func() {
		result = k.shutdownImpl(ctx)
	})
	if result == nil && k.state.Load() != KernelTerminated {
		return ErrKernelTerminated
	}
	return result
}

func (k *Kernel) shutdownImpl(ctx context.Context) error {
	for {
		cur := k.state.Load()
		if cur == KernelTerminated || cur == KernelTerminating {
			break
		}
		if cur == KernelAwake {
			// Run was never called; nothing to wait for.
			k.state.Store(KernelTerminated)
			return nil
		}
		if k.state.TryTransition(cur, KernelTerminating) {
			break
		}
	}
	select {
	case <-k.loopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitIdle blocks until there is a reason to re-scan the task table: a
// tick arrived (a sleeping task may now be due), or the context ended.
func (k *Kernel) waitIdle(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-k.opts.tickSource.Ticks():
	}
}

// drainTicks advances every SLEEPING task's remaining-tick countdown by
// however many ticks have elapsed since the last drain, waking any task
// whose countdown reaches zero. Batching the subtraction this way (rather
// than decrementing on every single tick) mirrors how a hardware timer ISR
// accumulates a tick count for the dispatcher to consume in one pass
// rather than re-entering on every interrupt.
func (k *Kernel) drainTicks() {
	n := k.opts.tickSource.Pending()
	if n == 0 {
		return
	}
	for _, pd := range k.tasks {
		if pd == nil || pd.state != SLEEPING {
			continue
		}
		if uint64(pd.sleepTicksLeft) <= n {
			overshoot := n - uint64(pd.sleepTicksLeft)
			pd.sleepTicksLeft = 0
			pd.state = READY
			if k.metrics != nil {
				k.metrics.recordSleepOvershoot(int(overshoot))
			}
		} else {
			pd.sleepTicksLeft -= int(n)
		}
	}
	k.tickCounter += n
	if k.metrics != nil {
		k.metrics.recordTicks(n)
	}
}

// pickNextReady scans the task table for the highest-priority READY task
// (lowest Priority value wins), breaking ties by round-robin rotation
// through the table rather than strict per-priority FIFO order: the scan
// starts from the slot after whichever task was last dispatched, so a
// cohort of equal-priority tasks takes turns across dispatches instead of
// one task starving the rest.
func (k *Kernel) pickNextReady() *processDescriptor {
	n := len(k.tasks)
	if n == 0 {
		return nil
	}
	best := -1
	var bestPri Priority
	for i := 0; i < n; i++ {
		idx := (k.rrCursor + i) % n
		pd := k.tasks[idx]
		if pd == nil || pd.state != READY {
			continue
		}
		if best == -1 || pd.effPri < bestPri {
			best = idx
			bestPri = pd.effPri
		}
	}
	if best == -1 {
		return nil
	}
	k.rrCursor = (best + 1) % n
	return k.tasks[best]
}

// handleRequest processes whatever request pd trapped in with, updating the
// task/event/mutex tables only — it never hands the baton back to pd
// itself. It reports whether Run should resume pd directly without a new
// scheduling decision (true), or fall back to pd READY and let
// pickNextReady choose who runs next (false).
//
// Most request kinds that do not block their caller return straight to
// the same task with no new scheduling decision at all: create-task,
// create-event, create-mutex, unlock, and a wait-event that found its
// signal already pending all hold here. Terminate, resume, sleep, signal,
// and yield always force a fresh scheduling decision; lock only forces one
// if the caller actually blocked on a contended mutex — an uncontended or
// reentrant lock holds, same as the other non-blocking table mutations.
func (k *Kernel) handleRequest(pd *processDescriptor) bool {
	var err error
	hold := false
	switch pd.request {
	case reqCreateTask:
		err = k.handleCreateTask(pd, pd.requestArg)
		hold = true
	case reqTerminate:
		k.releaseAllMutexes(pd)
		pd.state = DEAD
		k.recordErr(ErrNone)
		k.logger.Debug("task terminated", "pid", int(pd.pid))
		return false
	case reqYield:
		// falls back to READY below; always redispatches.
	case reqSleep:
		if pd.requestArg > 0 {
			pd.sleepTicksLeft = pd.requestArg
			pd.state = SLEEPING
		}
	case reqSuspend:
		err = k.handleSuspend(pd, PID(pd.requestArg))
		hold = pd.state == RUNNING // only blocks (and redispatches) on self-suspend
	case reqResume:
		err = k.handleResume(pd, PID(pd.requestArg))
	case reqInitEvent:
		err = k.handleInitEvent(pd)
		hold = true
	case reqWaitEvent:
		err = k.handleWaitEvent(pd, EventID(pd.requestArg))
		hold = pd.state == RUNNING // a pending signal was consumed without blocking
	case reqSignalEvent:
		err = k.handleSignalEvent(pd, EventID(pd.requestArg))
	case reqInitMutex:
		err = k.handleInitMutex(pd)
		hold = true
	case reqLockMutex:
		err = k.handleLockMutex(pd, MutexID(pd.requestArg))
		hold = pd.state == RUNNING // uncontended or reentrant: didn't block
	case reqUnlockMutex:
		err = k.handleUnlockMutex(pd, MutexID(pd.requestArg))
		hold = true
	default:
		err = newKernelError("dispatch", ErrInvalidKernelRequest)
	}
	if !hold && pd.state == RUNNING {
		pd.state = READY
	}
	pd.syscallErr = err
	k.recordErr(errKind(err))
	return hold
}

func (k *Kernel) handleCreateTask(pd *processDescriptor, arg int) error {
	id, err := k.createTask(pd.pendingFn, pd.pendingPri, arg)
	if err != nil {
		return err
	}
	pd.createdPID = id
	return nil
}

func (k *Kernel) handleSuspend(pd *processDescriptor, target PID) error {
	tp := k.taskByPID(target)
	if tp == nil || tp.state == DEAD || tp.state == SUSPENDED || len(tp.ownedMutexes) > 0 {
		return newKernelError("Suspend", ErrSuspendNonRunningTask)
	}
	tp.lastState = tp.state
	tp.state = SUSPENDED
	return nil
}

func (k *Kernel) handleResume(pd *processDescriptor, target PID) error {
	tp := k.taskByPID(target)
	if tp == nil || tp.state != SUSPENDED {
		return newKernelError("Resume", ErrResumeNonSuspendedTask)
	}
	tp.state = tp.lastState
	return nil
}

func errKind(err error) ErrorKind {
	if err == nil {
		return ErrNone
	}
	var ke *KernelError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return ErrNone
}

func (k *Kernel) recordErr(kind ErrorKind) {
	k.mu.Lock()
	k.lastErr = kind
	k.mu.Unlock()
}

// LastError returns the ErrorKind of the most recently completed syscall,
// across every task — the literal analogue of a single global
// last-error variable. Most callers should prefer the error returned
// directly from the syscall method that failed.
func (k *Kernel) LastError() ErrorKind {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.lastErr
}

// Metrics returns the kernel's runtime metrics, or nil if WithMetrics was
// not enabled.
func (k *Kernel) Metrics() *Metrics {
	return k.metrics
}
