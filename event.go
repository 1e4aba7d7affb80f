package rtkernel

// event is a one-shot synchronisation point with a saturating signal
// counter: Signal increments the counter even if nobody is waiting yet,
// and a subsequent Wait that finds a positive counter returns immediately
// without blocking. At most one task may wait on a given event at a time
// — a second Wait while a waiter is already registered is rejected with
// ErrEventNotFound. A Wait that consumes a pending signal frees the event
// entirely: the slot is released and the id becomes invalid, so reusing
// the same rendezvous requires a fresh InitEvent.
type event struct {
	id      EventID
	slot    int
	live    bool
	count   int // pending, unconsumed signals
	waiter  PID // 0 if nobody is waiting
	hasWait bool
}

// maxEventSignalMiss, when non-zero, caps count so a runaway signaller
// cannot grow it without bound; 0 (the default) leaves it unbounded.
func (k *Kernel) clampEventCount(n int) int {
	if k.opts.maxEventSignalMiss > 0 && n > k.opts.maxEventSignalMiss {
		return k.opts.maxEventSignalMiss
	}
	return n
}

// InitEvent creates a new event and returns its ID. Called from a task's
// goroutine, it traps into the dispatcher like every other syscall.
func (t *Task) InitEvent() (EventID, error) {
	if err := t.enterKernel(reqInitEvent, 0); err != nil {
		return 0, err
	}
	return t.pd.createdEventID, nil
}

// WaitEvent blocks the calling task until the event has a pending signal.
// If the event already has a pending signal, WaitEvent returns immediately
// without yielding the processor to another task — but either way, a
// signal that satisfies a Wait frees the event: the id is invalidated and
// may not be waited or signalled again without a fresh InitEvent.
func (t *Task) WaitEvent(id EventID) error {
	return t.enterKernel(reqWaitEvent, int(id))
}

// SignalEvent records one signal against the event. If a task is blocked
// in WaitEvent on this event, it becomes READY immediately and the event
// is freed (the id is no longer valid); otherwise the signal accumulates
// in the event's counter for a future WaitEvent to consume. Signalling an
// event nobody has ever waited on is not an error — ErrSignalUnownedEvent
// is a soft warning the caller may ignore.
func (t *Task) SignalEvent(id EventID) error {
	return t.enterKernel(reqSignalEvent, int(id))
}

// --- dispatcher-side handlers (invoked only from the dispatcher goroutine) ---

func (k *Kernel) handleInitEvent(pd *processDescriptor) error {
	slot, ok := k.findDeadEventSlot()
	if !ok {
		return newKernelError("InitEvent", ErrMaxEvent)
	}
	k.lastEventID++
	k.events[slot] = &event{id: k.lastEventID, slot: slot, live: true}
	pd.createdEventID = k.lastEventID
	return nil
}

func (k *Kernel) handleWaitEvent(pd *processDescriptor, id EventID) error {
	ev, ok := k.lookupEvent(id)
	if !ok {
		return newKernelError("WaitEvent", ErrEventNotFound)
	}
	if ev.hasWait && ev.waiter != pd.pid {
		return newKernelError("WaitEvent", ErrEventNotFound)
	}
	if ev.count > 0 {
		// Consumes the signal in place: the whole slot is freed rather than
		// just decrementing, so the id is invalidated for further use — a
		// second rendezvous on the same event requires a fresh InitEvent.
		freeEvent(ev)
		return nil
	}
	ev.hasWait = true
	ev.waiter = pd.pid
	pd.waitEvent = id
	pd.state = WAIT_EVENT
	return nil
}

func (k *Kernel) handleSignalEvent(pd *processDescriptor, id EventID) error {
	ev, ok := k.lookupEvent(id)
	if !ok {
		return newKernelError("SignalEvent", ErrEventNotFound)
	}
	if ev.hasWait {
		waiter := k.taskByPID(ev.waiter)
		if waiter != nil && waiter.state == WAIT_EVENT {
			freeEvent(ev)
			waiter.state = READY
			return nil
		}
		ev.hasWait = false
		ev.waiter = 0
	}
	ev.count = k.clampEventCount(ev.count + 1)
	return newKernelError("SignalEvent", ErrSignalUnownedEvent)
}

// freeEvent clears a slot once a wait/signal pair has rendezvoused,
// invalidating the id for further use: reusing the same rendezvous point
// requires a fresh InitEvent.
func freeEvent(ev *event) {
	*ev = event{slot: ev.slot}
}

func (k *Kernel) findDeadEventSlot() (int, bool) {
	for i, e := range k.events {
		if e == nil || !e.live {
			return i, true
		}
	}
	if len(k.events) < k.opts.maxEvents {
		k.events = append(k.events, nil)
		return len(k.events) - 1, true
	}
	return 0, false
}

func (k *Kernel) lookupEvent(id EventID) (*event, bool) {
	for _, e := range k.events {
		if e != nil && e.live && e.id == id {
			return e, true
		}
	}
	return nil, false
}
