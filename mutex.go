package rtkernel

// mutex is a reentrant, priority-inheriting lock. Ownership is tracked by
// PID (not by goroutine), since PID is the kernel's notion of task
// identity; recursive Lock calls from the same owning task simply bump
// holdCount rather than blocking.
type mutex struct {
	id        MutexID
	slot      int
	live      bool
	owner     PID
	ownPri    Priority // owner's priority before any inheritance boost
	holdCount int

	waiters []*mutexWaiter
	nextOrder int
}

// mutexWaiter records one blocked task's place in line: its priority at
// the moment it blocked (for priority-ordered dequeue) and its arrival
// order (for FIFO tie-break among equal priorities).
type mutexWaiter struct {
	pid   PID
	pri   Priority
	order int
}

// InitMutex creates a new mutex and returns its ID.
func (t *Task) InitMutex() (MutexID, error) {
	if err := t.enterKernel(reqInitMutex, 0); err != nil {
		return 0, err
	}
	return t.pd.createdMutexID, nil
}

// LockMutex acquires the mutex, blocking if another task holds it. If the
// calling task already owns it, the call is a reentrant no-op that bumps
// the hold count. While blocked, the calling task's effective priority is
// never changed; instead, if the blocked task is higher priority than the
// current owner, the owner's effective priority is raised to match (and
// restored on the matching Unlock) so a low-priority owner cannot be
// preempted indefinitely by medium-priority tasks while a high-priority
// task waits — classic priority inheritance.
func (t *Task) LockMutex(id MutexID) error {
	return t.enterKernel(reqLockMutex, int(id))
}

// UnlockMutex releases one hold on the mutex. Once holdCount reaches
// zero, if any task is waiting, the highest-priority waiter (ties broken
// by earliest arrival) becomes the new owner and is made READY; the
// releasing task's priority is restored to the value recorded when it
// first locked the mutex. A call by a task that does not currently own
// the mutex is rejected silently: it returns nil and has no effect.
func (t *Task) UnlockMutex(id MutexID) error {
	return t.enterKernel(reqUnlockMutex, int(id))
}

// --- dispatcher-side handlers ---

func (k *Kernel) findDeadMutexSlot() (int, bool) {
	for i, m := range k.mutexes {
		if m == nil || !m.live {
			return i, true
		}
	}
	if len(k.mutexes) < k.opts.maxMutexes {
		k.mutexes = append(k.mutexes, nil)
		return len(k.mutexes) - 1, true
	}
	return 0, false
}

func (k *Kernel) lookupMutex(id MutexID) (*mutex, bool) {
	for _, m := range k.mutexes {
		if m != nil && m.live && m.id == id {
			return m, true
		}
	}
	return nil, false
}

func (k *Kernel) handleInitMutex(pd *processDescriptor) error {
	slot, ok := k.findDeadMutexSlot()
	if !ok {
		return newKernelError("InitMutex", ErrMaxMutex)
	}
	k.lastMutexID++
	k.mutexes[slot] = &mutex{id: k.lastMutexID, slot: slot, live: true, owner: 0}
	pd.createdMutexID = k.lastMutexID
	return nil
}

func (k *Kernel) handleLockMutex(pd *processDescriptor, id MutexID) error {
	m, ok := k.lookupMutex(id)
	if !ok {
		return newKernelError("LockMutex", ErrMutexNotFound)
	}
	if m.holdCount == 0 {
		m.owner = pd.pid
		m.ownPri = pd.effPri
		m.holdCount = 1
		pd.ownedMutexes = append(pd.ownedMutexes, id)
		return nil
	}
	if m.owner == pd.pid {
		m.holdCount++
		return nil
	}
	// Contended: block, and boost the owner's priority if we outrank it.
	m.waiters = append(m.waiters, &mutexWaiter{pid: pd.pid, pri: pd.effPri, order: m.nextOrder})
	m.nextOrder++
	pd.waitMutex = id
	pd.state = WAIT_MUTEX
	pd.mutexBlockedAtTick = k.tickCounter
	if owner := k.taskByPID(m.owner); owner != nil && pd.effPri < owner.effPri {
		owner.effPri = pd.effPri
	}
	return nil
}

func (k *Kernel) handleUnlockMutex(pd *processDescriptor, id MutexID) error {
	m, ok := k.lookupMutex(id)
	if !ok {
		return newKernelError("UnlockMutex", ErrMutexNotFound)
	}
	if m.owner != pd.pid || m.holdCount == 0 {
		// A non-owner's Unlock is rejected silently: no error, no effect
		// on the mutex's state.
		return nil
	}
	m.holdCount--
	if m.holdCount > 0 {
		return nil
	}
	k.releaseMutex(pd, m)
	return nil
}

// releaseMutex hands m off to its best-priority waiter (if any) and
// restores the releasing task's effective priority. It is shared between
// UnlockMutex and the Terminate sweep, which must perform exactly this
// handoff for every mutex a terminating task still holds.
func (k *Kernel) releaseMutex(owner *processDescriptor, m *mutex) {
	owner.effPri = m.ownPri
	removeMutexID(owner, m.id)

	next, ok := dequeueBestWaiter(m)
	if !ok {
		m.owner = 0
		return
	}
	waiterPD := k.taskByPID(next.pid)
	m.owner = next.pid
	m.ownPri = next.pri
	m.holdCount = 1
	if waiterPD != nil {
		waiterPD.ownedMutexes = append(waiterPD.ownedMutexes, m.id)
		if waiterPD.state == WAIT_MUTEX {
			waiterPD.state = READY
			if k.metrics != nil {
				k.metrics.recordMutexWait(int(k.tickCounter - waiterPD.mutexBlockedAtTick))
			}
		}
	}
}

// dequeueBestWaiter removes and returns the highest-priority waiter from
// m's queue, breaking ties in favour of the smallest arrival order: the
// task that blocked first among equal-priority waiters goes first.
func dequeueBestWaiter(m *mutex) (*mutexWaiter, bool) {
	if len(m.waiters) == 0 {
		return nil, false
	}
	best := 0
	for i := 1; i < len(m.waiters); i++ {
		w, b := m.waiters[i], m.waiters[best]
		if w.pri < b.pri || (w.pri == b.pri && w.order < b.order) {
			best = i
		}
	}
	w := m.waiters[best]
	m.waiters = append(m.waiters[:best], m.waiters[best+1:]...)
	return w, true
}

func removeMutexID(pd *processDescriptor, id MutexID) {
	for i, owned := range pd.ownedMutexes {
		if owned == id {
			pd.ownedMutexes = append(pd.ownedMutexes[:i], pd.ownedMutexes[i+1:]...)
			return
		}
	}
}

// releaseAllMutexes is called when a task terminates: every mutex it
// still holds is released and handed off, exactly as releaseMutex would
// do for an explicit Unlock, so a terminated owner can never strand its
// waiters.
func (k *Kernel) releaseAllMutexes(pd *processDescriptor) {
	for len(pd.ownedMutexes) > 0 {
		id := pd.ownedMutexes[0]
		m, ok := k.lookupMutex(id)
		if !ok {
			pd.ownedMutexes = pd.ownedMutexes[1:]
			continue
		}
		m.holdCount = 0
		k.releaseMutex(pd, m)
	}
}
