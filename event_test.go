package rtkernel

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestEventSignalBeforeWaitIsNotLost checks that a signal delivered while no
// task is waiting is remembered rather than discarded, so the eventual
// WaitEvent call still returns immediately.
func TestEventSignalBeforeWaitIsNotLost(t *testing.T) {
	k, err := New(WithTickSource(NewManualTickSource().TickSource()))
	require.NoError(t, err)

	errCh := make(chan error, 2)
	waitReturned := make(chan struct{})

	_, err = k.Spawn(func(tk *Task) {
		id, err := tk.InitEvent()
		if err != nil {
			errCh <- err
			return
		}

		// CreateTask alone doesn't hand control to the child, so an
		// explicit Yield is needed to force it to run — and run to
		// completion — before this task ever reaches WaitEvent below.
		// Nobody is registered as a waiter yet when it signals, so the
		// signal is only a soft error; it still accumulates in the event's
		// counter for the Wait below to find.
		_, err = tk.CreateTask(func(child *Task) {
			if err := child.SignalEvent(id); err != nil {
				var ke *KernelError
				if errors.As(err, &ke) && ke.Kind == ErrSignalUnownedEvent {
					return
				}
				errCh <- err
			}
		}, 1, 0)
		if err != nil {
			errCh <- err
			return
		}
		if err := tk.Yield(); err != nil {
			errCh <- err
			return
		}

		if err := tk.WaitEvent(id); err != nil {
			errCh <- err
			return
		}
		close(waitReturned)
	}, 5, 0)
	require.NoError(t, err)

	stop := runKernel(t, k)
	defer stop()

	select {
	case <-waitReturned:
	case <-time.After(time.Second):
		t.Fatal("WaitEvent never returned for a signal recorded before it waited")
	}
	select {
	case err := <-errCh:
		t.Fatalf("unexpected syscall error: %v", err)
	default:
	}
}

// TestWaitEventConsumesAndInvalidatesEvent checks that a Wait which
// consumes a pending signal frees the whole event slot, not just
// decrementing a counter: a second Signal or Wait against the same id
// afterward must see it as gone, requiring a fresh InitEvent to reuse the
// rendezvous.
func TestWaitEventConsumesAndInvalidatesEvent(t *testing.T) {
	k, err := New(WithTickSource(NewManualTickSource().TickSource()))
	require.NoError(t, err)

	result := make(chan error, 1)
	_, err = k.Spawn(func(tk *Task) {
		id, err := tk.InitEvent()
		if err != nil {
			result <- err
			return
		}
		if err := tk.SignalEvent(id); err != nil {
			var ke *KernelError
			if !errors.As(err, &ke) || ke.Kind != ErrSignalUnownedEvent {
				result <- err
				return
			}
		}
		if err := tk.WaitEvent(id); err != nil {
			result <- err
			return
		}
		// The event was consumed above; a second Wait on the same,
		// now-invalid id must fail rather than silently reusing the slot.
		result <- tk.WaitEvent(id)
	}, 1, 0)
	require.NoError(t, err)

	stop := runKernel(t, k)
	defer stop()

	select {
	case err := <-result:
		var ke *KernelError
		require.ErrorAs(t, err, &ke)
		require.Equal(t, ErrEventNotFound, ke.Kind)
	case <-time.After(time.Second):
		t.Fatal("second WaitEvent never returned")
	}
}

func TestSignalUnownedEventIsSoftError(t *testing.T) {
	k, err := New(WithTickSource(NewManualTickSource().TickSource()))
	require.NoError(t, err)

	result := make(chan error, 1)
	_, err = k.Spawn(func(tk *Task) {
		id, err := tk.InitEvent()
		if err != nil {
			result <- err
			return
		}
		result <- tk.SignalEvent(id)
	}, 1, 0)
	require.NoError(t, err)

	stop := runKernel(t, k)
	defer stop()

	select {
	case err := <-result:
		var ke *KernelError
		require.ErrorAs(t, err, &ke)
		require.Equal(t, ErrSignalUnownedEvent, ke.Kind)
	case <-time.After(time.Second):
		t.Fatal("SignalEvent never returned")
	}
}

// TestWaitEventRejectsSecondWaiter checks that only one task may wait on a
// given event at a time.
func TestWaitEventRejectsSecondWaiter(t *testing.T) {
	k, err := New(WithTickSource(NewManualTickSource().TickSource()))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	secondResult := make(chan error, 1)

	_, err = k.Spawn(func(tk *Task) {
		id, err := tk.InitEvent()
		if err != nil {
			errCh <- err
			return
		}
		_, err = tk.CreateTask(func(child *Task) {
			secondResult <- child.WaitEvent(id)
		}, 2, 0)
		if err != nil {
			errCh <- err
			return
		}
		// Blocks here, handing the dispatcher to the child above — which
		// then finds this task already registered as the event's waiter.
		if err := tk.WaitEvent(id); err != nil {
			errCh <- err
		}
	}, 1, 0)
	require.NoError(t, err)

	stop := runKernel(t, k)
	defer stop()

	select {
	case err := <-secondResult:
		var ke *KernelError
		require.ErrorAs(t, err, &ke)
		require.Equal(t, ErrEventNotFound, ke.Kind)
	case <-time.After(time.Second):
		t.Fatal("second WaitEvent never returned")
	}
	select {
	case err := <-errCh:
		t.Fatalf("unexpected syscall error: %v", err)
	default:
	}
}
