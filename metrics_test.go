package rtkernel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMetricsRecordDispatchAndTicks(t *testing.T) {
	manual := NewManualTickSource()
	k, err := New(WithMetrics(true), WithTickSource(manual.TickSource()))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	done := make(chan struct{})
	_, err = k.Spawn(func(tk *Task) {
		if err := tk.Yield(); err != nil {
			errCh <- err
			return
		}
		close(done)
	}, 1, 0)
	require.NoError(t, err)

	stop := runKernel(t, k)
	defer stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
	select {
	case err := <-errCh:
		t.Fatalf("unexpected syscall error: %v", err)
	default:
	}

	require.Eventually(t, func() bool {
		return k.Metrics().Snapshot().Dispatches >= 2
	}, time.Second, time.Millisecond)

	manual.Advance(3)
	require.Eventually(t, func() bool {
		return k.Metrics().Snapshot().Ticks == 3
	}, time.Second, time.Millisecond)
}

func TestMetricsSleepOvershootRecorded(t *testing.T) {
	manual := NewManualTickSource()
	k, err := New(WithMetrics(true), WithTickSource(manual.TickSource()))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	woke := make(chan struct{})
	_, err = k.Spawn(func(tk *Task) {
		if err := tk.Sleep(2); err != nil {
			errCh <- err
			return
		}
		close(woke)
	}, 1, 0)
	require.NoError(t, err)

	stop := runKernel(t, k)
	defer stop()

	// Let the task reach Sleep first: ticks drained before it sleeps do
	// not count toward its wake-up.
	time.Sleep(20 * time.Millisecond)
	manual.Advance(5) // overshoots the requested 2 ticks by 3
	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("task never woke")
	}
	select {
	case err := <-errCh:
		t.Fatalf("unexpected syscall error: %v", err)
	default:
	}

	snap := k.Metrics().Snapshot()
	require.Equal(t, 1, snap.SleepOvershoot.Count)
	require.Equal(t, float64(3), snap.SleepOvershoot.Max)
}

// TestMetricsMutexWaitRecorded checks that time spent blocked on a
// contended mutex is recorded once the waiter is finally handed ownership.
func TestMetricsMutexWaitRecorded(t *testing.T) {
	manual := NewManualTickSource()
	k, err := New(WithMetrics(true), WithTickSource(manual.TickSource()))
	require.NoError(t, err)

	errCh := make(chan error, 2)
	acquired := make(chan struct{})

	_, err = k.Spawn(func(tk *Task) {
		id, err := tk.InitMutex()
		if err != nil {
			errCh <- err
			return
		}
		if err := tk.LockMutex(id); err != nil {
			errCh <- err
			return
		}
		_, err = tk.CreateTask(func(waiter *Task) {
			if err := waiter.LockMutex(id); err != nil {
				errCh <- err
				return
			}
			close(acquired)
		}, 1, 0)
		if err != nil {
			errCh <- err
			return
		}
		if err := tk.Sleep(4); err != nil {
			errCh <- err
			return
		}
		if err := tk.UnlockMutex(id); err != nil {
			errCh <- err
		}
	}, 5, 0)
	require.NoError(t, err)

	stop := runKernel(t, k)
	defer stop()

	time.Sleep(20 * time.Millisecond)
	manual.Advance(4)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired mutex")
	}
	select {
	case err := <-errCh:
		t.Fatalf("unexpected syscall error: %v", err)
	default:
	}

	require.Eventually(t, func() bool {
		return k.Metrics().Snapshot().MutexWait.Count == 1
	}, time.Second, time.Millisecond)
}
