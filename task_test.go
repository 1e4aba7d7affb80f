package rtkernel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetArgReturnsSpawnArgument(t *testing.T) {
	k, err := New(WithTickSource(NewManualTickSource().TickSource()))
	require.NoError(t, err)

	got := make(chan int, 1)
	_, err = k.Spawn(func(t *Task) {
		got <- t.GetArg()
	}, 1, 42)
	require.NoError(t, err)

	stop := runKernel(t, k)
	defer stop()

	select {
	case arg := <-got:
		require.Equal(t, 42, arg)
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

func TestGetArgAfterTerminateReturnsMinusOne(t *testing.T) {
	k, err := New(WithTickSource(NewManualTickSource().TickSource()))
	require.NoError(t, err)

	var pd *processDescriptor
	done := make(chan struct{})
	_, err = k.Spawn(func(t *Task) {
		pd = t.pd
		close(done)
	}, 1, 7)
	require.NoError(t, err)

	stop := runKernel(t, k)
	defer stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
	require.Eventually(t, func() bool {
		return pd.state == DEAD
	}, time.Second, time.Millisecond, "task never reached DEAD")
	require.Equal(t, -1, (&Task{k: k, pd: pd}).GetArg())
}

func TestCreateTaskFromRunningTask(t *testing.T) {
	k, err := New(WithTickSource(NewManualTickSource().TickSource()))
	require.NoError(t, err)

	childRan := make(chan int, 1)
	errCh := make(chan error, 1)
	_, err = k.Spawn(func(tk *Task) {
		pid, err := tk.CreateTask(func(child *Task) {
			childRan <- child.GetArg()
		}, 1, 99)
		if err != nil {
			errCh <- err
			return
		}
		if pid == 0 {
			errCh <- newKernelError("CreateTask", ErrInvalidArg)
		}
	}, 1, 0)
	require.NoError(t, err)

	stop := runKernel(t, k)
	defer stop()

	select {
	case arg := <-childRan:
		require.Equal(t, 99, arg)
	case <-time.After(time.Second):
		t.Fatal("child task never ran")
	}
	select {
	case err := <-errCh:
		t.Fatalf("unexpected error: %v", err)
	default:
	}
}

func TestSpawnRejectsInvalidPriority(t *testing.T) {
	k, err := New(WithLowestPriority(5), WithTickSource(NewManualTickSource().TickSource()))
	require.NoError(t, err)

	_, err = k.Spawn(func(*Task) {}, 6, 0)
	var ke *KernelError
	require.ErrorAs(t, err, &ke)
	require.Equal(t, ErrInvalidArg, ke.Kind)
}

func TestSpawnRejectsNilFunc(t *testing.T) {
	k, err := New(WithTickSource(NewManualTickSource().TickSource()))
	require.NoError(t, err)

	_, err = k.Spawn(nil, 1, 0)
	var ke *KernelError
	require.ErrorAs(t, err, &ke)
	require.Equal(t, ErrInvalidArg, ke.Kind)
}

func TestMaxTasksEnforced(t *testing.T) {
	k, err := New(WithMaxTasks(1), WithTickSource(NewManualTickSource().TickSource()))
	require.NoError(t, err)

	_, err = k.Spawn(func(t *Task) { t.Sleep(1000) }, 1, 0)
	require.NoError(t, err)

	_, err = k.Spawn(func(*Task) {}, 1, 0)
	var ke *KernelError
	require.ErrorAs(t, err, &ke)
	require.Equal(t, ErrMaxProcess, ke.Kind)
}
