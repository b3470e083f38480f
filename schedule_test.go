package ethbind

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScheduleRunsUntilFalse(t *testing.T) {
	var runs int32
	task := Schedule(context.Background(), time.Millisecond, func(context.Context) bool {
		return atomic.AddInt32(&runs, 1) < 3
	})

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task didn't end")
	}
	require.Equal(t, int32(3), atomic.LoadInt32(&runs))
}

func TestScheduleStop(t *testing.T) {
	started := make(chan struct{})
	var once int32
	task := Schedule(context.Background(), time.Millisecond, func(ctx context.Context) bool {
		if atomic.CompareAndSwapInt32(&once, 0, 1) {
			close(started)
		}
		<-ctx.Done()
		return true
	})

	<-started
	task.Stop()
	task.Stop()

	select {
	case <-task.Done():
	default:
		t.Fatal("Stop returned before the task ended")
	}
}

func TestScheduleContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	task := Schedule(ctx, time.Hour, func(context.Context) bool { return true })
	cancel()

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task ignored context cancelation")
	}
}

func TestScheduleAfterDelay(t *testing.T) {
	var runs int32
	task := ScheduleAfter(context.Background(), time.Hour, time.Millisecond, func(context.Context) bool {
		atomic.AddInt32(&runs, 1)
		return true
	})

	time.Sleep(10 * time.Millisecond)
	task.Stop()
	require.Zero(t, atomic.LoadInt32(&runs))
}

func TestScheduleRunsDontOverlap(t *testing.T) {
	var active, overlaps, runs int32
	task := Schedule(context.Background(), 0, func(context.Context) bool {
		if atomic.AddInt32(&active, 1) > 1 {
			atomic.AddInt32(&overlaps, 1)
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&active, -1)
		return atomic.AddInt32(&runs, 1) < 5
	})

	<-task.Done()
	require.Zero(t, atomic.LoadInt32(&overlaps))
}

func TestScheduleCancelFromRun(t *testing.T) {
	tasks := make(chan *Task, 1)
	var runs int32
	task := Schedule(context.Background(), time.Millisecond, func(ctx context.Context) bool {
		atomic.AddInt32(&runs, 1)
		(<-tasks).Cancel()
		require.Error(t, ctx.Err())
		return true
	})
	tasks <- task

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task canceled from its own run didn't end")
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&runs))
	task.Stop()
}
