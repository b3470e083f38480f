package ethbind

import (
	"context"
	"sync"
	"time"
)

/*
Handle of a repeating background task started with "Schedule". The task runs
until its function returns false, its context is done, or "Stop" is called.
*/
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

/*
Runs "fun" immediately, then again "interval" after each run returns. Runs
never overlap: the next one is scheduled only when the previous one has
finished, regardless of how long it took. Returning false ends the task.

The context passed to "fun" is canceled by "Stop".
*/
func Schedule(ctx context.Context, interval time.Duration, fun func(context.Context) bool) *Task {
	return ScheduleAfter(ctx, 0, interval, fun)
}

// Same as "Schedule", but the first run happens after "delay".
func ScheduleAfter(ctx context.Context, delay time.Duration, interval time.Duration, fun func(context.Context) bool) *Task {
	ctx, cancel := context.WithCancel(ctx)
	task := &Task{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(task.done)
		defer cancel()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}

			if !fun(ctx) {
				return
			}
			timer.Reset(interval)
		}
	}()

	return task
}

/*
Cancels the task and waits for the current run, if any, to finish. Safe to
call repeatedly and concurrently. Must not be called from the task's own
function; use "Cancel" there.
*/
func (self *Task) Stop() {
	self.Cancel()
	<-self.done
}

// Cancels the task without waiting. The current run, if any, sees its context
// canceled and no further runs start.
func (self *Task) Cancel() { self.once.Do(self.cancel) }

// Closed when the task has ended for any reason.
func (self *Task) Done() <-chan struct{} { return self.done }
