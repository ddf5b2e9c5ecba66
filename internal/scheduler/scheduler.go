// Package scheduler runs independent periodic tasks from one background
// goroutine. Tasks run sequentially on that goroutine, so two tasks never
// race each other's side effects; a panicking or failing task is isolated
// and logged without taking down its siblings or the loop.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one callable invoked every Every.
type Task struct {
	Name  string
	Every time.Duration
	Fn    func(ctx context.Context) error
}

// Runner executes a fixed set of tasks on their own intervals.
type Runner struct {
	tasks  []Task
	logger *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a Runner for the given tasks. Call Start to begin.
func New(logger *zap.Logger, tasks ...Task) *Runner {
	return &Runner{
		tasks:  tasks,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the scheduling loop. Every task fires immediately on the
// first pass, then every Task.Every after that.
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("task runner started", zap.Int("tasks", len(r.tasks)))
	go r.loop(ctx)
}

// Stop signals the loop and waits for it to exit. Safe to call more than
// once.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
	<-r.done
	r.logger.Info("task runner stopped")
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	nextDue := make([]time.Time, len(r.tasks))
	now := time.Now()
	for i := range nextDue {
		nextDue[i] = now
	}

	for {
		now = time.Now()
		for i, task := range r.tasks {
			if now.Before(nextDue[i]) {
				continue
			}
			r.invoke(ctx, task)
			nextDue[i] = now.Add(task.Every)
		}

		soonest := nextDue[0]
		for _, due := range nextDue[1:] {
			if due.Before(soonest) {
				soonest = due
			}
		}

		timer := time.NewTimer(time.Until(soonest))
		select {
		case <-timer.C:
		case <-r.stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// invoke runs one task, containing panics and logging failures so a broken
// task cannot stop the loop or starve its siblings.
func (r *Runner) invoke(ctx context.Context, task Task) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("task panicked",
				zap.String("task", task.Name), zap.Any("panic", rec))
		}
	}()
	if err := task.Fn(ctx); err != nil {
		r.logger.Error("task failed", zap.String("task", task.Name), zap.Error(err))
	}
}
