// Package janitor runs cron-scheduled background maintenance: TTL-table
// sweeps and the periodic full state snapshot. Nothing here is load-bearing
// for correctness; the stores expire lazily on access.
package janitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// Task is one named maintenance action with a cron schedule.
type Task struct {
	Name string
	Cron string
	Run  func()
}

// Janitor ticks once a minute and runs every task whose cron expression is
// due.
type Janitor struct {
	tasks []Task
	gron  *gronx.Gronx
}

// New validates the task schedules and builds a janitor.
func New(tasks []Task) (*Janitor, error) {
	g := gronx.New()
	for _, t := range tasks {
		if !g.IsValid(t.Cron) {
			return nil, &InvalidCronError{Task: t.Name, Expr: t.Cron}
		}
	}
	return &Janitor{tasks: tasks, gron: g}, nil
}

// InvalidCronError reports a malformed schedule at construction time.
type InvalidCronError struct {
	Task string
	Expr string
}

func (e *InvalidCronError) Error() string {
	return "janitor: invalid cron expression " + e.Expr + " for task " + e.Task
}

// Run blocks until ctx is done, firing due tasks on minute boundaries.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	slog.Info("janitor started", "tasks", len(j.tasks))
	for {
		select {
		case <-ctx.Done():
			slog.Info("janitor stopped")
			return
		case now := <-ticker.C:
			j.tick(now)
		}
	}
}

func (j *Janitor) tick(now time.Time) {
	for _, t := range j.tasks {
		due, err := j.gron.IsDue(t.Cron, now)
		if err != nil {
			slog.Warn("janitor schedule check failed", "task", t.Name, "error", err)
			continue
		}
		if !due {
			continue
		}
		slog.Debug("janitor task running", "task", t.Name)
		t.Run()
	}
}
