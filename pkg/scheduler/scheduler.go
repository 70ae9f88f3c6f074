// Package scheduler runs the periodic background tasks the device store
// and alert builder need — pruning, snapshot persistence, and dedup
// sweeps (spec.md §5's "re-express as explicit periodic tasks on a
// scheduler with a test clock"). Grounded on the ticker-plus-context loop
// shape in the teacher's pkg/adaptive/sampler.go, generalized from one
// hardcoded sampling loop into any number of named periodic tasks
// supervised together via golang.org/x/sync/errgroup.
package scheduler

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trailmesh/navcore/pkg/logx"
)

// Task is one periodic job: a name (for logging) and a function run on
// every tick.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// Scheduler runs a fixed set of Tasks concurrently until its context is
// canceled. Unlike the source's single ad-hoc ticker per subsystem, every
// task here is registered up front and supervised by one errgroup, so
// Run's return is a single wait point.
type Scheduler struct {
	tasks  []Task
	logger *logx.Logger
}

// New creates a scheduler with no tasks registered yet.
func New(logger *logx.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Register adds a periodic task. Call before Run.
func (s *Scheduler) Register(t Task) {
	s.tasks = append(s.tasks, t)
}

// Run starts every registered task and blocks until ctx is canceled, then
// waits for all task loops to return. It never returns a non-nil error
// under normal cancellation; a panicking task's recovered value is
// logged, not propagated, so one misbehaving task cannot take down the
// others.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, t := range s.tasks {
		task := t
		g.Go(func() error {
			s.runLoop(ctx, task)
			return nil
		})
	}

	return g.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, t Task) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, t)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, t Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked", "task", t.Name, "recovered", r)
		}
	}()
	t.Run(ctx)
}
