// Package janitor purges expired tracking entries and cached snippets on a
// cron schedule.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/ambrosia/internal/store"
	"github.com/rendis/ambrosia/internal/tracking"
)

// DefaultSchedule runs a purge every five minutes.
const DefaultSchedule = "*/5 * * * *"

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a five-field cron expression or a descriptor such as @hourly.
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// Task removes expired rows and reports how many were removed.
type Task struct {
	Name string
	Run  func(ctx context.Context, now time.Time) (int64, error)
}

// TrackingTask purges expired tracking entries of set.
func TrackingTask(set *tracking.StoreSet) Task {
	return Task{Name: "tracking", Run: func(ctx context.Context, _ time.Time) (int64, error) {
		return set.Purge(ctx)
	}}
}

// CacheTask purges expired cached snippets.
func CacheTask(s store.Store) Task {
	return Task{Name: "snippet_cache", Run: s.PurgeCachedSnippets}
}

// Janitor runs its tasks on a schedule.
type Janitor struct {
	tasks    []Task
	schedule cron.Schedule
	logger   *slog.Logger
	now      func() time.Time
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{} // task names currently running
}

// New creates a janitor for the cron expression expr.
func New(expr string, logger *slog.Logger, tasks ...Task) (*Janitor, error) {
	if expr == "" {
		expr = DefaultSchedule
	}
	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		tasks:    tasks,
		schedule: sched,
		logger:   logger,
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}, nil
}

// NextRun returns the first scheduled run after from.
func (j *Janitor) NextRun(from time.Time) time.Time {
	return j.schedule.Next(from)
}

// Start launches the background loop. A purge runs immediately.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.done != nil {
		j.mu.Unlock()
		return fmt.Errorf("janitor already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})
	j.mu.Unlock()

	go j.loop(loopCtx)
	j.logger.Info("janitor started")
	return nil
}

func (j *Janitor) loop(ctx context.Context) {
	defer close(j.done)
	j.RunOnce(ctx)

	for {
		now := j.now()
		timer := time.NewTimer(j.schedule.Next(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce runs every task not already running and returns removed counts by
// task name. Task failures are logged and leave that task out of the result.
func (j *Janitor) RunOnce(ctx context.Context) map[string]int64 {
	now := j.now().UTC()
	removed := make(map[string]int64, len(j.tasks))
	for _, task := range j.tasks {
		if !j.tryAcquire(task.Name) {
			continue
		}
		n, err := task.Run(ctx, now)
		j.release(task.Name)
		if err != nil {
			j.logger.Error("purge failed", slog.String("task", task.Name), slog.String("error", err.Error()))
			continue
		}
		removed[task.Name] = n
		if n > 0 {
			j.logger.Info("purged expired rows", slog.String("task", task.Name), slog.Int64("removed", n))
		}
	}
	return removed
}

func (j *Janitor) tryAcquire(name string) bool {
	j.inflightMu.Lock()
	defer j.inflightMu.Unlock()
	if _, ok := j.inflight[name]; ok {
		return false
	}
	j.inflight[name] = struct{}{}
	return true
}

func (j *Janitor) release(name string) {
	j.inflightMu.Lock()
	defer j.inflightMu.Unlock()
	delete(j.inflight, name)
}

// Stop shuts the loop down and waits for a running purge to finish.
func (j *Janitor) Stop() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel == nil {
		return nil
	}
	j.cancel()
	<-j.done
	j.cancel = nil
	j.done = nil
	j.logger.Info("janitor stopped")
	return nil
}
