// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package schedule

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one named, registered unit of scheduled work.
type Job struct {
	Name string
	Spec string

	fn      func()
	running atomic.Bool

	mu      sync.Mutex
	lastRun time.Time
	runs    int64
}

// run is the scheduler-boundary wrapper around the handler: at most one
// invocation per job name at a time (overlapping ticks are skipped, not
// queued), and a panicking handler is caught and logged so the schedule
// continues at the next normal interval.
func (j *Job) run() {
	if !j.running.CompareAndSwap(false, true) {
		slog.Warn("previous run still in progress, skipping tick", "job", j.Name)
		return
	}
	defer j.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("job panicked", "job", j.Name, "panic", r)
		}
	}()

	start := time.Now()
	j.mu.Lock()
	j.lastRun = start
	j.runs++
	j.mu.Unlock()

	j.fn()

	slog.Info("job finished", "job", j.Name, "duration_ms", time.Since(start).Milliseconds())
}

// Snapshot is a point-in-time view of a job for status reporting.
type Snapshot struct {
	Name    string
	Spec    string
	LastRun time.Time
	Runs    int64
	Running bool
}

// Registry owns the named jobs and the cron runner behind them. Jobs are
// mutually independent: each runs on its own goroutine, so a slow job
// never delays another job's schedule.
type Registry struct {
	c *cron.Cron

	mu   sync.Mutex
	jobs []*Job

	// stopping is closed by Stop so daily-window jobs waiting out their
	// random delay abandon the pending run instead of blocking shutdown.
	stopping chan struct{}
	stopOnce sync.Once

	// jitter picks the random delay for daily-window jobs; replaced in tests.
	jitter func(max time.Duration) time.Duration
}

func NewRegistry() *Registry {
	return &Registry{
		c:        cron.New(cron.WithLogger(slogCronLogger{})),
		stopping: make(chan struct{}),
		jitter:   func(max time.Duration) time.Duration { return time.Duration(rand.Int63n(int64(max))) },
	}
}

// Register adds a named job on a cron spec. Specs are the standard
// five-field form or descriptors like "@every 5m". The first run happens
// at the next aligned tick after Start.
func (r *Registry) Register(name, spec string, fn func()) error {
	j := &Job{Name: name, Spec: spec, fn: fn}
	if _, err := r.c.AddFunc(spec, j.run); err != nil {
		return fmt.Errorf("register job %s: %w", name, err)
	}

	r.mu.Lock()
	r.jobs = append(r.jobs, j)
	r.mu.Unlock()
	return nil
}

// RegisterDailyWindow adds a job that fires once per day at a random
// moment inside [startHour, endHour) local time. The trigger fires at the
// window start and the job sleeps a fresh random delay each day, so the
// actual run time is not predictable.
func (r *Registry) RegisterDailyWindow(name string, startHour, endHour int, fn func()) error {
	if endHour <= startHour {
		return fmt.Errorf("register job %s: window end %d not after start %d", name, endHour, startHour)
	}
	window := time.Duration(endHour-startHour) * time.Hour
	spec := fmt.Sprintf("0 %d * * *", startHour)

	return r.Register(name, spec, func() {
		delay := r.jitter(window)
		slog.Info("job waiting inside daily window", "job", name, "delay", delay.Round(time.Minute).String())

		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-r.stopping:
			slog.Info("shutdown during daily window wait, abandoning run", "job", name)
			return
		}
		fn()
	})
}

// Start launches the cron runner. Registration after Start is not supported.
func (r *Registry) Start() {
	r.c.Start()

	r.mu.Lock()
	n := len(r.jobs)
	r.mu.Unlock()
	slog.Info("scheduler started", "jobs", n)
}

// Stop halts scheduling and waits for in-flight runs to finish. Jobs
// still waiting out a daily-window delay are released immediately.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopping) })
	<-r.c.Stop().Done()
	slog.Info("scheduler stopped")
}

// Entries returns a snapshot of every registered job, in registration order.
func (r *Registry) Entries() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Snapshot, 0, len(r.jobs))
	for _, j := range r.jobs {
		j.mu.Lock()
		out = append(out, Snapshot{
			Name:    j.Name,
			Spec:    j.Spec,
			LastRun: j.lastRun,
			Runs:    j.runs,
			Running: j.running.Load(),
		})
		j.mu.Unlock()
	}
	return out
}

// slogCronLogger routes the cron runner's own messages to slog.
type slogCronLogger struct{}

func (slogCronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
