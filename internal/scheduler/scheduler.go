// Package scheduler runs the periodic library jobs (overdue scan, audit
// retention cleanup) on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled unit of work. Run usually enqueues a background task
// and returns quickly.
type Job struct {
	Name     string
	Schedule string // standard five-field cron expression
	Run      func(ctx context.Context) error
}

type entry struct {
	job     Job
	id      cron.EntryID
	running bool
}

// Scheduler manages the cron entries for a set of jobs.
type Scheduler struct {
	cron *cron.Cron

	mu         sync.RWMutex
	entries    map[string]*entry
	isRunning  bool
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// New creates a scheduler using times in loc (UTC when nil).
func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
			cron.WithLocation(loc),
		),
		entries: map[string]*entry{},
	}
}

// Add registers a job. Must be called before Start.
func (s *Scheduler) Add(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("scheduler: job needs a name and a run func")
	}
	if _, exists := s.entries[job.Name]; exists {
		return fmt.Errorf("scheduler: job %q already registered", job.Name)
	}

	e := &entry{job: job}
	id, err := s.cron.AddFunc(job.Schedule, func() { s.run(e) })
	if err != nil {
		return fmt.Errorf("invalid cron schedule '%s' for %s: %w", job.Schedule, job.Name, err)
	}
	e.id = id
	s.entries[job.Name] = e
	return nil
}

// Start begins firing jobs. The scheduler stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return
	}
	s.ctx, s.cancelFunc = context.WithCancel(ctx)
	s.cron.Start()
	s.isRunning = true

	for name, e := range s.entries {
		log.Printf("[SCHEDULER] %s: schedule '%s', next run %v", name, e.job.Schedule, s.cron.Entry(e.id).Next)
	}

	go func(ctx context.Context) {
		<-ctx.Done()
		s.Stop()
	}(s.ctx)
}

// Stop waits for running jobs to finish and stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	cancel := s.cancelFunc
	s.mu.Unlock()

	// Stop accepting new jobs and wait for running jobs to complete
	<-s.cron.Stop().Done()
	cancel()

	log.Printf("[SCHEDULER] stopped")
}

// RunNow triggers a job immediately, outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	go s.run(e)
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextRun returns when the job fires next, or nil when stopped or unknown.
func (s *Scheduler) NextRun(name string) *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[name]
	if !ok || !s.isRunning {
		return nil
	}
	next := s.cron.Entry(e.id).Next
	return &next
}

// run executes a job unless a previous run of it is still going.
func (s *Scheduler) run(e *entry) {
	s.mu.Lock()
	if e.running {
		s.mu.Unlock()
		log.Printf("[SCHEDULER] %s: skipped (previous run still active)", e.job.Name)
		return
	}
	e.running = true
	ctx := s.ctx
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		e.running = false
		s.mu.Unlock()
	}()

	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	if err := e.job.Run(ctx); err != nil {
		log.Printf("[SCHEDULER] %s: failed after %v: %v", e.job.Name, time.Since(start).Round(time.Millisecond), err)
		return
	}
	log.Printf("[SCHEDULER] %s: done in %v", e.job.Name, time.Since(start).Round(time.Millisecond))
}
