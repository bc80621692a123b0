// Package scheduler runs retention jobs on fixed intervals through a single
// sequential queue.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/starford/seedkeeper/internal/apperr"
	"github.com/starford/seedkeeper/internal/jobs"
)

// Entry is a job with its run interval.
type Entry struct {
	Job      jobs.Job
	Interval time.Duration
}

// Status describes one scheduled job.
type Status struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
	Next     time.Time     `json:"next"`
	LastRun  time.Time     `json:"last_run,omitzero"`
	LastErr  string        `json:"last_error,omitempty"`
	Queued   bool          `json:"queued"`
	Running  bool          `json:"running"`
}

type slot struct {
	job      jobs.Job
	interval time.Duration
	next     time.Time
	lastRun  time.Time
	lastErr  error
}

// Scheduler queues due jobs and runs them one at a time. A job is never
// queued twice.
type Scheduler struct {
	mu      sync.Mutex
	slots   map[string]*slot
	queue   []string
	queued  map[string]bool
	running string

	wake     chan struct{}
	tick     time.Duration
	now      func() time.Time
	logger   *slog.Logger
	onFinish func(jobs.Report, error)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTick sets how often due jobs are checked.
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		s.tick = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithOnFinish registers a callback run after every job.
func WithOnFinish(fn func(jobs.Report, error)) Option {
	return func(s *Scheduler) {
		s.onFinish = fn
	}
}

// New creates a Scheduler. Every entry is due immediately.
func New(entries []Entry, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		slots:  make(map[string]*slot),
		queued: make(map[string]bool),
		wake:   make(chan struct{}, 1),
		tick:   time.Second,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	now := s.now()
	for _, e := range entries {
		s.slots[e.Job.Name()] = &slot{job: e.Job, interval: e.Interval, next: now}
	}
	return s
}

// Run drives the scheduler until ctx is cancelled. A running job receives
// the cancellation and Run waits for it to return.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.work(ctx)
	}()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.enqueueDue()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-ticker.C:
			s.enqueueDue()
		}
	}
}

// Trigger queues name for an immediate run.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.slots[name]; !ok {
		return fmt.Errorf("%w: %s", apperr.ErrUnknownJob, name)
	}
	if s.queued[name] {
		return fmt.Errorf("%w: %s", apperr.ErrJobQueued, name)
	}
	s.pushLocked(name)
	return nil
}

// Replace swaps the job set. Jobs whose interval is unchanged keep their
// next-run time; new or changed jobs are due one interval from now.
func (s *Scheduler) Replace(entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	slots := make(map[string]*slot, len(entries))
	for _, e := range entries {
		name := e.Job.Name()
		sl := &slot{job: e.Job, interval: e.Interval, next: now.Add(e.Interval)}
		if old, ok := s.slots[name]; ok {
			sl.lastRun, sl.lastErr = old.lastRun, old.lastErr
			if old.interval == e.Interval {
				sl.next = old.next
			}
		}
		slots[name] = sl
	}
	s.slots = slots

	kept := s.queue[:0]
	for _, name := range s.queue {
		if _, ok := slots[name]; ok {
			kept = append(kept, name)
		} else {
			delete(s.queued, name)
		}
	}
	s.queue = kept
	s.logger.Info("scheduler: jobs replaced", slog.Int("jobs", len(slots)))
}

// Jobs reports the state of every scheduled job, ordered by name.
func (s *Scheduler) Jobs() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(s.slots))
	for name, sl := range s.slots {
		st := Status{
			Name:     name,
			Interval: sl.interval,
			Next:     sl.next,
			LastRun:  sl.lastRun,
			Queued:   s.queued[name],
			Running:  s.running == name,
		}
		if sl.lastErr != nil {
			st.LastErr = sl.lastErr.Error()
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) enqueueDue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	names := make([]string, 0, len(s.slots))
	for name := range s.slots {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sl := s.slots[name]
		if !now.Before(sl.next) && !s.queued[name] && s.running != name {
			s.pushLocked(name)
		}
	}
}

func (s *Scheduler) pushLocked(name string) {
	s.queue = append(s.queue, name)
	s.queued[name] = true
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pop takes the next job off the queue and marks it running.
func (s *Scheduler) pop() (jobs.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) > 0 {
		name := s.queue[0]
		s.queue = s.queue[1:]
		delete(s.queued, name)
		if sl, ok := s.slots[name]; ok {
			s.running = name
			return sl.job, true
		}
	}
	return nil, false
}

func (s *Scheduler) work(ctx context.Context) {
	for {
		job, ok := s.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				continue
			}
		}
		if ctx.Err() != nil {
			s.done(job.Name(), nil)
			return
		}
		report, err := job.Run(ctx)
		s.done(job.Name(), err)
		if s.onFinish != nil {
			s.onFinish(report, err)
		}
	}
}

func (s *Scheduler) done(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = ""
	sl, ok := s.slots[name]
	if !ok {
		return
	}
	now := s.now()
	sl.lastRun, sl.lastErr = now, err
	sl.next = now.Add(sl.interval)
	s.logger.Info("scheduler: job done, next run scheduled",
		slog.String("job", name), slog.Time("next", sl.next), slog.Duration("interval", sl.interval))
}
