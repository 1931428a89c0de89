// Package sched runs the periodic job table. Each job has an interval
// and an expiry; runs of different jobs proceed in parallel but
// repeated triggers of one job never overlap.
package sched

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/forestwatch/forestwatch/internal/config"
	"github.com/forestwatch/forestwatch/internal/metrics"
)

// JobFunc is one job body. It must honor ctx cancellation; a run whose
// context expires is abandoned, not awaited.
type JobFunc func(ctx context.Context) error

// State is the per-job state machine: Idle -> Running -> {Idle, Failed}.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateFailed  State = "failed"
)

// JobStatus is a point-in-time view of one job for the status API.
type JobStatus struct {
	Name      string        `json:"name"`
	State     State         `json:"state"`
	Interval  time.Duration `json:"interval"`
	LastStart time.Time     `json:"last_start,omitempty"`
	LastEnd   time.Time     `json:"last_end,omitempty"`
	LastError string        `json:"last_error,omitempty"`
	Runs      uint64        `json:"runs"`
	Skips     uint64        `json:"skips"`
}

type job struct {
	name string
	cfg  config.Job
	fn   JobFunc

	mu        sync.Mutex
	state     State
	lastStart time.Time
	lastEnd   time.Time
	lastErr   string
	runs      uint64
	skips     uint64
}

// Scheduler drives the job table.
type Scheduler struct {
	jobs []*job
	log  zerolog.Logger
	wg   sync.WaitGroup
}

// New creates an empty scheduler.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{log: log.With().Str("component", "sched").Logger()}
}

// Register adds a job. Must be called before Start.
func (s *Scheduler) Register(name string, cfg config.Job, fn JobFunc) {
	s.jobs = append(s.jobs, &job{
		name:  name,
		cfg:   cfg,
		fn:    fn,
		state: StateIdle,
	})
}

// Start launches one trigger goroutine per job. The trigger loop never
// blocks on a run: each run executes in its own goroutine. Start
// returns immediately; Stop waits for the trigger loops to exit.
func (s *Scheduler) Start(ctx context.Context) {
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.trigger(ctx, j)
	}
	s.log.Info().Int("jobs", len(s.jobs)).Msg("scheduler started")
}

// Stop waits for the trigger loops. In-flight runs are cancelled
// through the context passed to Start.
func (s *Scheduler) Stop() {
	s.wg.Wait()
}

// RunNow fires the named job immediately, subject to the same
// no-overlap rule as a timed trigger. Returns false for unknown jobs.
func (s *Scheduler) RunNow(ctx context.Context, name string) bool {
	for _, j := range s.jobs {
		if j.name == name {
			s.fire(ctx, j)
			return true
		}
	}
	return false
}

// Snapshot reports the current status of every job.
func (s *Scheduler) Snapshot() []JobStatus {
	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		j.mu.Lock()
		out = append(out, JobStatus{
			Name:      j.name,
			State:     j.state,
			Interval:  j.cfg.Interval,
			LastStart: j.lastStart,
			LastEnd:   j.lastEnd,
			LastError: j.lastErr,
			Runs:      j.runs,
			Skips:     j.skips,
		})
		j.mu.Unlock()
	}
	return out
}

func (s *Scheduler) trigger(ctx context.Context, j *job) {
	defer s.wg.Done()

	// Anchored jobs hold until their wall-clock slot; the interval then
	// keeps them on it (daily and weekly intervals preserve the phase).
	if next, ok := j.cfg.NextAnchor(time.Now()); ok {
		s.log.Info().Str("job", j.name).Time("first_run", next).Msg("job anchored to wall clock")
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
			s.fire(ctx, j)
		}
	}

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, j)
		}
	}
}

// fire starts one run unless the previous run of the same job is still
// in flight, in which case the tick is dropped and logged.
func (s *Scheduler) fire(ctx context.Context, j *job) {
	j.mu.Lock()
	if j.state == StateRunning {
		j.skips++
		j.mu.Unlock()
		metrics.JobSkips.WithLabelValues(j.name).Inc()
		s.log.Warn().Str("job", j.name).Msg("previous run still in flight, skipping tick")
		return
	}
	j.state = StateRunning
	j.lastStart = time.Now()
	j.runs++
	j.mu.Unlock()

	go s.execute(ctx, j)
}

func (s *Scheduler) execute(ctx context.Context, j *job) {
	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, j.cfg.Expiry)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- j.fn(runCtx)
	}()

	var err error
	result := "ok"
	select {
	case err = <-done:
		if err != nil {
			result = "failed"
		}
	case <-runCtx.Done():
		// The run exceeded its expiry or the daemon is shutting down.
		// Abandon it: the body goroutine drains into the buffered
		// channel whenever it finishes.
		err = runCtx.Err()
		result = "failed"
		if errors.Is(err, context.DeadlineExceeded) {
			result = "expired"
		}
	}

	elapsed := time.Since(start)
	metrics.JobRuns.WithLabelValues(j.name, result).Inc()
	metrics.JobDuration.WithLabelValues(j.name).Observe(elapsed.Seconds())

	j.mu.Lock()
	j.lastEnd = time.Now()
	if err != nil {
		j.state = StateFailed
		j.lastErr = err.Error()
	} else {
		j.state = StateIdle
		j.lastErr = ""
	}
	j.mu.Unlock()

	evt := s.log.Info()
	if err != nil {
		evt = s.log.Error().Err(err)
	}
	evt.Str("job", j.name).Str("result", result).Dur("elapsed", elapsed).Msg("job run finished")
}
