package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/gapscan/pkg/logger"
)

// Options tunes retry and timeout behavior
type Options struct {
	MaxRetries int
	RetryDelay time.Duration
	RunTimeout time.Duration
}

var (
	// ErrJobRunning is returned by RunNow while the job is already executing
	ErrJobRunning = errors.New("job already running")
	// ErrStopped is returned by RunNow after Stop
	ErrStopped = errors.New("scheduler stopped")
)

// Scheduler runs jobs on cron schedules. A run still in progress when the
// job is triggered again, by a tick or by RunNow, is skipped, never
// overlapped.
// ⭐ SSOT: scheduling is managed here only
type Scheduler struct {
	cron    *cron.Cron
	logger  *logger.Logger
	opts    Options
	jobs    map[string]Job
	running map[string]*sync.Mutex
	history map[string]*runLog
	mu      sync.RWMutex
	stopped bool
	manual  sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler
func New(log *logger.Logger, opts Options) *Scheduler {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 10 * time.Second
	}

	cl := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		logger:  log,
		opts:    opts,
		jobs:    make(map[string]Job),
		running: make(map[string]*sync.Mutex),
		history: make(map[string]*runLog),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddJob registers a job on its schedule
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already exists", name)
	}

	if _, err := s.cron.AddFunc(job.Schedule(), func() { s.runExclusive(job) }); err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = job
	s.running[name] = &sync.Mutex{}
	s.history[name] = &runLog{}

	s.logger.WithFields(logger.Fields{
		"job":      name,
		"schedule": job.Schedule(),
	}).Info("Job added to scheduler")

	return nil
}

// Start starts the cron loop
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop cancels running jobs and waits for them, RunNow calls included
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
	s.manual.Wait()
	s.logger.Info("Scheduler stopped")
}

// RunNow runs a job synchronously, outside its schedule. It returns
// ErrJobRunning instead of overlapping a run already in progress.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	job, exists := s.jobs[name]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("job %s not found", name)
	}
	s.manual.Add(1)
	s.mu.Unlock()
	defer s.manual.Done()

	r, ran := s.runExclusive(job)
	if !ran {
		return fmt.Errorf("job %s: %w", name, ErrJobRunning)
	}
	if !r.OK() {
		return fmt.Errorf("job %s failed: %s", name, r.Err)
	}
	return nil
}

// runExclusive runs job unless another run of it is in progress
func (s *Scheduler) runExclusive(job Job) (Run, bool) {
	s.mu.RLock()
	lock := s.running[job.Name()]
	s.mu.RUnlock()

	if !lock.TryLock() {
		s.logger.WithField("job", job.Name()).Info("Job still running, skipped")
		return Run{}, false
	}
	defer lock.Unlock()
	return s.runJob(job), true
}

// runJob executes a job with retries and records the run
func (s *Scheduler) runJob(job Job) Run {
	run := Run{Job: job.Name(), Started: time.Now()}
	log := s.logger.WithField("job", run.Job)
	log.Debug("Job started")

	var lastErr error
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		if s.ctx.Err() != nil {
			lastErr = s.ctx.Err()
			break
		}

		run.Attempts++
		if lastErr = s.runOnce(job); lastErr == nil {
			break
		}

		log.WithError(lastErr).WithField("attempt", run.Attempts).Warn("Job execution failed")

		if attempt < s.opts.MaxRetries {
			t := time.NewTimer(s.opts.RetryDelay)
			select {
			case <-s.ctx.Done():
			case <-t.C:
			}
			t.Stop()
		}
	}

	run.Finished = time.Now()
	if lastErr != nil {
		run.Err = lastErr.Error()
	}

	s.mu.Lock()
	if l, ok := s.history[run.Job]; ok {
		l.add(run)
	}
	s.mu.Unlock()

	fields := logger.Fields{"duration": run.Duration(), "attempts": run.Attempts}
	if run.OK() {
		log.WithFields(fields).Debug("Job completed")
	} else {
		log.WithFields(fields).Error("Job failed after all retries")
	}
	return run
}

func (s *Scheduler) runOnce(job Job) error {
	ctx := s.ctx
	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}
	return job.Run(ctx)
}

// History returns a job's recent runs, oldest first
func (s *Scheduler) History(name string) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.history[name]
	if !ok {
		return nil, fmt.Errorf("job %s not found", name)
	}
	return l.snapshot(), nil
}

// JobStats summarizes one job
type JobStats struct {
	JobName      string        `json:"job_name"`
	Schedule     string        `json:"schedule"`
	TotalRuns    int           `json:"total_runs"`
	SuccessRate  float64       `json:"success_rate"`
	FailStreak   int           `json:"fail_streak"`
	LastRun      *time.Time    `json:"last_run,omitempty"`
	LastDuration time.Duration `json:"last_duration,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns statistics for all jobs
func (s *Scheduler) Stats() map[string]JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]JobStats, len(s.history))
	for name, l := range s.history {
		st := JobStats{
			JobName:     name,
			Schedule:    s.jobs[name].Schedule(),
			TotalRuns:   l.count,
			SuccessRate: l.successRate(),
			FailStreak:  l.failureStreak(),
		}
		if last, ok := l.last(); ok {
			started := last.Started
			st.LastRun = &started
			st.LastDuration = last.Duration()
			st.LastError = last.Err
		}
		stats[name] = st
	}
	return stats
}

// cronLogger routes robfig/cron logs to our logger
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kv(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(kv(keysAndValues)).Error("cron: " + msg)
}

func kv(pairs []interface{}) logger.Fields {
	fields := make(logger.Fields, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		fields[fmt.Sprint(pairs[i])] = pairs[i+1]
	}
	return fields
}
