package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

const runLogSize = 200

// Service fires jobs when they are due. Jobs run one after another on the
// scheduling goroutine, so a slow script delays later jobs but never overlaps
// with itself.
type Service struct {
	onJob    JobHandler
	retryCfg RetryConfig
	tick     time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	jobs    []Job
	runLog  []RunLogEntry
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures a Service.
type Option func(*Service)

// WithRetryConfig overrides the default retry configuration.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(s *Service) { s.retryCfg = cfg }
}

// WithTick sets how often due jobs are checked. Default 1s.
func WithTick(d time.Duration) Option {
	return func(s *Service) { s.tick = d }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService validates jobs and computes their first run.
func NewService(jobs []Job, onJob JobHandler, opts ...Option) (*Service, error) {
	s := &Service{
		onJob:    onJob,
		retryCfg: DefaultRetryConfig(),
		tick:     time.Second,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}

	seen := make(map[string]bool, len(jobs))
	now := nowMS()
	for _, j := range jobs {
		if j.ID == "" || j.ScriptID == "" {
			return nil, fmt.Errorf("schedule needs id and scriptId")
		}
		if seen[j.ID] {
			return nil, fmt.Errorf("duplicate schedule id %q", j.ID)
		}
		seen[j.ID] = true
		if err := j.Schedule.Validate(); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", j.ID, err)
		}
		if j.Enabled {
			j.State.NextRunAtMS = s.computeNextRun(j.Schedule, now)
		}
		s.jobs = append(s.jobs, j)
	}
	return s, nil
}

// Start begins the scheduling loop. It stops with ctx or Stop.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true
	go s.runLoop(ctx, s.done)
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop halts the loop and waits for a running job to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info("scheduler stopped")
}

// ListJobs returns a copy of every job.
func (s *Service) ListJobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// RunJob triggers a job now, regardless of its schedule or enabled state.
// The next scheduled run is not moved.
func (s *Service) RunJob(ctx context.Context, jobID string) (RunLogEntry, error) {
	job, ok := s.job(jobID)
	if !ok {
		return RunLogEntry{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	s.logger.Info("schedule manual run", "id", job.ID, "script", job.ScriptID)
	return s.execute(ctx, job, false), nil
}

// GetRunLog returns recent entries for a job, or for all jobs when jobID is
// empty, newest first.
func (s *Service) GetRunLog(jobID string, limit int) []RunLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	var result []RunLogEntry
	for i := len(s.runLog) - 1; i >= 0 && len(result) < limit; i-- {
		if jobID == "" || s.runLog[i].JobID == jobID {
			result = append(result, s.runLog[i])
		}
	}
	return result
}

func (s *Service) job(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.ID == id {
			return j, true
		}
	}
	return Job{}, false
}

func (s *Service) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkJobs(ctx)
		}
	}
}

func (s *Service) checkJobs(ctx context.Context) {
	s.mu.Lock()
	now := nowMS()
	var due []Job
	for i := range s.jobs {
		j := &s.jobs[i]
		if j.Enabled && j.State.NextRunAtMS != nil && *j.State.NextRunAtMS <= now {
			// cleared so a slow run is not fired twice
			j.State.NextRunAtMS = nil
			due = append(due, *j)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		if ctx.Err() != nil {
			return
		}
		s.execute(ctx, j, true)
	}
}

// execute runs a job with retries and records the outcome. scheduled jobs
// get their next run computed afterwards.
func (s *Service) execute(ctx context.Context, job Job, scheduled bool) RunLogEntry {
	cfg := s.retryCfg
	if job.Retries > 0 {
		cfg.MaxRetries = job.Retries
	}

	s.logger.Info("schedule firing", "id", job.ID, "script", job.ScriptID)
	runID, attempts, err := ExecuteWithRetry(ctx, func() (string, error) {
		return s.onJob(ctx, &job)
	}, cfg)
	if attempts > 1 {
		s.logger.Info("schedule retried", "id", job.ID, "attempts", attempts, "success", err == nil)
	}

	now := nowMS()
	entry := RunLogEntry{Ts: now, JobID: job.ID, RunID: runID, Attempts: attempts, Status: "ok"}
	if err != nil {
		entry.Status = "error"
		entry.Error = err.Error()
		s.logger.Error("scheduled run failed", "id", job.ID, "run", runID, "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.jobs {
		j := &s.jobs[i]
		if j.ID != job.ID {
			continue
		}
		j.State.LastRunAtMS = &now
		j.State.LastRunID = runID
		j.State.LastStatus = entry.Status
		j.State.LastError = entry.Error
		if scheduled {
			j.State.NextRunAtMS = s.computeNextRun(j.Schedule, now)
			if j.State.NextRunAtMS == nil {
				j.Enabled = false
			}
		}
		break
	}
	s.runLog = append(s.runLog, entry)
	if len(s.runLog) > runLogSize {
		s.runLog = s.runLog[len(s.runLog)-runLogSize:]
	}
	return entry
}

func (s *Service) computeNextRun(schedule Schedule, now int64) *int64 {
	switch schedule.Kind {
	case KindAt:
		if schedule.AtMS > now {
			at := schedule.AtMS
			return &at
		}
		return nil

	case KindEvery:
		if schedule.EveryMS <= 0 {
			return nil
		}
		next := now + schedule.EveryMS
		return &next

	case KindCron:
		nextTime, err := gronx.NextTickAfter(schedule.Expr, time.UnixMilli(now), false)
		if err != nil {
			s.logger.Error("schedule: failed to compute next run", "expr", schedule.Expr, "error", err)
			return nil
		}
		next := nextTime.UnixMilli()
		return &next
	}
	return nil
}
