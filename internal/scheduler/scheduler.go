// Package scheduler drives the periodic job graph (weather fetch, prediction
// fusion, trading cycle, pending-trade expiry, settlement, weekly retrain)
// off a single cron clock. The Job interface and Scheduler shape are grounded
// on aristath-sentinel's internal/scheduler (robfig/cron/v3 wrapper around a
// Run/Name job interface), extended here with soft/hard run timeouts,
// per-job retry/backoff, and acks-late log bookkeeping matching the Celery
// beat config this replaces.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/aclarkson2013/boz-weather-trader/internal/model"
)

// Job is one schedulable unit of work. Run must respect ctx cancellation: it
// is canceled at the job's hard time limit.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Default soft/hard time limits and retry policy, used by RunNow's ad hoc
// manual "run job now" path, by AddJob (all four) and by
// AddJobWithTimeouts (the retry pair). Jobs registered through
// RegisterDefaults carry their own table-driven timeouts and retry policy
// instead (see cadence.go).
const (
	DefaultSoftTimeout = 5 * time.Minute
	DefaultHardTimeout = 6 * time.Minute
	DefaultMaxRetries  = 0
	DefaultBackoff     = 0 * time.Second
)

// LogStore persists one LogEntry row per job run. The row is inserted before
// the job starts and updated after it finishes (or is abandoned), so a
// crash mid-run leaves a queryable "started, never finished" row — the
// acks-late equivalent of Celery's task_acks_late=True, where a task is
// only acknowledged off the queue after it completes. A retried attempt
// records an intermediate "retry" outcome before the next attempt begins.
type LogStore interface {
	InsertLogEntry(ctx context.Context, entry model.LogEntry) error
	FinishLogEntry(ctx context.Context, id uuid.UUID, finishedAt time.Time, outcome, errorText string) error
}

// entry pairs a registered job with its configured timeouts and retry
// policy. maxRetries is the number of retries *after* the first attempt
// (so maxRetries=3 means up to 4 total attempts); backoff is the fixed
// delay between attempts, matching the Celery originals' constant
// default_retry_delay rather than an exponential scheme.
type entry struct {
	job         Job
	softTimeout time.Duration
	hardTimeout time.Duration
	maxRetries  int
	backoff     time.Duration
}

// Scheduler manages the cron clock and every registered job.
type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger
	logs LogStore
}

// New builds a Scheduler. logs may be nil (run history then isn't persisted,
// only logged).
func New(log *slog.Logger, logs LogStore) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log.With("component", "scheduler"),
		logs: logs,
	}
}

// Start starts the cron clock; registered jobs begin firing on their
// schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop waits for in-flight cron dispatches to return, then stops the clock.
// It does not wait for abandoned (hard-timeout-exceeded) job goroutines,
// which cannot be forcibly killed and are left to exit on their own. A
// dispatch currently sleeping out a retry backoff is also not interrupted;
// it finishes its remaining attempts before Stop's wait unblocks.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}

// AddJob registers job on a standard 5-field cron schedule with the default
// soft/hard timeouts and no retries.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	return s.AddJobWithTimeouts(schedule, job, DefaultSoftTimeout, DefaultHardTimeout)
}

// AddJobWithTimeouts registers job with explicit soft/hard timeouts and no
// retries.
func (s *Scheduler) AddJobWithTimeouts(schedule string, job Job, softTimeout, hardTimeout time.Duration) error {
	return s.AddJobFull(schedule, job, softTimeout, hardTimeout, DefaultMaxRetries, DefaultBackoff)
}

// AddJobFull registers job with an explicit timeout and retry policy,
// matching one row of the cadence table in cadence.go.
func (s *Scheduler) AddJobFull(schedule string, job Job, softTimeout, hardTimeout time.Duration, maxRetries int, backoff time.Duration) error {
	e := entry{job: job, softTimeout: softTimeout, hardTimeout: hardTimeout, maxRetries: maxRetries, backoff: backoff}
	_, err := s.cron.AddFunc(schedule, func() { s.dispatch(e) })
	if err != nil {
		return err
	}
	s.log.Info("job registered", "job", job.Name(), "schedule", schedule,
		"soft_timeout", softTimeout, "hard_timeout", hardTimeout,
		"max_retries", maxRetries, "backoff", backoff)
	return nil
}

// RunNow runs a job immediately, outside its schedule, with the default
// timeouts and no retries. Used by manual "run job now" operator actions.
func (s *Scheduler) RunNow(job Job) {
	s.dispatch(entry{job: job, softTimeout: DefaultSoftTimeout, hardTimeout: DefaultHardTimeout,
		maxRetries: DefaultMaxRetries, backoff: DefaultBackoff})
}

// dispatch runs one job instance end to end, retrying on failure up to
// e.maxRetries times with a fixed e.backoff delay between attempts — the
// single-process equivalent of a Celery task calling retry(delay) on
// exception. Each non-final failed attempt is logged with outcome "retry";
// the final attempt's outcome (success/failure/abandoned) is what persists
// as the row's terminal state.
func (s *Scheduler) dispatch(e entry) {
	for attempt := 0; ; attempt++ {
		outcome, runErr := s.attempt(e, attempt)
		if outcome == "success" || attempt >= e.maxRetries {
			return
		}
		s.log.Warn("job failed, retrying after backoff",
			"job", e.job.Name(), "attempt", attempt+1, "max_retries", e.maxRetries,
			"backoff", e.backoff, "error", runErr)
		time.Sleep(e.backoff)
	}
}

// attempt runs a single try of e.job, persisting its own LogEntry row.
// final reports whether this is the last attempt the caller will make,
// which determines whether a failure is logged as a terminal outcome or
// as an intermediate "retry".
func (s *Scheduler) attempt(e entry, attemptNum int) (string, error) {
	start := time.Now().UTC()
	logID := uuid.New()
	ctx := context.Background()
	if s.logs != nil {
		if err := s.logs.InsertLogEntry(ctx, model.LogEntry{ID: logID, JobName: e.job.Name(), StartedAt: start}); err != nil {
			s.log.Error("failed to record job start", "job", e.job.Name(), "error", err)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, e.hardTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- e.job.Run(runCtx)
	}()

	outcome, runErr := s.wait(e, done, runCtx)
	final := outcome == "success" || attemptNum >= e.maxRetries
	s.finish(ctx, logID, e.job.Name(), start, outcome, runErr, final)
	return outcome, runErr
}

func (s *Scheduler) wait(e entry, done <-chan error, runCtx context.Context) (string, error) {
	softTimer := time.NewTimer(e.softTimeout)
	defer softTimer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return "failure", err
		}
		return "success", nil
	case <-softTimer.C:
		s.log.Warn("job exceeded soft time limit, allowing it to continue to hard limit",
			"job", e.job.Name(), "soft_timeout", e.softTimeout)
	}

	select {
	case err := <-done:
		if err != nil {
			return "failure", err
		}
		return "success", nil
	case <-runCtx.Done():
		s.log.Error("job exceeded hard time limit, abandoning", "job", e.job.Name(), "hard_timeout", e.hardTimeout)
		return "abandoned", runCtx.Err()
	}
}

// finish logs and records one attempt's outcome. A non-final failure or
// abandonment is persisted as "retry" so the log reads as an in-progress
// retry sequence rather than a false terminal failure.
func (s *Scheduler) finish(ctx context.Context, logID uuid.UUID, name string, start time.Time, outcome string, runErr error, final bool) {
	duration := time.Since(start)
	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}

	persistedOutcome := outcome
	if !final && outcome != "success" {
		persistedOutcome = "retry"
	}

	logFn := s.log.Info
	if outcome != "success" {
		logFn = s.log.Warn
	}
	logFn("job attempt finished", "job", name, "outcome", persistedOutcome, "duration", duration)

	if s.logs == nil {
		return
	}
	if err := s.logs.FinishLogEntry(ctx, logID, time.Now().UTC(), persistedOutcome, errText); err != nil {
		s.log.Error("failed to record job finish", "job", name, "error", err)
	}
}
