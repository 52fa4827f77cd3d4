package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aclarkson2013/boz-weather-trader/internal/model"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeJob struct {
	name string
	run  func(ctx context.Context) error
}

func (f fakeJob) Name() string                  { return f.name }
func (f fakeJob) Run(ctx context.Context) error { return f.run(ctx) }

type memLogStore struct {
	mu      sync.Mutex
	started []model.LogEntry
	outcome string
	errText string
}

func (m *memLogStore) InsertLogEntry(_ context.Context, entry model.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, entry)
	return nil
}

func (m *memLogStore) FinishLogEntry(_ context.Context, _ uuid.UUID, _ time.Time, outcome, errorText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcome = outcome
	m.errText = errorText
	return nil
}

func (m *memLogStore) snapshot() (int, string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.started), m.outcome, m.errText
}

func TestRunNowRecordsSuccess(t *testing.T) {
	logs := &memLogStore{}
	s := New(testLogger(), logs)

	var ran bool
	job := fakeJob{name: "test-job", run: func(ctx context.Context) error {
		ran = true
		return nil
	}}
	s.RunNow(job)

	if !ran {
		t.Fatal("job.Run was never called")
	}
	n, outcome, _ := logs.snapshot()
	if n != 1 {
		t.Fatalf("started entries = %d, want 1", n)
	}
	if outcome != "success" {
		t.Errorf("outcome = %q, want success", outcome)
	}
}

func TestRunNowRecordsFailure(t *testing.T) {
	logs := &memLogStore{}
	s := New(testLogger(), logs)

	job := fakeJob{name: "failing-job", run: func(ctx context.Context) error {
		return errors.New("boom")
	}}
	s.RunNow(job)

	_, outcome, errText := logs.snapshot()
	if outcome != "failure" {
		t.Errorf("outcome = %q, want failure", outcome)
	}
	if errText != "boom" {
		t.Errorf("errText = %q, want boom", errText)
	}
}

func TestDispatchAbandonsOnHardTimeout(t *testing.T) {
	logs := &memLogStore{}
	s := New(testLogger(), logs)

	blocked := make(chan struct{})
	job := fakeJob{name: "slow-job", run: func(ctx context.Context) error {
		<-ctx.Done()
		close(blocked)
		return ctx.Err()
	}}

	s.dispatch(entry{job: job, softTimeout: 5 * time.Millisecond, hardTimeout: 10 * time.Millisecond})

	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatal("job goroutine never observed context cancellation")
	}

	_, outcome, _ := logs.snapshot()
	if outcome != "abandoned" {
		t.Errorf("outcome = %q, want abandoned", outcome)
	}
}

func TestAddJobWithTimeoutsRejectsBadSchedule(t *testing.T) {
	s := New(testLogger(), nil)
	job := fakeJob{name: "j", run: func(ctx context.Context) error { return nil }}
	if err := s.AddJobWithTimeouts("not a schedule", job, time.Second, time.Second); err == nil {
		t.Fatal("want error for malformed cron schedule")
	}
}

func TestDispatchRetriesOnFailureThenSucceeds(t *testing.T) {
	logs := &memLogStore{}
	s := New(testLogger(), logs)

	var attempts int
	job := fakeJob{name: "flaky-job", run: func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}}

	s.dispatch(entry{job: job, softTimeout: time.Second, hardTimeout: time.Second, maxRetries: 3, backoff: time.Millisecond})

	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	_, outcome, _ := logs.snapshot()
	if outcome != "success" {
		t.Errorf("final outcome = %q, want success", outcome)
	}
}

func TestDispatchGivesUpAfterMaxRetries(t *testing.T) {
	logs := &memLogStore{}
	s := New(testLogger(), logs)

	var attempts int
	job := fakeJob{name: "always-failing-job", run: func(ctx context.Context) error {
		attempts++
		return errors.New("boom")
	}}

	s.dispatch(entry{job: job, softTimeout: time.Second, hardTimeout: time.Second, maxRetries: 2, backoff: time.Millisecond})

	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3 (1 initial + 2 retries)", attempts)
	}
	_, outcome, _ := logs.snapshot()
	if outcome != "failure" {
		t.Errorf("final outcome = %q, want failure", outcome)
	}
}

func TestRegisterDefaultsSkipsNilJobs(t *testing.T) {
	s := New(testLogger(), nil)
	job := fakeJob{name: "trading-cycle", run: func(ctx context.Context) error { return nil }}
	if err := RegisterDefaults(s, Jobs{TradingCycle: job}); err != nil {
		t.Fatalf("RegisterDefaults: %v", err)
	}
}
