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

	"github.com/jkaninda/msimamizi/internal/config"
	"github.com/jkaninda/msimamizi/internal/supervisor"
)

type fakeSubmitter struct {
	mu         sync.Mutex
	objectives []string
	err        error
}

func (f *fakeSubmitter) Submit(ctx context.Context, objective string) (*supervisor.RunRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.objectives = append(f.objectives, objective)
	return &supervisor.RunRecord{
		ID:        uuid.New(),
		Objective: objective,
		Status:    supervisor.RunRunning,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_FireSubmitsObjective(t *testing.T) {
	sub := &fakeSubmitter{}
	s := New(sub, nil, testLogger(), &config.SchedulerConfig{Enabled: true})

	s.fire(context.Background(), config.ScheduleConfig{
		Name:      "nightly-digest",
		Cron:      "0 2 * * *",
		Objective: "summarize yesterday's findings",
	})

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.objectives) != 1 {
		t.Fatalf("submissions = %d, want 1", len(sub.objectives))
	}
	if sub.objectives[0] != "summarize yesterday's findings" {
		t.Errorf("objective = %q", sub.objectives[0])
	}
}

func TestScheduler_FireSubmissionError(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("store unavailable")}
	s := New(sub, nil, testLogger(), &config.SchedulerConfig{Enabled: true})

	// Should log and return without panicking.
	s.fire(context.Background(), config.ScheduleConfig{
		Name:      "nightly-digest",
		Cron:      "0 2 * * *",
		Objective: "summarize yesterday's findings",
	})
}

func TestScheduler_StartDisabled(t *testing.T) {
	s := New(&fakeSubmitter{}, nil, testLogger(), nil)
	stop, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	stop()
}

func TestScheduler_StartInvalidCron(t *testing.T) {
	s := New(&fakeSubmitter{}, nil, testLogger(), &config.SchedulerConfig{
		Enabled: true,
		Schedules: []config.ScheduleConfig{
			{Name: "bad", Cron: "not a cron", Objective: "x"},
		},
	})
	if _, err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestScheduler_StartAndStop(t *testing.T) {
	s := New(&fakeSubmitter{}, nil, testLogger(), &config.SchedulerConfig{
		Enabled: true,
		Schedules: []config.ScheduleConfig{
			{Name: "hourly", Cron: "0 * * * *", Objective: "check feeds"},
		},
	})
	stop, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	stop()
}

func TestScheduler_NextRun(t *testing.T) {
	s := New(&fakeSubmitter{}, nil, testLogger(), nil)

	next, err := s.NextRun("0 2 * * *")
	if err != nil {
		t.Fatalf("NextRun error: %v", err)
	}
	if !next.After(time.Now().UTC()) {
		t.Errorf("next run %v not in the future", next)
	}
	if next.Hour() != 2 || next.Minute() != 0 {
		t.Errorf("next run %v, want 02:00", next)
	}

	if _, err := s.NextRun("garbage"); err == nil {
		t.Fatal("expected error for invalid expression")
	}
}
