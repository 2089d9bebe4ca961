package sqlite

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/msimamizi/internal/supervisor"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRunRoundTrip(t *testing.T) {
	s := openTestStore(t)
	runs := s.Runs()

	state := supervisor.NewState("investigate the outage",
		[]*supervisor.Agent{{ID: "researcher", Role: supervisor.RoleResearcher}},
		supervisor.Config{})
	state.CurrentPhase = supervisor.PhaseComplete
	state.Review = &supervisor.ReviewOutcome{Approved: true, Feedback: "approved"}

	now := time.Now().UTC().Truncate(time.Millisecond)
	rec := &supervisor.RunRecord{
		ID:          uuid.New(),
		Objective:   "investigate the outage",
		Status:      supervisor.RunApproved,
		Feedback:    "approved",
		State:       state,
		CreatedAt:   now,
		CompletedAt: &now,
	}
	if err := runs.SaveRun(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	got, err := runs.GetRun(context.Background(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != supervisor.RunApproved || got.Objective != rec.Objective {
		t.Errorf("round trip = %+v", got)
	}
	if got.State == nil || got.State.CurrentPhase != supervisor.PhaseComplete {
		t.Errorf("state did not survive: %+v", got.State)
	}
	if got.State.Review == nil || !got.State.Review.Approved {
		t.Errorf("review did not survive: %+v", got.State)
	}
}

func TestSaveRunUpsert(t *testing.T) {
	s := openTestStore(t)
	runs := s.Runs()

	rec := &supervisor.RunRecord{
		ID:        uuid.New(),
		Objective: "obj",
		Status:    supervisor.RunRunning,
		CreatedAt: time.Now().UTC(),
	}
	if err := runs.SaveRun(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	rec.Status = supervisor.RunRejected
	rec.Feedback = "Too many errors: 5"
	if err := runs.SaveRun(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	got, err := runs.GetRun(context.Background(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != supervisor.RunRejected || got.Feedback != "Too many errors: 5" {
		t.Errorf("upsert lost fields: %+v", got)
	}

	all, err := runs.ListRuns(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("runs = %d, want 1 after upsert", len(all))
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Runs().GetRun(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestListRunsOrdered(t *testing.T) {
	s := openTestStore(t)
	runs := s.Runs()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		rec := &supervisor.RunRecord{
			ID:        uuid.New(),
			Objective: "obj",
			Status:    supervisor.RunApproved,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := runs.SaveRun(context.Background(), rec); err != nil {
			t.Fatal(err)
		}
	}

	all, err := runs.ListRuns(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("runs = %d, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.Before(all[i-1].CreatedAt) {
			t.Errorf("runs out of order at %d", i)
		}
	}
}
