package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func waitForStatus(t *testing.T, m *Manager, id uuid.UUID, want RunStatus) *RunRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := m.Status(context.Background(), id)
		if err == nil && rec.Status == want {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s never reached status %s", id, want)
	return nil
}

func TestManagerSubmit_CompletesAndPersists(t *testing.T) {
	engine := NewEngine(&stubBackend{}, testConfig(), nil)
	store := NewInMemoryStore()
	m := NewManager(engine, store, testAgents(), nil)

	rec, err := m.Submit(context.Background(), "research the topic")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != RunRunning {
		t.Errorf("initial status = %s, want running", rec.Status)
	}

	final := waitForStatus(t, m, rec.ID, RunApproved)
	if final.State == nil || final.State.CurrentPhase != PhaseComplete {
		t.Errorf("final state = %+v, want complete", final.State)
	}
	if final.CompletedAt == nil {
		t.Error("completed timestamp missing")
	}

	// Once finished the record comes from the store, not the live set.
	stored, err := store.GetRun(context.Background(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != RunApproved {
		t.Errorf("stored status = %s, want approved", stored.Status)
	}
}

func TestManagerSubmit_EmptyObjective(t *testing.T) {
	m := NewManager(NewEngine(&stubBackend{}, testConfig(), nil), nil, testAgents(), nil)
	if _, err := m.Submit(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty objective")
	}
}

func TestManagerCancel_AbortsAtPhaseBoundary(t *testing.T) {
	// A slow backend keeps the run in flight long enough to cancel it.
	backend := &stubBackend{delay: map[string]time.Duration{
		"researcher": 100 * time.Millisecond,
		"reviewer":   100 * time.Millisecond,
	}}
	engine := NewEngine(backend, Config{AgentTimeout: 5 * time.Second}, nil)
	m := NewManager(engine, nil, testAgents(), nil)

	rec, err := m.Submit(context.Background(), "research the topic")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Cancel(context.Background(), rec.ID); err != nil {
		t.Fatal(err)
	}

	final := waitForStatus(t, m, rec.ID, RunCancelled)
	if final.State == nil || final.State.Review == nil || final.State.Review.Approved {
		t.Errorf("cancelled run state = %+v", final.State)
	}
}

func TestManagerCancel_UnknownRun(t *testing.T) {
	m := NewManager(NewEngine(&stubBackend{}, testConfig(), nil), nil, testAgents(), nil)
	if err := m.Cancel(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestManagerList_IncludesLiveAndFinished(t *testing.T) {
	backend := &stubBackend{}
	m := NewManager(NewEngine(backend, testConfig(), nil), nil, testAgents(), nil)

	first, err := m.Submit(context.Background(), "research one thing")
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, m, first.ID, RunApproved)

	second, err := m.Submit(context.Background(), "research another thing")
	if err != nil {
		t.Fatal(err)
	}

	recs, err := m.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	ids := make(map[uuid.UUID]bool, len(recs))
	for _, r := range recs {
		ids[r.ID] = true
	}
	if !ids[first.ID] || !ids[second.ID] {
		t.Errorf("list missing runs: %v", ids)
	}
	waitForStatus(t, m, second.ID, RunApproved)
}

func TestInMemoryStore_CopiesOnRead(t *testing.T) {
	store := NewInMemoryStore()
	rec := &RunRecord{ID: uuid.New(), Objective: "obj", Status: RunRunning, CreatedAt: time.Now().UTC()}
	if err := store.SaveRun(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetRun(context.Background(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	got.Status = RunRejected

	again, err := store.GetRun(context.Background(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Status != RunRunning {
		t.Errorf("store leaked a mutable reference: status = %s", again.Status)
	}
}

func TestInMemoryStore_ListSortedByCreation(t *testing.T) {
	store := NewInMemoryStore()
	base := time.Now().UTC()
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	// Save out of order.
	for i, offset := range []int{2, 0, 1} {
		rec := &RunRecord{ID: ids[offset], Objective: "obj", CreatedAt: base.Add(time.Duration(offset) * time.Second)}
		if err := store.SaveRun(context.Background(), rec); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	recs, err := store.ListRuns(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("runs = %d, want 3", len(recs))
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].CreatedAt.Before(recs[i-1].CreatedAt) {
			t.Errorf("runs out of order at %d", i)
		}
	}
}
