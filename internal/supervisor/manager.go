package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager is the public API around the engine: it launches supervised runs in
// the background, tracks the live ones, and snapshots finished runs into the
// run store for gateways and the CLI to read back.
type Manager struct {
	engine *Engine
	store  RunStore
	roster []*Agent
	logger *slog.Logger

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
	live    map[uuid.UUID]*RunRecord
}

// NewManager creates a manager. A nil store falls back to the in-memory one.
func NewManager(engine *Engine, store RunStore, roster []*Agent, logger *slog.Logger) *Manager {
	if store == nil {
		store = NewInMemoryStore()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		engine:  engine,
		store:   store,
		roster:  roster,
		logger:  logger,
		cancels: make(map[uuid.UUID]context.CancelFunc),
		live:    make(map[uuid.UUID]*RunRecord),
	}
}

// Submit starts supervising an objective in the background and returns the
// run record immediately.
func (m *Manager) Submit(ctx context.Context, objective string) (*RunRecord, error) {
	if objective == "" {
		return nil, fmt.Errorf("empty objective")
	}

	rec := &RunRecord{
		ID:        uuid.New(),
		Objective: objective,
		Status:    RunRunning,
		CreatedAt: time.Now().UTC(),
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.mu.Lock()
	m.cancels[rec.ID] = cancel
	m.live[rec.ID] = rec
	m.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			m.mu.Lock()
			delete(m.cancels, rec.ID)
			delete(m.live, rec.ID)
			m.mu.Unlock()
		}()

		state, err := m.engine.Run(runCtx, objective, m.roster)
		m.mu.Lock()
		finalizeRecord(rec, state, err, runCtx.Err())
		m.mu.Unlock()

		m.persist(rec)
	}()

	return rec, nil
}

// Execute supervises an objective synchronously and returns the finished
// record. Used by the CLI one-shot mode and the streaming endpoint.
func (m *Manager) Execute(ctx context.Context, objective string) (*RunRecord, error) {
	if objective == "" {
		return nil, fmt.Errorf("empty objective")
	}

	rec := &RunRecord{
		ID:        uuid.New(),
		Objective: objective,
		Status:    RunRunning,
		CreatedAt: time.Now().UTC(),
	}

	state, err := m.engine.Run(ctx, objective, m.roster)
	finalizeRecord(rec, state, err, ctx.Err())
	m.persist(rec)

	if err != nil && ctx.Err() == nil {
		return rec, err
	}
	return rec, nil
}

// finalizeRecord stamps the terminal status onto a run record from the
// engine's outcome. Cancellation wins over errors, which win over review.
func finalizeRecord(rec *RunRecord, state *SupervisorState, err, ctxErr error) {
	now := time.Now().UTC()
	rec.State = state
	rec.CompletedAt = &now
	switch {
	case ctxErr != nil:
		rec.Status = RunCancelled
		rec.Feedback = "cancelled"
	case err != nil:
		rec.Status = RunRejected
		rec.Feedback = err.Error()
	case state.Review != nil && state.Review.Approved:
		rec.Status = RunApproved
		rec.Feedback = state.Review.Feedback
	default:
		rec.Status = RunRejected
		if state.Review != nil {
			rec.Feedback = state.Review.Feedback
		}
	}
}

func (m *Manager) persist(rec *RunRecord) {
	if saveErr := m.store.SaveRun(context.Background(), rec); saveErr != nil {
		m.logger.Error("failed to persist run",
			slog.String("run_id", rec.ID.String()),
			slog.String("error", saveErr.Error()),
		)
	}
}

// Status returns the record for a run, live or persisted. Live records are
// returned as copies so readers never race the completing goroutine.
func (m *Manager) Status(ctx context.Context, id uuid.UUID) (*RunRecord, error) {
	m.mu.Lock()
	rec, ok := m.live[id]
	if ok {
		cp := *rec
		m.mu.Unlock()
		return &cp, nil
	}
	m.mu.Unlock()
	return m.store.GetRun(ctx, id)
}

// List returns all persisted runs plus the live ones.
func (m *Manager) List(ctx context.Context) ([]*RunRecord, error) {
	recs, err := m.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	for _, rec := range m.live {
		cp := *rec
		recs = append(recs, &cp)
	}
	m.mu.Unlock()
	return recs, nil
}

// Cancel requests cancellation of a live run. The run aborts at the next
// phase boundary; in-flight agent calls settle first.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	cancel, ok := m.cancels[id]
	m.mu.Unlock()
	if !ok {
		if _, err := m.store.GetRun(ctx, id); err != nil {
			return fmt.Errorf("run not found: %w", err)
		}
		return nil // Already finished.
	}
	cancel()
	m.logger.InfoContext(ctx, "run cancellation requested", slog.String("run_id", id.String()))
	return nil
}
