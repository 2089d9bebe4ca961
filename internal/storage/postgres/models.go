package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/msimamizi/internal/supervisor"
)

// RunModel maps to the "runs" table. The supervisor state is stored as a
// JSON document: runs are append-mostly snapshots, never queried by inner
// fields, so a serialized blob beats a normalized schema here.
type RunModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Objective   string    `gorm:"not null"`
	Status      string    `gorm:"not null;index"`
	Feedback    string
	State       []byte `gorm:"type:jsonb"`
	CreatedAt   time.Time `gorm:"index"`
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

func (RunModel) TableName() string { return "runs" }

func toRunModel(rec *supervisor.RunRecord) (*RunModel, error) {
	var state []byte
	if rec.State != nil {
		data, err := json.Marshal(rec.State)
		if err != nil {
			return nil, fmt.Errorf("marshaling run state: %w", err)
		}
		state = data
	}
	return &RunModel{
		ID:          rec.ID,
		Objective:   rec.Objective,
		Status:      string(rec.Status),
		Feedback:    rec.Feedback,
		State:       state,
		CreatedAt:   rec.CreatedAt,
		CompletedAt: rec.CompletedAt,
	}, nil
}

func toRunDomain(m *RunModel) (*supervisor.RunRecord, error) {
	rec := &supervisor.RunRecord{
		ID:          m.ID,
		Objective:   m.Objective,
		Status:      supervisor.RunStatus(m.Status),
		Feedback:    m.Feedback,
		CreatedAt:   m.CreatedAt,
		CompletedAt: m.CompletedAt,
	}
	if len(m.State) > 0 {
		var state supervisor.SupervisorState
		if err := json.Unmarshal(m.State, &state); err != nil {
			return nil, fmt.Errorf("unmarshaling run state for %s: %w", m.ID, err)
		}
		rec.State = &state
	}
	return rec, nil
}
