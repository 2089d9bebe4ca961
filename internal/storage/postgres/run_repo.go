package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jkaninda/msimamizi/internal/supervisor"
)

// RunRepository implements supervisor.RunStore with GORM. The same
// implementation serves both the PostgreSQL and SQLite backends; GORM's
// dialects handle the SQL differences.
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a RunRepository.
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// SaveRun upserts a run snapshot. Submissions insert; completions overwrite
// the same row with the final state.
func (r *RunRepository) SaveRun(ctx context.Context, rec *supervisor.RunRecord) error {
	model, err := toRunModel(rec)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(model).Error; err != nil {
		return fmt.Errorf("saving run %s: %w", rec.ID, err)
	}
	return nil
}

func (r *RunRepository) GetRun(ctx context.Context, id uuid.UUID) (*supervisor.RunRecord, error) {
	var model RunModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("run %s not found", id)
		}
		return nil, fmt.Errorf("getting run %s: %w", id, err)
	}
	return toRunDomain(&model)
}

func (r *RunRepository) ListRuns(ctx context.Context) ([]*supervisor.RunRecord, error) {
	var models []RunModel
	if err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	recs := make([]*supervisor.RunRecord, 0, len(models))
	for i := range models {
		rec, err := toRunDomain(&models[i])
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// compile-time interface check
var _ supervisor.RunStore = (*RunRepository)(nil)
