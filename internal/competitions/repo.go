package competitions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agentarena/boost-ledger/pkg/db/models"
)

// Repository reads competition metadata. The ledger never owns competition
// lifecycle; rows arrive through migrations or upstream sync.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Competition, error)
	ListBoostable(ctx context.Context, at time.Time) ([]models.Competition, error)
	Upsert(ctx context.Context, competition *models.Competition) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a competition repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Competition, error) {
	var competition models.Competition
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&competition).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &competition, nil
}

// ListBoostable returns competitions whose boost window contains the instant.
// A missing bound leaves that side of the window open.
func (r *repository) ListBoostable(ctx context.Context, at time.Time) ([]models.Competition, error) {
	var rows []models.Competition
	err := r.db.WithContext(ctx).
		Where("boost_start_date IS NULL OR boost_start_date <= ?", at).
		Where("boost_end_date IS NULL OR boost_end_date >= ?", at).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Upsert(ctx context.Context, competition *models.Competition) error {
	return r.db.WithContext(ctx).Save(competition).Error
}
