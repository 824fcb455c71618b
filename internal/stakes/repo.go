package stakes

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agentarena/boost-ledger/pkg/db/models"
)

// Repository manages stake mirrors and their award audit rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Upsert(ctx context.Context, stake *models.Stake) error
	FindByID(ctx context.Context, id uint64) (*models.Stake, error)
	ListUnawarded(ctx context.Context, competitionID uuid.UUID, limit int) ([]models.Stake, error)
	CreateAward(ctx context.Context, award *models.StakeBoostAward) error
	FindAward(ctx context.Context, competitionID uuid.UUID, stakeID uint64) (*models.StakeBoostAward, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a stake repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Upsert mirrors a stake position from the staking subsystem. The id is the
// on-chain position id, so redelivered syncs overwrite in place.
func (r *repository) Upsert(ctx context.Context, stake *models.Stake) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"wallet", "amount", "staked_at", "can_unstake_after", "updated_at"}),
		}).
		Create(stake).Error
}

func (r *repository) FindByID(ctx context.Context, id uint64) (*models.Stake, error) {
	var stake models.Stake
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&stake).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &stake, nil
}

// ListUnawarded returns stakes with no award row for the competition yet,
// oldest positions first.
func (r *repository) ListUnawarded(ctx context.Context, competitionID uuid.UUID, limit int) ([]models.Stake, error) {
	var rows []models.Stake
	query := r.db.WithContext(ctx).
		Table("stakes").
		Select("stakes.*").
		Joins("LEFT JOIN stake_boost_awards ON stake_boost_awards.stake_id = stakes.id AND stake_boost_awards.competition_id = ?", competitionID).
		Where("stake_boost_awards.id IS NULL").
		Order("stakes.id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CreateAward(ctx context.Context, award *models.StakeBoostAward) error {
	return r.db.WithContext(ctx).Create(award).Error
}

func (r *repository) FindAward(ctx context.Context, competitionID uuid.UUID, stakeID uint64) (*models.StakeBoostAward, error) {
	var award models.StakeBoostAward
	err := r.db.WithContext(ctx).
		Where("competition_id = ? AND stake_id = ?", competitionID, stakeID).
		First(&award).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &award, nil
}
