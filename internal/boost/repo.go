package boost

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agentarena/boost-ledger/pkg/db/models"
)

// AgentAmount pairs an agent with an aggregated boost amount.
type AgentAmount struct {
	AgentID uuid.UUID       `gorm:"column:agent_id"`
	Amount  decimal.Decimal `gorm:"column:amount"`
}

// WalletCompetition pairs a wallet with a competition it boosted in.
type WalletCompetition struct {
	Wallet        string    `gorm:"column:wallet"`
	CompetitionID uuid.UUID `gorm:"column:competition_id"`
}

// Repository manages persistence for balances, changes and agent aggregates.
// Every write is expected to run inside a caller-owned transaction via WithTx.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindBalance(ctx context.Context, wallet string, competitionID uuid.UUID) (*models.BoostBalance, error)
	FindBalanceByID(ctx context.Context, id uuid.UUID) (*models.BoostBalance, error)
	CreateBalance(ctx context.Context, balance *models.BoostBalance) (bool, error)
	CreateChange(ctx context.Context, change *models.BoostChange) (bool, error)
	FindChange(ctx context.Context, balanceID uuid.UUID, idempotencyKey []byte) (*models.BoostChange, error)
	ListChanges(ctx context.Context, balanceID uuid.UUID) ([]models.BoostChange, error)
	CreditBalance(ctx context.Context, balanceID uuid.UUID, amount decimal.Decimal) error
	DebitBalance(ctx context.Context, balanceID uuid.UUID, amount decimal.Decimal) (bool, error)
	UpsertAgentTotal(ctx context.Context, agentID, competitionID uuid.UUID, amount decimal.Decimal) error
	CreateAgentBoost(ctx context.Context, boost *models.AgentBoost) error
	ListAgentTotals(ctx context.Context, competitionID uuid.UUID) ([]models.AgentBoostTotal, error)
	SumUserBoosts(ctx context.Context, userID, competitionID uuid.UUID) ([]AgentAmount, error)
	WalletCompetitionsBetween(ctx context.Context, from, to time.Time) ([]WalletCompetition, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a boost repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindBalance(ctx context.Context, wallet string, competitionID uuid.UUID) (*models.BoostBalance, error) {
	var balance models.BoostBalance
	err := r.db.WithContext(ctx).
		Where("wallet = ? AND competition_id = ?", wallet, competitionID).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

func (r *repository) FindBalanceByID(ctx context.Context, id uuid.UUID) (*models.BoostBalance, error) {
	var balance models.BoostBalance
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

// CreateBalance inserts the row unless another writer created it first. The
// ON CONFLICT DO NOTHING form keeps the surrounding transaction usable after
// a lost race, which a raw unique violation would not.
func (r *repository) CreateBalance(ctx context.Context, balance *models.BoostBalance) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(balance)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CreateChange appends a ledger entry. Returns false when the
// (balance_id, idempotency_key) pair already exists, i.e. a replay.
func (r *repository) CreateChange(ctx context.Context, change *models.BoostChange) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(change)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindChange(ctx context.Context, balanceID uuid.UUID, idempotencyKey []byte) (*models.BoostChange, error) {
	var change models.BoostChange
	err := r.db.WithContext(ctx).
		Where("balance_id = ? AND idempotency_key = ?", balanceID, idempotencyKey).
		First(&change).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &change, nil
}

func (r *repository) ListChanges(ctx context.Context, balanceID uuid.UUID) ([]models.BoostChange, error) {
	var changes []models.BoostChange
	if err := r.db.WithContext(ctx).
		Where("balance_id = ?", balanceID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&changes).Error; err != nil {
		return nil, err
	}
	return changes, nil
}

func (r *repository) CreditBalance(ctx context.Context, balanceID uuid.UUID, amount decimal.Decimal) error {
	res := r.db.WithContext(ctx).
		Model(&models.BoostBalance{}).
		Where("id = ?", balanceID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("balance %s not found", balanceID)
	}
	return nil
}

// DebitBalance subtracts amount in a single guarded statement. Returns false
// when the balance does not cover the amount; the caller must treat that as a
// hard failure and roll back.
func (r *repository) DebitBalance(ctx context.Context, balanceID uuid.UUID, amount decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.BoostBalance{}).
		Where("id = ? AND balance >= ?", balanceID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpsertAgentTotal(ctx context.Context, agentID, competitionID uuid.UUID, amount decimal.Decimal) error {
	total := models.AgentBoostTotal{
		AgentID:       agentID,
		CompetitionID: competitionID,
		Total:         amount,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "agent_id"}, {Name: "competition_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"total":      gorm.Expr("agent_boost_totals.total + excluded.total"),
				"updated_at": time.Now(),
			}),
		}).
		Create(&total).Error
}

func (r *repository) CreateAgentBoost(ctx context.Context, boost *models.AgentBoost) error {
	return r.db.WithContext(ctx).Create(boost).Error
}

func (r *repository) ListAgentTotals(ctx context.Context, competitionID uuid.UUID) ([]models.AgentBoostTotal, error) {
	var totals []models.AgentBoostTotal
	if err := r.db.WithContext(ctx).
		Where("competition_id = ?", competitionID).
		Order("agent_id ASC").
		Find(&totals).Error; err != nil {
		return nil, err
	}
	return totals, nil
}

// SumUserBoosts aggregates a user's spends per agent from the change log.
// Spend deltas are negative, so the sum is negated to report positive amounts.
func (r *repository) SumUserBoosts(ctx context.Context, userID, competitionID uuid.UUID) ([]AgentAmount, error) {
	var rows []AgentAmount
	err := r.db.WithContext(ctx).
		Table("agent_boosts").
		Select("agent_boosts.agent_id AS agent_id, SUM(-boost_changes.delta_amount) AS amount").
		Joins("JOIN boost_changes ON boost_changes.id = agent_boosts.change_id").
		Where("agent_boosts.user_id = ? AND agent_boosts.competition_id = ?", userID, competitionID).
		Group("agent_boosts.agent_id").
		Order("agent_boosts.agent_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// WalletCompetitionsBetween lists the distinct wallet/competition pairs with
// at least one agent boost inside the inclusive window.
func (r *repository) WalletCompetitionsBetween(ctx context.Context, from, to time.Time) ([]WalletCompetition, error) {
	var rows []WalletCompetition
	err := r.db.WithContext(ctx).
		Table("agent_boosts").
		Select("boost_balances.wallet AS wallet, agent_boosts.competition_id AS competition_id").
		Joins("JOIN boost_changes ON boost_changes.id = agent_boosts.change_id").
		Joins("JOIN boost_balances ON boost_balances.id = boost_changes.balance_id").
		Where("agent_boosts.created_at >= ? AND agent_boosts.created_at <= ?", from, to).
		Group("boost_balances.wallet, agent_boosts.competition_id").
		Order("boost_balances.wallet ASC, agent_boosts.competition_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
