package stakes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/agentarena/boost-ledger/pkg/db/models"
	pkgerrors "github.com/agentarena/boost-ledger/pkg/errors"
	"github.com/agentarena/boost-ledger/pkg/types"
)

// SyncStakeInput mirrors one stake position from the staking subsystem.
type SyncStakeInput struct {
	StakeID         uint64
	Wallet          types.Wallet
	Amount          decimal.Decimal
	StakedAt        time.Time
	CanUnstakeAfter time.Time
}

// RecordAwardInput links a stake to the ledger change that paid it.
type RecordAwardInput struct {
	CompetitionID uuid.UUID
	StakeID       uint64
	ChangeID      uuid.UUID
	BaseAmount    decimal.Decimal
	Multiplier    decimal.Decimal
}

// Service exposes stake mirror and award audit operations.
type Service interface {
	SyncStake(ctx context.Context, input SyncStakeInput) (*models.Stake, error)
	Get(ctx context.Context, stakeID uint64) (*models.Stake, error)
	Unawarded(ctx context.Context, competitionID uuid.UUID, limit int) ([]models.Stake, error)
	RecordStakeBoostAward(ctx context.Context, tx *gorm.DB, input RecordAwardInput) (*models.StakeBoostAward, error)
}

type service struct {
	repo Repository
}

// NewService wires a stake service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("stakes repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) SyncStake(ctx context.Context, input SyncStakeInput) (*models.Stake, error) {
	if input.StakeID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stake id is required")
	}
	wallet, err := types.ParseWallet(string(input.Wallet))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid wallet")
	}
	if input.Amount.Sign() <= 0 || !input.Amount.IsInteger() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stake amount must be a positive whole number of base units")
	}
	if input.StakedAt.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "staked at is required")
	}

	stake := &models.Stake{
		ID:              input.StakeID,
		Wallet:          string(wallet),
		Amount:          input.Amount,
		StakedAt:        input.StakedAt,
		CanUnstakeAfter: input.CanUnstakeAfter,
	}
	if err := s.repo.Upsert(ctx, stake); err != nil {
		return nil, err
	}
	return stake, nil
}

func (s *service) Get(ctx context.Context, stakeID uint64) (*models.Stake, error) {
	if stakeID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stake id is required")
	}
	stake, err := s.repo.FindByID(ctx, stakeID)
	if err != nil {
		return nil, err
	}
	if stake == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "stake not found")
	}
	return stake, nil
}

func (s *service) Unawarded(ctx context.Context, competitionID uuid.UUID, limit int) ([]models.Stake, error) {
	if competitionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "competition id is required")
	}
	return s.repo.ListUnawarded(ctx, competitionID, limit)
}

// RecordStakeBoostAward writes the audit row inside the caller's transaction
// so it commits together with the ledger credit it references.
func (s *service) RecordStakeBoostAward(ctx context.Context, tx *gorm.DB, input RecordAwardInput) (*models.StakeBoostAward, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if input.CompetitionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "competition id is required")
	}
	if input.StakeID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stake id is required")
	}
	if input.ChangeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "change id is required")
	}
	if input.BaseAmount.Sign() <= 0 || !input.BaseAmount.IsInteger() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "base amount must be a positive whole number of base units")
	}
	if input.Multiplier.Sign() <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "multiplier must be positive")
	}

	award := &models.StakeBoostAward{
		CompetitionID: input.CompetitionID,
		StakeID:       input.StakeID,
		ChangeID:      input.ChangeID,
		BaseAmount:    input.BaseAmount,
		Multiplier:    input.Multiplier,
	}
	if err := s.repo.WithTx(tx).CreateAward(ctx, award); err != nil {
		return nil, err
	}
	return award, nil
}
