package awards

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/agentarena/boost-ledger/internal/boost"
	"github.com/agentarena/boost-ledger/internal/stakes"
	"github.com/agentarena/boost-ledger/pkg/enums"
	pkgerrors "github.com/agentarena/boost-ledger/pkg/errors"
	"github.com/agentarena/boost-ledger/pkg/logger"
	"github.com/agentarena/boost-ledger/pkg/outbox"
	"github.com/agentarena/boost-ledger/pkg/outbox/payloads"
	"github.com/agentarena/boost-ledger/pkg/types"
)

// DefaultMultiplier converts staked base units into boost credit one-to-one.
var DefaultMultiplier = decimal.NewFromInt(1)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// AwardResult reports how one stake award resolved.
type AwardResult struct {
	Outcome  boost.Outcome
	StakeID  uint64
	ChangeID uuid.UUID
	Awarded  decimal.Decimal
}

// SweepStats summarizes one sweep pass over a competition's stakes.
type SweepStats struct {
	Scanned int
	Awarded int
	Skipped int
	Failed  int
}

// Service pays the one-time boost credit owed to stakers. AwardStake is safe
// to redeliver: the credit and its audit row commit in one transaction keyed
// by the stake, so a second delivery is a noop.
type Service interface {
	AwardStake(ctx context.Context, competitionID uuid.UUID, stakeID uint64) (*AwardResult, error)
	SweepCompetition(ctx context.Context, competitionID uuid.UUID, batchSize int) (*SweepStats, error)
}

type service struct {
	stakes     stakes.Service
	boosts     boost.Service
	tx         txRunner
	outbox     outboxPublisher
	multiplier decimal.Decimal
	logg       *logger.Logger
}

// NewService wires the award orchestrator. Outbox and logger are optional; a
// zero multiplier falls back to DefaultMultiplier.
func NewService(stakeSvc stakes.Service, boostSvc boost.Service, tx txRunner, ob outboxPublisher, multiplier decimal.Decimal, logg *logger.Logger) (Service, error) {
	if stakeSvc == nil {
		return nil, fmt.Errorf("stakes service required")
	}
	if boostSvc == nil {
		return nil, fmt.Errorf("boost service required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if multiplier.IsZero() {
		multiplier = DefaultMultiplier
	}
	if multiplier.Sign() <= 0 {
		return nil, fmt.Errorf("multiplier must be positive")
	}
	return &service{
		stakes:     stakeSvc,
		boosts:     boostSvc,
		tx:         tx,
		outbox:     ob,
		multiplier: multiplier,
		logg:       logg,
	}, nil
}

func (s *service) AwardStake(ctx context.Context, competitionID uuid.UUID, stakeID uint64) (*AwardResult, error) {
	if competitionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "competition id is required")
	}
	stake, err := s.stakes.Get(ctx, stakeID)
	if err != nil {
		return nil, err
	}

	awarded := stake.Amount.Mul(s.multiplier).Truncate(0)
	if awarded.Sign() <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "award amount rounds to zero")
	}

	meta, _ := json.Marshal(map[string]any{"source": "stake-award", "stakeId": stake.ID})
	key := boost.StakeAwardKey(competitionID, stake.ID)

	var result *AwardResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		credit, err := s.boosts.Increase(ctx, boost.IncreaseInput{
			Wallet:         types.Wallet(stake.Wallet),
			CompetitionID:  competitionID,
			Amount:         awarded,
			Meta:           meta,
			IdempotencyKey: key,
		}, tx)
		if err != nil {
			return err
		}
		if credit.Outcome == boost.OutcomeNoop {
			// the original delivery committed the audit row with the credit
			result = &AwardResult{Outcome: boost.OutcomeNoop, StakeID: stake.ID, ChangeID: credit.ChangeID, Awarded: awarded}
			return nil
		}

		if _, err := s.stakes.RecordStakeBoostAward(ctx, tx, stakes.RecordAwardInput{
			CompetitionID: competitionID,
			StakeID:       stake.ID,
			ChangeID:      credit.ChangeID,
			BaseAmount:    stake.Amount,
			Multiplier:    s.multiplier,
		}); err != nil {
			return err
		}

		if s.outbox != nil {
			event := outbox.DomainEvent{
				EventType:     enums.OutboxEventTypeStakeBoostAwarded,
				AggregateType: enums.OutboxAggregateTypeBoostBalance,
				AggregateID:   credit.BalanceID,
				Version:       1,
				Data: payloads.StakeBoostAwardedEvent{
					BalanceID:     credit.BalanceID,
					ChangeID:      credit.ChangeID,
					StakeID:       stake.ID,
					Wallet:        types.Wallet(stake.Wallet),
					CompetitionID: competitionID,
					BaseAmount:    stake.Amount,
					Multiplier:    s.multiplier,
					Awarded:       awarded,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}
		}

		result = &AwardResult{Outcome: boost.OutcomeApplied, StakeID: stake.ID, ChangeID: credit.ChangeID, Awarded: awarded}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil && result.Outcome == boost.OutcomeApplied {
		logCtx := s.logg.WithCompetitionID(ctx, competitionID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"stake_id": stake.ID,
			"awarded":  awarded.String(),
		})
		s.logg.Info(logCtx, "stake boost awarded")
	}
	return result, nil
}

// SweepCompetition awards every stake that has no award row for the
// competition yet. Per-stake failures are collected rather than aborting the
// pass; a batch that makes no progress stops the sweep so stuck stakes cannot
// spin it forever.
func (s *service) SweepCompetition(ctx context.Context, competitionID uuid.UUID, batchSize int) (*SweepStats, error) {
	if competitionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "competition id is required")
	}

	stats := &SweepStats{}
	var errs error
	for {
		pending, err := s.stakes.Unawarded(ctx, competitionID, batchSize)
		if err != nil {
			return stats, multierr.Append(errs, err)
		}
		if len(pending) == 0 {
			break
		}

		applied := 0
		for _, stake := range pending {
			if err := ctx.Err(); err != nil {
				return stats, multierr.Append(errs, err)
			}
			stats.Scanned++
			result, err := s.AwardStake(ctx, competitionID, stake.ID)
			if err != nil {
				stats.Failed++
				errs = multierr.Append(errs, fmt.Errorf("stake %d: %w", stake.ID, err))
				continue
			}
			if result.Outcome == boost.OutcomeApplied {
				stats.Awarded++
				applied++
			} else {
				stats.Skipped++
			}
		}

		if batchSize <= 0 || applied == 0 {
			break
		}
	}
	return stats, errs
}
