package boost

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/agentarena/boost-ledger/pkg/db/models"
	"github.com/agentarena/boost-ledger/pkg/enums"
	pkgerrors "github.com/agentarena/boost-ledger/pkg/errors"
	"github.com/agentarena/boost-ledger/pkg/logger"
	"github.com/agentarena/boost-ledger/pkg/metrics"
	"github.com/agentarena/boost-ledger/pkg/outbox"
	"github.com/agentarena/boost-ledger/pkg/outbox/payloads"
	"github.com/agentarena/boost-ledger/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type totalsCache interface {
	Get(ctx context.Context, competitionID uuid.UUID) (map[uuid.UUID]decimal.Decimal, bool)
	Set(ctx context.Context, competitionID uuid.UUID, totals map[uuid.UUID]decimal.Decimal)
	Invalidate(ctx context.Context, competitionID uuid.UUID)
}

// Outcome reports how a mutating ledger operation resolved.
type Outcome string

const (
	// OutcomeApplied means a new change row was written and the balance moved.
	OutcomeApplied Outcome = "applied"
	// OutcomeNoop means the idempotency key was already recorded; nothing moved.
	OutcomeNoop Outcome = "noop"
)

// Result carries the outcome of an Increase or BoostAgent call. Balance is
// the post-operation balance in both cases; for a noop it is simply the
// current value.
type Result struct {
	Outcome   Outcome
	BalanceID uuid.UUID
	ChangeID  uuid.UUID
	Balance   decimal.Decimal
}

// IncreaseInput credits a wallet's balance for one competition.
type IncreaseInput struct {
	Wallet         types.Wallet
	CompetitionID  uuid.UUID
	Amount         decimal.Decimal
	Meta           json.RawMessage
	IdempotencyKey []byte
}

// BoostAgentInput spends from a wallet's balance onto an agent.
type BoostAgentInput struct {
	UserID         uuid.UUID
	Wallet         types.Wallet
	AgentID        uuid.UUID
	CompetitionID  uuid.UUID
	Amount         decimal.Decimal
	Meta           json.RawMessage
	IdempotencyKey []byte
}

// Service defines the boost ledger operations. The tx parameter on mutating
// operations lets a caller couple the ledger write with its own writes in one
// transaction; pass nil to run standalone.
type Service interface {
	Increase(ctx context.Context, input IncreaseInput, tx *gorm.DB) (*Result, error)
	BoostAgent(ctx context.Context, input BoostAgentInput, tx *gorm.DB) (*Result, error)
	UserBoostBalance(ctx context.Context, wallet types.Wallet, competitionID uuid.UUID) (decimal.Decimal, error)
	AgentBoostTotals(ctx context.Context, competitionID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
	UserBoosts(ctx context.Context, userID, competitionID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
	CompetitionsBoostedBetween(ctx context.Context, from, to time.Time) (map[string][]uuid.UUID, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	cache  totalsCache
	ledger *metrics.LedgerMetrics
	logg   *logger.Logger
}

// NewService wires the boost ledger service. Outbox, cache, metrics and
// logger are optional.
func NewService(repo Repository, tx txRunner, ob outboxPublisher, cache totalsCache, ledger *metrics.LedgerMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("boost repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:   repo,
		tx:     tx,
		outbox: ob,
		cache:  cache,
		ledger: ledger,
		logg:   logg,
	}, nil
}

func (s *service) Increase(ctx context.Context, input IncreaseInput, tx *gorm.DB) (*Result, error) {
	wallet, err := validateAmountAndKey(input.Wallet, input.CompetitionID, input.Amount, input.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	var result *Result
	run := func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		balance, err := s.ensureBalance(ctx, repo, string(wallet), input.CompetitionID)
		if err != nil {
			return err
		}

		change := &models.BoostChange{
			BalanceID:      balance.ID,
			DeltaAmount:    input.Amount,
			Meta:           input.Meta,
			IdempotencyKey: input.IdempotencyKey,
		}
		inserted, err := repo.CreateChange(ctx, change)
		if err != nil {
			return err
		}
		if !inserted {
			replay, err := s.replayResult(ctx, repo, balance.ID, input.IdempotencyKey)
			if err != nil {
				return err
			}
			result = replay
			return nil
		}

		if err := repo.CreditBalance(ctx, balance.ID, input.Amount); err != nil {
			return err
		}
		updated, err := repo.FindBalanceByID(ctx, balance.ID)
		if err != nil {
			return err
		}
		if updated == nil {
			return fmt.Errorf("balance %s vanished mid-transaction", balance.ID)
		}

		if s.outbox != nil {
			event := outbox.DomainEvent{
				EventType:     enums.OutboxEventTypeBoostIncreased,
				AggregateType: enums.OutboxAggregateTypeBoostBalance,
				AggregateID:   balance.ID,
				Version:       1,
				Data: payloads.BoostIncreasedEvent{
					BalanceID:     balance.ID,
					ChangeID:      change.ID,
					Wallet:        wallet,
					CompetitionID: input.CompetitionID,
					Amount:        input.Amount,
					NewBalance:    updated.Balance,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}
		}

		result = &Result{Outcome: OutcomeApplied, BalanceID: balance.ID, ChangeID: change.ID, Balance: updated.Balance}
		return nil
	}

	if err := s.run(ctx, tx, run); err != nil {
		s.ledger.IncFailed("increase")
		return nil, err
	}
	s.observe(ctx, "increase", wallet, input.CompetitionID, result)
	return result, nil
}

func (s *service) BoostAgent(ctx context.Context, input BoostAgentInput, tx *gorm.DB) (*Result, error) {
	wallet, err := validateAmountAndKey(input.Wallet, input.CompetitionID, input.Amount, input.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.AgentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agent id is required")
	}

	var result *Result
	run := func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		balance, err := repo.FindBalance(ctx, string(wallet), input.CompetitionID)
		if err != nil {
			return err
		}
		if balance == nil {
			return insufficientBalanceError(wallet, input.CompetitionID, input.Amount, decimal.Zero)
		}

		change := &models.BoostChange{
			BalanceID:      balance.ID,
			DeltaAmount:    input.Amount.Neg(),
			Meta:           input.Meta,
			IdempotencyKey: input.IdempotencyKey,
		}
		inserted, err := repo.CreateChange(ctx, change)
		if err != nil {
			return err
		}
		if !inserted {
			replay, err := s.replayResult(ctx, repo, balance.ID, input.IdempotencyKey)
			if err != nil {
				return err
			}
			result = replay
			return nil
		}

		covered, err := repo.DebitBalance(ctx, balance.ID, input.Amount)
		if err != nil {
			return err
		}
		if !covered {
			// returning the error rolls back the change row with the tx
			return insufficientBalanceError(wallet, input.CompetitionID, input.Amount, balance.Balance)
		}

		if err := repo.UpsertAgentTotal(ctx, input.AgentID, input.CompetitionID, input.Amount); err != nil {
			return err
		}
		if err := repo.CreateAgentBoost(ctx, &models.AgentBoost{
			UserID:        input.UserID,
			AgentID:       input.AgentID,
			CompetitionID: input.CompetitionID,
			ChangeID:      change.ID,
		}); err != nil {
			return err
		}

		updated, err := repo.FindBalanceByID(ctx, balance.ID)
		if err != nil {
			return err
		}
		if updated == nil {
			return fmt.Errorf("balance %s vanished mid-transaction", balance.ID)
		}

		if s.outbox != nil {
			event := outbox.DomainEvent{
				EventType:     enums.OutboxEventTypeAgentBoosted,
				AggregateType: enums.OutboxAggregateTypeBoostBalance,
				AggregateID:   balance.ID,
				Actor:         &outbox.ActorRef{UserID: input.UserID, Wallet: wallet},
				Version:       1,
				Data: payloads.AgentBoostedEvent{
					BalanceID:     balance.ID,
					ChangeID:      change.ID,
					UserID:        input.UserID,
					Wallet:        wallet,
					AgentID:       input.AgentID,
					CompetitionID: input.CompetitionID,
					Amount:        input.Amount,
					NewBalance:    updated.Balance,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}
		}

		result = &Result{Outcome: OutcomeApplied, BalanceID: balance.ID, ChangeID: change.ID, Balance: updated.Balance}
		return nil
	}

	if err := s.run(ctx, tx, run); err != nil {
		if appErr := pkgerrors.As(err); appErr != nil && appErr.Code() == pkgerrors.CodeInsufficientBalance {
			s.ledger.IncRejected("boost_agent")
		} else {
			s.ledger.IncFailed("boost_agent")
		}
		return nil, err
	}
	if result.Outcome == OutcomeApplied && s.cache != nil {
		s.cache.Invalidate(ctx, input.CompetitionID)
	}
	s.observe(ctx, "boost_agent", wallet, input.CompetitionID, result)
	return result, nil
}

func (s *service) UserBoostBalance(ctx context.Context, wallet types.Wallet, competitionID uuid.UUID) (decimal.Decimal, error) {
	canonical, err := types.ParseWallet(string(wallet))
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid wallet")
	}
	if competitionID == uuid.Nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "competition id is required")
	}

	balance, err := s.repo.FindBalance(ctx, string(canonical), competitionID)
	if err != nil {
		return decimal.Zero, err
	}
	if balance == nil {
		return decimal.Zero, nil
	}
	return balance.Balance, nil
}

func (s *service) AgentBoostTotals(ctx context.Context, competitionID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	if competitionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "competition id is required")
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, competitionID); ok {
			return cached, nil
		}
	}

	rows, err := s.repo.ListAgentTotals(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	totals := make(map[uuid.UUID]decimal.Decimal, len(rows))
	for _, row := range rows {
		totals[row.AgentID] = row.Total
	}

	if s.cache != nil {
		s.cache.Set(ctx, competitionID, totals)
	}
	return totals, nil
}

func (s *service) UserBoosts(ctx context.Context, userID, competitionID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if competitionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "competition id is required")
	}

	rows, err := s.repo.SumUserBoosts(ctx, userID, competitionID)
	if err != nil {
		return nil, err
	}
	boosts := make(map[uuid.UUID]decimal.Decimal, len(rows))
	for _, row := range rows {
		boosts[row.AgentID] = row.Amount
	}
	return boosts, nil
}

// CompetitionsBoostedBetween maps each wallet to the competitions it boosted
// an agent in during the inclusive [from, to] window. An inverted window is
// empty, not an error.
func (s *service) CompetitionsBoostedBetween(ctx context.Context, from, to time.Time) (map[string][]uuid.UUID, error) {
	if from.IsZero() || to.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "window bounds are required")
	}
	result := make(map[string][]uuid.UUID)
	if to.Before(from) {
		return result, nil
	}

	rows, err := s.repo.WalletCompetitionsBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.Wallet] = append(result[row.Wallet], row.CompetitionID)
	}
	return result, nil
}

func (s *service) run(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx)
	}
	return s.tx.WithTx(ctx, fn)
}

// ensureBalance finds or lazily creates the balance row. A lost creation race
// resolves by re-reading the winner's row.
func (s *service) ensureBalance(ctx context.Context, repo Repository, wallet string, competitionID uuid.UUID) (*models.BoostBalance, error) {
	balance, err := repo.FindBalance(ctx, wallet, competitionID)
	if err != nil {
		return nil, err
	}
	if balance != nil {
		return balance, nil
	}

	fresh := &models.BoostBalance{
		Wallet:        wallet,
		CompetitionID: competitionID,
		Balance:       decimal.Zero,
	}
	created, err := repo.CreateBalance(ctx, fresh)
	if err != nil {
		return nil, err
	}
	if created {
		return fresh, nil
	}

	balance, err = repo.FindBalance(ctx, wallet, competitionID)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return nil, fmt.Errorf("balance for %s/%s not visible after create race", wallet, competitionID)
	}
	return balance, nil
}

func (s *service) replayResult(ctx context.Context, repo Repository, balanceID uuid.UUID, key []byte) (*Result, error) {
	existing, err := repo.FindChange(ctx, balanceID, key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("change for balance %s not visible after key conflict", balanceID)
	}
	current, err := repo.FindBalanceByID(ctx, balanceID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("balance %s vanished mid-transaction", balanceID)
	}
	return &Result{Outcome: OutcomeNoop, BalanceID: balanceID, ChangeID: existing.ID, Balance: current.Balance}, nil
}

func (s *service) observe(ctx context.Context, op string, wallet types.Wallet, competitionID uuid.UUID, result *Result) {
	switch result.Outcome {
	case OutcomeApplied:
		s.ledger.IncApplied(op)
	case OutcomeNoop:
		s.ledger.IncReplayed(op)
	}
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"op":             op,
		"wallet":         string(wallet),
		"competition_id": competitionID.String(),
		"outcome":        string(result.Outcome),
		"change_id":      result.ChangeID.String(),
	})
	s.logg.Info(logCtx, "ledger operation resolved")
}

func validateAmountAndKey(wallet types.Wallet, competitionID uuid.UUID, amount decimal.Decimal, key []byte) (types.Wallet, error) {
	canonical, err := types.ParseWallet(string(wallet))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid wallet")
	}
	if competitionID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "competition id is required")
	}
	if amount.Sign() <= 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !amount.IsInteger() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "amount must be a whole number of base units")
	}
	if len(key) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	return canonical, nil
}

func insufficientBalanceError(wallet types.Wallet, competitionID uuid.UUID, requested, available decimal.Decimal) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient boost balance").
		WithDetails(map[string]string{
			"wallet":        string(wallet),
			"competitionId": competitionID.String(),
			"requested":     requested.String(),
			"available":     available.String(),
		})
}
