package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agentarena/boost-ledger/pkg/types"
)

// BoostIncreasedEvent is emitted when an earn credits a wallet's balance.
type BoostIncreasedEvent struct {
	BalanceID     uuid.UUID       `json:"balanceId"`
	ChangeID      uuid.UUID       `json:"changeId"`
	Wallet        types.Wallet    `json:"wallet"`
	CompetitionID uuid.UUID       `json:"competitionId"`
	Amount        decimal.Decimal `json:"amount"`
	NewBalance    decimal.Decimal `json:"newBalance"`
}

// AgentBoostedEvent is emitted when a spend moves credit onto an agent.
type AgentBoostedEvent struct {
	BalanceID     uuid.UUID       `json:"balanceId"`
	ChangeID      uuid.UUID       `json:"changeId"`
	UserID        uuid.UUID       `json:"userId"`
	Wallet        types.Wallet    `json:"wallet"`
	AgentID       uuid.UUID       `json:"agentId"`
	CompetitionID uuid.UUID       `json:"competitionId"`
	Amount        decimal.Decimal `json:"amount"`
	NewBalance    decimal.Decimal `json:"newBalance"`
}

// StakeBoostAwardedEvent is emitted when the award sweep pays out a stake.
type StakeBoostAwardedEvent struct {
	BalanceID     uuid.UUID       `json:"balanceId"`
	ChangeID      uuid.UUID       `json:"changeId"`
	StakeID       uint64          `json:"stakeId"`
	Wallet        types.Wallet    `json:"wallet"`
	CompetitionID uuid.UUID       `json:"competitionId"`
	BaseAmount    decimal.Decimal `json:"baseAmount"`
	Multiplier    decimal.Decimal `json:"multiplier"`
	Awarded       decimal.Decimal `json:"awarded"`
}
