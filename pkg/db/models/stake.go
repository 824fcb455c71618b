package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stake mirrors a stake position supplied by the staking subsystem. The id is
// the on-chain position id, so rows are upserted rather than generated here.
type Stake struct {
	ID              uint64          `gorm:"column:id;primaryKey;autoIncrement:false"`
	Wallet          string          `gorm:"column:wallet;size:42;not null;index:ix_stakes_wallet"`
	Amount          decimal.Decimal `gorm:"column:amount;type:numeric(78,0);not null"`
	StakedAt        time.Time       `gorm:"column:staked_at;not null"`
	CanUnstakeAfter time.Time       `gorm:"column:can_unstake_after;not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Stake) TableName() string { return "stakes" }
