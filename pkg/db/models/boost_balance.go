package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BoostBalance holds the current spendable boost credit for one wallet in one
// competition. Rows are created lazily on the first earn and never deleted;
// the store-level CHECK constraint keeps balance non-negative even if a bug
// slips past the application guard.
type BoostBalance struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Wallet        string          `gorm:"column:wallet;size:42;not null;uniqueIndex:ux_boost_balances_wallet_competition,priority:1"`
	CompetitionID uuid.UUID       `gorm:"column:competition_id;type:uuid;not null;uniqueIndex:ux_boost_balances_wallet_competition,priority:2"`
	Balance       decimal.Decimal `gorm:"column:balance;type:numeric(78,0);not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (BoostBalance) TableName() string { return "boost_balances" }

func (b *BoostBalance) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
