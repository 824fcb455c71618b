package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UniqueBoostChangeConstraint is the index that turns retried operations into
// no-ops: a second insert with the same (balance_id, idempotency_key) fails
// and the service reports the replay instead of applying the delta twice.
const UniqueBoostChangeConstraint = "ux_boost_changes_balance_key"

// BoostChange is one immutable entry in the balance's append-only change log.
// Positive deltas are earns, negative deltas are spends. Summing all deltas
// for a balance must reproduce its current value.
type BoostChange struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	BalanceID      uuid.UUID       `gorm:"column:balance_id;type:uuid;not null;uniqueIndex:ux_boost_changes_balance_key,priority:1"`
	DeltaAmount    decimal.Decimal `gorm:"column:delta_amount;type:numeric(78,0);not null"`
	Meta           json.RawMessage `gorm:"column:meta;type:jsonb"`
	IdempotencyKey []byte          `gorm:"column:idempotency_key;type:bytea;not null;uniqueIndex:ux_boost_changes_balance_key,priority:2"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (BoostChange) TableName() string { return "boost_changes" }

func (c *BoostChange) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
