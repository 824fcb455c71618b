package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StakeBoostAward links a stake position to the boost change that paid its
// award. base_amount and multiplier are kept for audit so the awarded amount
// can always be re-derived.
type StakeBoostAward struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	CompetitionID uuid.UUID       `gorm:"column:competition_id;type:uuid;not null;uniqueIndex:ux_stake_boost_awards_competition_stake,priority:1"`
	StakeID       uint64          `gorm:"column:stake_id;not null;uniqueIndex:ux_stake_boost_awards_competition_stake,priority:2"`
	ChangeID      uuid.UUID       `gorm:"column:change_id;type:uuid;not null"`
	BaseAmount    decimal.Decimal `gorm:"column:base_amount;type:numeric(78,0);not null"`
	Multiplier    decimal.Decimal `gorm:"column:multiplier;type:numeric(10,4);not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (StakeBoostAward) TableName() string { return "stake_boost_awards" }

func (s *StakeBoostAward) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
