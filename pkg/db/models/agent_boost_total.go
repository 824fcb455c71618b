package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AgentBoostTotal is the denormalized running total of boost directed at one
// agent within one competition. It is only ever written in the same
// transaction as the balance debit it mirrors.
type AgentBoostTotal struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	AgentID       uuid.UUID       `gorm:"column:agent_id;type:uuid;not null;uniqueIndex:ux_agent_boost_totals_agent_competition,priority:1"`
	CompetitionID uuid.UUID       `gorm:"column:competition_id;type:uuid;not null;uniqueIndex:ux_agent_boost_totals_agent_competition,priority:2"`
	Total         decimal.Decimal `gorm:"column:total;type:numeric(78,0);not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (AgentBoostTotal) TableName() string { return "agent_boost_totals" }

func (a *AgentBoostTotal) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
