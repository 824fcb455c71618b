package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AgentBoost records one successfully applied "boost this agent" action.
// Replayed operations never create a second row; the referenced change is the
// debit that paid for it.
type AgentBoost struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID `gorm:"column:user_id;type:uuid;not null;index:ix_agent_boosts_user"`
	AgentID       uuid.UUID `gorm:"column:agent_id;type:uuid;not null;index:ix_agent_boosts_agent"`
	CompetitionID uuid.UUID `gorm:"column:competition_id;type:uuid;not null;index:ix_agent_boosts_competition"`
	ChangeID      uuid.UUID `gorm:"column:change_id;type:uuid;not null;uniqueIndex:ux_agent_boosts_change"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime;index:ix_agent_boosts_created_at"`
}

func (AgentBoost) TableName() string { return "agent_boosts" }

func (a *AgentBoost) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
