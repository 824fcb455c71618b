package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Competition carries the metadata the ledger's callers need to decide
// whether boost operations are currently allowed. Lifecycle management lives
// elsewhere; this service only reads these rows.
type Competition struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Name           string     `gorm:"column:name;not null"`
	BoostStartDate *time.Time `gorm:"column:boost_start_date"`
	BoostEndDate   *time.Time `gorm:"column:boost_end_date"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Competition) TableName() string { return "competitions" }

func (c *Competition) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
