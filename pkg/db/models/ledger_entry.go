package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sourcing-engine/pkg/enums"
)

// LedgerEntry is an immutable audit record. CreatedAt is assigned by the ledger
// service clock, never by the database.
type LedgerEntry struct {
	ID         uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	EntityType enums.LedgerEntityType `gorm:"column:entity_type;type:text;not null"`
	EntityID   uuid.UUID              `gorm:"column:entity_id;type:uuid;not null"`
	Action     string                 `gorm:"column:action;not null"`
	Actor      string                 `gorm:"column:actor;not null"`
	CreatedAt  time.Time              `gorm:"column:created_at;not null"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (e *LedgerEntry) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
