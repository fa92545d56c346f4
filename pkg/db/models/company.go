package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sourcing-engine/pkg/enums"
)

// CompanyProfile is a client company; read-only to the engine.
type CompanyProfile struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name         string    `gorm:"column:name;not null"`
	ContactEmail *string   `gorm:"column:contact_email"`
	VATNumber    *string   `gorm:"column:vat_number"`
	Country      *string   `gorm:"column:country"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (CompanyProfile) TableName() string { return "company_profiles" }

// Purchase is a recorded payment to a supplier for a request; read-only to the engine.
type Purchase struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	RequestID   uuid.UUID       `gorm:"column:request_id;type:uuid;not null"`
	Supplier    string          `gorm:"column:supplier;not null"`
	Amount      decimal.Decimal `gorm:"column:amount;type:numeric(14,4);not null"`
	Currency    enums.Currency  `gorm:"column:currency;type:text;not null"`
	PurchasedAt time.Time       `gorm:"column:purchased_at;not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (Purchase) TableName() string { return "purchases" }
