package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/sourcing-engine/pkg/enums"
)

// SupplierQuote is a supplier's bid on a request. Total is frozen at submission.
type SupplierQuote struct {
	ID             uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	RequestID      uuid.UUID                 `gorm:"column:request_id;type:uuid;not null"`
	Bidder         string                    `gorm:"column:bidder;not null"`
	Currency       enums.Currency            `gorm:"column:currency;type:text;not null"`
	Price          decimal.Decimal           `gorm:"column:price;type:numeric(14,4);not null"`
	ShippingCost   decimal.Decimal           `gorm:"column:shipping_cost;type:numeric(14,4);not null"`
	ImportationTax decimal.Decimal           `gorm:"column:importation_tax;type:numeric(14,4);not null"`
	Total          decimal.Decimal           `gorm:"column:total;type:numeric(14,4);not null"`
	LeadTimeDays   int                       `gorm:"column:lead_time_days;not null;default:0"`
	Note           *string                   `gorm:"column:note"`
	Status         enums.SupplierQuoteStatus `gorm:"column:status;type:text;not null"`
	SelectedAt     *time.Time                `gorm:"column:selected_at"`
	Version        int                       `gorm:"column:version;not null;default:1"`
	CreatedAt      time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                 `gorm:"column:updated_at;autoUpdateTime"`

	LineItems []QuoteLineItem `gorm:"foreignKey:QuoteID;references:ID"`
}

func (SupplierQuote) TableName() string { return "supplier_quotes" }

func (q *SupplierQuote) BeforeCreate(*gorm.DB) error {
	ensureID(&q.ID)
	return nil
}

// QuoteLineItem prices one request component inside a supplier quote.
type QuoteLineItem struct {
	ID                   uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	QuoteID              uuid.UUID       `gorm:"column:quote_id;type:uuid;not null"`
	ComponentID          uuid.UUID       `gorm:"column:component_id;type:uuid;not null"`
	UnitPrice            decimal.Decimal `gorm:"column:unit_price;type:numeric(14,4);not null"`
	Quantity             int             `gorm:"column:quantity;not null"`
	LeadTimeDays         *int            `gorm:"column:lead_time_days"`
	SubstitutePartNumber *string         `gorm:"column:substitute_part_number"`
	CreatedAt            time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (QuoteLineItem) TableName() string { return "quote_line_items" }

func (li *QuoteLineItem) BeforeCreate(*gorm.DB) error {
	ensureID(&li.ID)
	return nil
}
