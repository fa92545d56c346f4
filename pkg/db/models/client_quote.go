package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/sourcing-engine/pkg/enums"
)

// ClientQuote is a sales quote issued to a client company. Totals are derived
// from Items at read time and never stored.
type ClientQuote struct {
	ID              uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	ClientCompanyID uuid.UUID               `gorm:"column:client_company_id;type:uuid;not null"`
	RequestID       *uuid.UUID              `gorm:"column:request_id;type:uuid"`
	QuoteNumber     string                  `gorm:"column:quote_number;not null"`
	InvoiceNumber   *string                 `gorm:"column:invoice_number"`
	Date            time.Time               `gorm:"column:date;not null"`
	ValidUntil      *time.Time              `gorm:"column:valid_until"`
	TVARate         decimal.Decimal         `gorm:"column:tva_rate;type:numeric(6,3);not null"`
	Currency        enums.Currency          `gorm:"column:currency;type:text;not null"`
	Status          enums.ClientQuoteStatus `gorm:"column:status;type:text;not null"`
	Notes           *string                 `gorm:"column:notes"`
	Version         int                     `gorm:"column:version;not null;default:1"`
	SentAt          *time.Time              `gorm:"column:sent_at"`
	RespondedAt     *time.Time              `gorm:"column:responded_at"`
	SoldAt          *time.Time              `gorm:"column:sold_at"`
	InvoicedAt      *time.Time              `gorm:"column:invoiced_at"`
	CreatedAt       time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time               `gorm:"column:updated_at;autoUpdateTime"`

	Items []ClientQuoteItem `gorm:"foreignKey:ClientQuoteID;references:ID"`
}

func (ClientQuote) TableName() string { return "client_quotes" }

func (q *ClientQuote) BeforeCreate(*gorm.DB) error {
	ensureID(&q.ID)
	return nil
}

type ClientQuoteItem struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ClientQuoteID uuid.UUID       `gorm:"column:client_quote_id;type:uuid;not null"`
	Position      int             `gorm:"column:position;not null"`
	Description   string          `gorm:"column:description;not null"`
	Quantity      decimal.Decimal `gorm:"column:quantity;type:numeric(12,3);not null"`
	UnitPrice     decimal.Decimal `gorm:"column:unit_price;type:numeric(14,4);not null"`
}

func (ClientQuoteItem) TableName() string { return "client_quote_items" }

func (i *ClientQuoteItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// DocumentSequence hands out yearly numbers for quotes and invoices.
type DocumentSequence struct {
	Kind      string `gorm:"column:kind;primaryKey"`
	Year      int    `gorm:"column:year;primaryKey"`
	LastValue int    `gorm:"column:last_value;not null"`
}

func (DocumentSequence) TableName() string { return "document_sequences" }
