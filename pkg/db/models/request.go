package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/sourcing-engine/pkg/enums"
)

// Request is a client's need for a part on a specific vehicle.
type Request struct {
	ID              uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	ClientEmail     string                      `gorm:"column:client_email;not null"`
	ClientCompanyID *uuid.UUID                  `gorm:"column:client_company_id;type:uuid"`
	Spec            datatypes.JSON              `gorm:"column:spec;type:jsonb"`
	Status          enums.RequestStatus         `gorm:"column:status;type:text;not null"`
	Carrier         *string                     `gorm:"column:carrier"`
	TrackingNumber  *string                     `gorm:"column:tracking_number"`
	DocumentURLs    datatypes.JSONSlice[string] `gorm:"column:document_urls;type:jsonb"`
	Version         int                         `gorm:"column:version;not null;default:1"`
	OrderedAt       *time.Time                  `gorm:"column:ordered_at"`
	DeliveredAt     *time.Time                  `gorm:"column:delivered_at"`
	CreatedAt       time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                   `gorm:"column:updated_at;autoUpdateTime"`

	Components []RequestComponent `gorm:"foreignKey:RequestID;references:ID"`
}

func (Request) TableName() string { return "requests" }

func (r *Request) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// RequestComponent is one part or connector a request asks suppliers to price.
type RequestComponent struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	RequestID   uuid.UUID `gorm:"column:request_id;type:uuid;not null"`
	Reference   string    `gorm:"column:reference;not null"`
	Description *string   `gorm:"column:description"`
	Quantity    int       `gorm:"column:quantity;not null;default:1"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (RequestComponent) TableName() string { return "request_components" }

func (c *RequestComponent) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
