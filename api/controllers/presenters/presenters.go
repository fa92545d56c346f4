// Package presenters shapes persisted models into API payloads.
package presenters

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sourcing-engine/internal/rollup"
	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
)

type Component struct {
	ID          uuid.UUID `json:"id"`
	Reference   string    `json:"reference"`
	Description *string   `json:"description,omitempty"`
	Quantity    int       `json:"quantity"`
}

type Request struct {
	ID              uuid.UUID           `json:"id"`
	ClientEmail     string              `json:"client_email"`
	ClientCompanyID *uuid.UUID          `json:"client_company_id,omitempty"`
	Spec            json.RawMessage     `json:"spec,omitempty"`
	Status          enums.RequestStatus `json:"status"`
	Carrier         *string             `json:"carrier,omitempty"`
	TrackingNumber  *string             `json:"tracking_number,omitempty"`
	DocumentURLs    []string            `json:"document_urls"`
	Version         int                 `json:"version"`
	OrderedAt       *time.Time          `json:"ordered_at,omitempty"`
	DeliveredAt     *time.Time          `json:"delivered_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	Components      []Component         `json:"components"`
}

func NewRequest(req *models.Request) Request {
	out := Request{
		ID:              req.ID,
		ClientEmail:     req.ClientEmail,
		ClientCompanyID: req.ClientCompanyID,
		Status:          req.Status,
		Carrier:         req.Carrier,
		TrackingNumber:  req.TrackingNumber,
		DocumentURLs:    append([]string{}, req.DocumentURLs...),
		Version:         req.Version,
		OrderedAt:       req.OrderedAt,
		DeliveredAt:     req.DeliveredAt,
		CreatedAt:       req.CreatedAt,
		UpdatedAt:       req.UpdatedAt,
		Components:      make([]Component, 0, len(req.Components)),
	}
	if len(req.Spec) > 0 {
		out.Spec = json.RawMessage(req.Spec)
	}
	for _, c := range req.Components {
		out.Components = append(out.Components, Component{
			ID:          c.ID,
			Reference:   c.Reference,
			Description: c.Description,
			Quantity:    c.Quantity,
		})
	}
	return out
}

func NewRequests(rows []models.Request) []Request {
	out := make([]Request, 0, len(rows))
	for i := range rows {
		out = append(out, NewRequest(&rows[i]))
	}
	return out
}

type LineItem struct {
	ID                   uuid.UUID       `json:"id"`
	ComponentID          uuid.UUID       `json:"component_id"`
	UnitPrice            decimal.Decimal `json:"unit_price"`
	Quantity             int             `json:"quantity"`
	LeadTimeDays         *int            `json:"lead_time_days,omitempty"`
	SubstitutePartNumber *string         `json:"substitute_part_number,omitempty"`
}

type SupplierQuote struct {
	ID             uuid.UUID                 `json:"id"`
	RequestID      uuid.UUID                 `json:"request_id"`
	Bidder         string                    `json:"bidder"`
	Currency       enums.Currency            `json:"currency"`
	Price          decimal.Decimal           `json:"price"`
	ShippingCost   decimal.Decimal           `json:"shipping_cost"`
	ImportationTax decimal.Decimal           `json:"importation_tax"`
	Total          decimal.Decimal           `json:"total"`
	LeadTimeDays   int                       `json:"lead_time_days"`
	Note           *string                   `json:"note,omitempty"`
	Status         enums.SupplierQuoteStatus `json:"status"`
	SelectedAt     *time.Time                `json:"selected_at,omitempty"`
	Version        int                       `json:"version"`
	CreatedAt      time.Time                 `json:"created_at"`
	LineItems      []LineItem                `json:"line_items"`
}

func NewSupplierQuote(q *models.SupplierQuote) SupplierQuote {
	out := SupplierQuote{
		ID:             q.ID,
		RequestID:      q.RequestID,
		Bidder:         q.Bidder,
		Currency:       q.Currency,
		Price:          q.Price,
		ShippingCost:   q.ShippingCost,
		ImportationTax: q.ImportationTax,
		Total:          q.Total,
		LeadTimeDays:   q.LeadTimeDays,
		Note:           q.Note,
		Status:         q.Status,
		SelectedAt:     q.SelectedAt,
		Version:        q.Version,
		CreatedAt:      q.CreatedAt,
		LineItems:      make([]LineItem, 0, len(q.LineItems)),
	}
	for _, li := range q.LineItems {
		out.LineItems = append(out.LineItems, LineItem{
			ID:                   li.ID,
			ComponentID:          li.ComponentID,
			UnitPrice:            li.UnitPrice,
			Quantity:             li.Quantity,
			LeadTimeDays:         li.LeadTimeDays,
			SubstitutePartNumber: li.SubstitutePartNumber,
		})
	}
	return out
}

func NewSupplierQuotes(rows []models.SupplierQuote) []SupplierQuote {
	out := make([]SupplierQuote, 0, len(rows))
	for i := range rows {
		out = append(out, NewSupplierQuote(&rows[i]))
	}
	return out
}

type SalesItem struct {
	Position    int             `json:"position"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type SalesQuote struct {
	ID              uuid.UUID               `json:"id"`
	ClientCompanyID uuid.UUID               `json:"client_company_id"`
	RequestID       *uuid.UUID              `json:"request_id,omitempty"`
	QuoteNumber     string                  `json:"quote_number"`
	InvoiceNumber   *string                 `json:"invoice_number,omitempty"`
	Date            time.Time               `json:"date"`
	ValidUntil      *time.Time              `json:"valid_until,omitempty"`
	TVARate         decimal.Decimal         `json:"tva_rate"`
	Currency        enums.Currency          `json:"currency"`
	Status          enums.ClientQuoteStatus `json:"status"`
	Notes           *string                 `json:"notes,omitempty"`
	Version         int                     `json:"version"`
	SentAt          *time.Time              `json:"sent_at,omitempty"`
	RespondedAt     *time.Time              `json:"responded_at,omitempty"`
	SoldAt          *time.Time              `json:"sold_at,omitempty"`
	InvoicedAt      *time.Time              `json:"invoiced_at,omitempty"`
	Items           []SalesItem             `json:"items"`
	Totals          rollup.SalesTotals      `json:"totals"`
}

func NewSalesQuote(q *models.ClientQuote, totals rollup.SalesTotals) SalesQuote {
	out := SalesQuote{
		ID:              q.ID,
		ClientCompanyID: q.ClientCompanyID,
		RequestID:       q.RequestID,
		QuoteNumber:     q.QuoteNumber,
		InvoiceNumber:   q.InvoiceNumber,
		Date:            q.Date,
		ValidUntil:      q.ValidUntil,
		TVARate:         q.TVARate,
		Currency:        q.Currency,
		Status:          q.Status,
		Notes:           q.Notes,
		Version:         q.Version,
		SentAt:          q.SentAt,
		RespondedAt:     q.RespondedAt,
		SoldAt:          q.SoldAt,
		InvoicedAt:      q.InvoicedAt,
		Items:           make([]SalesItem, 0, len(q.Items)),
		Totals:          totals,
	}
	for _, item := range q.Items {
		out.Items = append(out.Items, SalesItem{
			Position:    item.Position,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return out
}

type LedgerEntry struct {
	ID         uuid.UUID              `json:"id"`
	EntityType enums.LedgerEntityType `json:"entity_type"`
	EntityID   uuid.UUID              `json:"entity_id"`
	Action     string                 `json:"action"`
	Actor      string                 `json:"actor"`
	CreatedAt  time.Time              `json:"created_at"`
}

func NewHistory(entries []models.LedgerEntry) []LedgerEntry {
	out := make([]LedgerEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, LedgerEntry{
			ID:         e.ID,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Action:     e.Action,
			Actor:      e.Actor,
			CreatedAt:  e.CreatedAt,
		})
	}
	return out
}
