package finance

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sourcing-engine/internal/repo"
	"github.com/angelmondragon/sourcing-engine/internal/rollup"
	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
)

// Repository loads the rows a period summary is built from.
type Repository interface {
	ListIncome(ctx context.Context) ([]models.ClientQuote, error)
	ListCosts(ctx context.Context) ([]rollup.CostRecord, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) ListIncome(ctx context.Context) ([]models.ClientQuote, error) {
	var quotes []models.ClientQuote
	err := r.DB(ctx).
		Preload("Items").
		Where("status IN ?", []enums.ClientQuoteStatus{enums.ClientQuoteStatusSale, enums.ClientQuoteStatusInvoiced}).
		Order("date ASC").
		Order("id ASC").
		Find(&quotes).Error
	return quotes, err
}

// ListCosts pairs every selected supplier quote with its request. Requests
// outside a production state are dropped after loading so that legacy status
// spellings are compared in their normalized form.
func (r *repository) ListCosts(ctx context.Context) ([]rollup.CostRecord, error) {
	var quotes []models.SupplierQuote
	err := r.DB(ctx).
		Where("status = ?", enums.SupplierQuoteStatusSelected).
		Order("created_at ASC").
		Order("id ASC").
		Find(&quotes).Error
	if err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(quotes))
	for _, q := range quotes {
		ids = append(ids, q.RequestID)
	}
	var requests []models.Request
	if err := r.DB(ctx).Where("id IN ?", ids).Find(&requests).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Request, len(requests))
	for _, req := range requests {
		byID[req.ID] = req
	}

	records := make([]rollup.CostRecord, 0, len(quotes))
	for _, q := range quotes {
		req, ok := byID[q.RequestID]
		if !ok || !req.Status.IsProduction() {
			continue
		}
		records = append(records, rollup.CostRecord{Quote: q, Request: req})
	}
	return records, nil
}
