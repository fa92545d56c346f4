package bids

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sourcing-engine/internal/repo"
	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
)

type repository struct {
	repo.Base
}

// NewRepository builds a bids repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) FindRequest(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	var req models.Request
	err := r.DB(ctx).
		Preload("Components", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("id ASC")
		}).
		Where("id = ?", id).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) UpdateRequestVersioned(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error) {
	return r.UpdateVersioned(ctx, &models.Request{}, id, version, updates)
}

func (r *repository) CreateQuote(ctx context.Context, quote *models.SupplierQuote) error {
	return r.DB(ctx).Create(quote).Error
}

func (r *repository) FindQuote(ctx context.Context, id uuid.UUID) (*models.SupplierQuote, error) {
	var quote models.SupplierQuote
	err := r.DB(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("id ASC")
		}).
		Where("id = ?", id).
		First(&quote).Error
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *repository) ListQuotes(ctx context.Context, requestID uuid.UUID) ([]models.SupplierQuote, error) {
	var quotes []models.SupplierQuote
	err := r.DB(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("id ASC")
		}).
		Where("request_id = ?", requestID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&quotes).Error
	return quotes, err
}

func (r *repository) FindSelected(ctx context.Context, requestID uuid.UUID) (*models.SupplierQuote, error) {
	var quote models.SupplierQuote
	err := r.DB(ctx).
		Where("request_id = ? AND status = ?", requestID, enums.SupplierQuoteStatusSelected).
		Order("selected_at DESC").
		First(&quote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *repository) CountSelected(ctx context.Context, requestID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.SupplierQuote{}).
		Where("request_id = ? AND status = ?", requestID, enums.SupplierQuoteStatusSelected).
		Count(&count).Error
	return count, err
}

func (r *repository) UpdateQuoteIf(ctx context.Context, id uuid.UUID, version int, status enums.SupplierQuoteStatus, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["version"] = gorm.Expr("version + 1")

	res := r.DB(ctx).Model(&models.SupplierQuote{}).
		Where("id = ? AND version = ? AND status = ?", id, version, status).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
