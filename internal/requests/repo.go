package requests

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sourcing-engine/internal/repo"
	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
)

type repository struct {
	repo.Base
}

// NewRepository builds a requests repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, req *models.Request) error {
	return r.DB(ctx).Create(req).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Request, error) {
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

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Request, error) {
	filter = filter.normalized()
	q := r.DB(ctx).Model(&models.Request{})
	if filter.Status != nil {
		q = q.Where("LOWER(status) IN ?", enums.RequestStatusSpellings(*filter.Status))
	}
	if email := strings.TrimSpace(filter.ClientEmail); email != "" {
		q = q.Where("LOWER(client_email) = ?", strings.ToLower(email))
	}
	var rows []models.Request
	err := q.Order("created_at DESC").
		Order("id DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&rows).Error
	return rows, err
}

func (r *repository) UpdateVersioned(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error) {
	return r.Base.UpdateVersioned(ctx, &models.Request{}, id, version, updates)
}

func (r *repository) CountSelectedQuotes(ctx context.Context, requestID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.SupplierQuote{}).
		Where("request_id = ? AND status = ?", requestID, enums.SupplierQuoteStatusSelected).
		Count(&count).Error
	return count, err
}

func (r *repository) CountDependents(ctx context.Context, requestID uuid.UUID) (Dependents, error) {
	var deps Dependents
	db := r.DB(ctx)
	if err := db.Model(&models.Purchase{}).Where("request_id = ?", requestID).Count(&deps.Purchases).Error; err != nil {
		return deps, err
	}
	if err := db.Model(&models.ClientQuote{}).Where("request_id = ?", requestID).Count(&deps.ClientQuotes).Error; err != nil {
		return deps, err
	}
	return deps, nil
}

// DeleteCascade removes a request with its quotes, their line items and its
// components. Ledger entries are kept. Must run inside a transaction.
func (r *repository) DeleteCascade(ctx context.Context, id uuid.UUID) error {
	db := r.DB(ctx)
	quoteIDs := db.Model(&models.SupplierQuote{}).Select("id").Where("request_id = ?", id)
	if err := db.Where("quote_id IN (?)", quoteIDs).Delete(&models.QuoteLineItem{}).Error; err != nil {
		return err
	}
	if err := db.Where("request_id = ?", id).Delete(&models.SupplierQuote{}).Error; err != nil {
		return err
	}
	if err := db.Where("request_id = ?", id).Delete(&models.RequestComponent{}).Error; err != nil {
		return err
	}
	res := db.Where("id = ?", id).Delete(&models.Request{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
