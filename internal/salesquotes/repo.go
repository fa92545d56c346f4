package salesquotes

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sourcing-engine/internal/repo"
	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
)

type repository struct {
	repo.Base
}

// NewRepository builds a sales quote repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, quote *models.ClientQuote) error {
	return r.DB(ctx).Create(quote).Error
}

func itemsByPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ClientQuote, error) {
	var quote models.ClientQuote
	err := r.DB(ctx).
		Preload("Items", itemsByPosition).
		Where("id = ?", id).
		First(&quote).Error
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.ClientQuote, error) {
	filter = filter.normalized()
	q := r.DB(ctx).Model(&models.ClientQuote{}).Preload("Items", itemsByPosition)
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.ClientCompanyID != nil {
		q = q.Where("client_company_id = ?", *filter.ClientCompanyID)
	}
	var rows []models.ClientQuote
	err := q.Order("date DESC").
		Order("quote_number DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&rows).Error
	return rows, err
}

func (r *repository) UpdateVersioned(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error) {
	return r.Base.UpdateVersioned(ctx, &models.ClientQuote{}, id, version, updates)
}

func (r *repository) ReplaceItems(ctx context.Context, quoteID uuid.UUID, items []models.ClientQuoteItem) error {
	db := r.DB(ctx)
	if err := db.Where("client_quote_id = ?", quoteID).Delete(&models.ClientQuoteItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return db.Create(&items).Error
}

func (r *repository) NextNumber(ctx context.Context, kind string, year int) (int, error) {
	db := r.DB(ctx)
	err := db.Exec(
		`INSERT INTO document_sequences (kind, year, last_value) VALUES (?, ?, 1)
		 ON CONFLICT (kind, year) DO UPDATE SET last_value = document_sequences.last_value + 1`,
		kind, year,
	).Error
	if err != nil {
		return 0, err
	}
	var seq models.DocumentSequence
	if err := db.Where("kind = ? AND year = ?", kind, year).First(&seq).Error; err != nil {
		return 0, err
	}
	return seq.LastValue, nil
}

func (r *repository) FindCompany(ctx context.Context, id uuid.UUID) (*models.CompanyProfile, error) {
	var company models.CompanyProfile
	if err := r.DB(ctx).Where("id = ?", id).First(&company).Error; err != nil {
		return nil, err
	}
	return &company, nil
}
