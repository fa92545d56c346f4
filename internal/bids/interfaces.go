package bids

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
)

// Repository defines persistence operations for supplier quotes and the
// request fields bidding touches.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindRequest(ctx context.Context, id uuid.UUID) (*models.Request, error)
	UpdateRequestVersioned(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error)
	CreateQuote(ctx context.Context, quote *models.SupplierQuote) error
	FindQuote(ctx context.Context, id uuid.UUID) (*models.SupplierQuote, error)
	ListQuotes(ctx context.Context, requestID uuid.UUID) ([]models.SupplierQuote, error)
	FindSelected(ctx context.Context, requestID uuid.UUID) (*models.SupplierQuote, error)
	CountSelected(ctx context.Context, requestID uuid.UUID) (int64, error)
	// UpdateQuoteIf writes only while the quote still has the given version and status.
	UpdateQuoteIf(ctx context.Context, id uuid.UUID, version int, status enums.SupplierQuoteStatus, updates map[string]any) (bool, error)
}
