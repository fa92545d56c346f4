package salesquotes

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
)

// Repository defines persistence operations for client sales quotes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, quote *models.ClientQuote) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ClientQuote, error)
	List(ctx context.Context, filter ListFilter) ([]models.ClientQuote, error)
	UpdateVersioned(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error)
	ReplaceItems(ctx context.Context, quoteID uuid.UUID, items []models.ClientQuoteItem) error
	// NextNumber increments and returns the yearly counter for kind.
	NextNumber(ctx context.Context, kind string, year int) (int, error)
	FindCompany(ctx context.Context, id uuid.UUID) (*models.CompanyProfile, error)
}
