package requests

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
)

// Repository defines persistence operations for requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, req *models.Request) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Request, error)
	List(ctx context.Context, filter ListFilter) ([]models.Request, error)
	UpdateVersioned(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error)
	CountSelectedQuotes(ctx context.Context, requestID uuid.UUID) (int64, error)
	CountDependents(ctx context.Context, requestID uuid.UUID) (Dependents, error)
	DeleteCascade(ctx context.Context, id uuid.UUID) error
}
