package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
)

// EntityRef points at the entity an audit entry belongs to.
type EntityRef struct {
	Type enums.LedgerEntityType `json:"entity_type"`
	ID   uuid.UUID              `json:"entity_id"`
}

func RequestRef(id uuid.UUID) EntityRef {
	return EntityRef{Type: enums.LedgerEntityRequest, ID: id}
}

func SupplierQuoteRef(id uuid.UUID) EntityRef {
	return EntityRef{Type: enums.LedgerEntitySupplierQuote, ID: id}
}

func ClientQuoteRef(id uuid.UUID) EntityRef {
	return EntityRef{Type: enums.LedgerEntityClientQuote, ID: id}
}

// Repository manages persistence for ledger entries. There is deliberately no
// update or delete.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.LedgerEntry) error
	ListByEntity(ctx context.Context, ref EntityRef) ([]models.LedgerEntry, error)
	LatestCreatedAt(ctx context.Context, ref EntityRef) (*time.Time, error)
	EntityExists(ctx context.Context, ref EntityRef) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListByEntity(ctx context.Context, ref EntityRef) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", ref.Type, ref.ID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) LatestCreatedAt(ctx context.Context, ref EntityRef) (*time.Time, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", ref.Type, ref.ID).
		Order("created_at DESC").
		Limit(1).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	latest := entries[0].CreatedAt
	return &latest, nil
}

var entityTables = map[enums.LedgerEntityType]string{
	enums.LedgerEntityRequest:       "requests",
	enums.LedgerEntitySupplierQuote: "supplier_quotes",
	enums.LedgerEntityClientQuote:   "client_quotes",
}

func (r *repository) EntityExists(ctx context.Context, ref EntityRef) (bool, error) {
	table, ok := entityTables[ref.Type]
	if !ok {
		return false, fmt.Errorf("unknown ledger entity type %q", ref.Type)
	}
	var count int64
	if err := r.db.WithContext(ctx).
		Table(table).
		Where("id = ?", ref.ID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
