package diagnostics

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
)

// RequestRow keeps the raw stored status so rows with unknown spellings can
// still be inspected.
type RequestRow struct {
	ID             uuid.UUID                   `gorm:"column:id"`
	Status         string                      `gorm:"column:status"`
	TrackingNumber *string                     `gorm:"column:tracking_number"`
	DocumentURLs   datatypes.JSONSlice[string] `gorm:"column:document_urls"`
}

// Snapshot is everything the checks read. It need not be transactionally
// consistent.
type Snapshot struct {
	Requests         []RequestRow
	Components       []models.RequestComponent
	Quotes           []models.SupplierQuote
	LineItems        []models.QuoteLineItem
	ClientQuotes     []models.ClientQuote
	ClientQuoteItems []models.ClientQuoteItem
	CompanyIDs       []uuid.UUID
	Purchases        []models.Purchase
	Ledger           []models.LedgerEntry
}

// Store loads a snapshot.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
}

type gormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	g, ctx := errgroup.WithContext(ctx)
	db := func() *gorm.DB { return s.db.WithContext(ctx) }

	g.Go(func() error {
		return db().Model(&models.Request{}).
			Select("id, status, tracking_number, document_urls").
			Scan(&snap.Requests).Error
	})
	g.Go(func() error {
		return db().Select("id, request_id, reference, quantity").Find(&snap.Components).Error
	})
	g.Go(func() error {
		return db().Find(&snap.Quotes).Error
	})
	g.Go(func() error {
		return db().Find(&snap.LineItems).Error
	})
	g.Go(func() error {
		return db().Find(&snap.ClientQuotes).Error
	})
	g.Go(func() error {
		return db().Find(&snap.ClientQuoteItems).Error
	})
	g.Go(func() error {
		return db().Model(&models.CompanyProfile{}).Pluck("id", &snap.CompanyIDs).Error
	})
	g.Go(func() error {
		return db().Find(&snap.Purchases).Error
	})
	g.Go(func() error {
		return db().Order("entity_id ASC").Order("created_at ASC").Find(&snap.Ledger).Error
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}
