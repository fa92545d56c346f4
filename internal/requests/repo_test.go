package requests

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/sourcing-engine/internal/ledger"
	dbpkg "github.com/angelmondragon/sourcing-engine/pkg/db"
	"github.com/angelmondragon/sourcing-engine/pkg/db/dbtest"
	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/sourcing-engine/pkg/errors"
	"github.com/angelmondragon/sourcing-engine/pkg/logger"
	"github.com/angelmondragon/sourcing-engine/pkg/outbox"
)

func newSQLiteService(t *testing.T) (Service, *dbpkg.Client) {
	t.Helper()
	conn := dbtest.Open(t)
	client := dbpkg.NewFromConn(conn)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn), nil)
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repository: NewRepository(conn),
		Tx:         client,
		Ledger:     ledgerSvc,
		Outbox:     outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
	})
	require.NoError(t, err)
	return svc, client
}

func TestSQLiteCreateAndDeleteCascade(t *testing.T) {
	svc, client := newSQLiteService(t)
	ctx := context.Background()
	conn := client.DB()

	created, err := svc.Create(ctx, CreateInput{
		ClientEmail: "client@example.com",
		Spec:        []byte(`{"brand":"Renault","model":"Clio"}`),
		Components:  []ComponentInput{{Reference: "CONN-12", Quantity: 2}},
		Actor:       "client@example.com",
	})
	require.NoError(t, err)

	loaded, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Components, 1)
	assert.Equal(t, 2, loaded.Components[0].Quantity)

	quote := models.SupplierQuote{
		RequestID: created.ID,
		Bidder:    "supplier-a",
		Currency:  enums.CurrencyEUR,
		Price:     decimal.NewFromInt(100),
		Total:     decimal.NewFromInt(100),
		Status:    enums.SupplierQuoteStatusPending,
		Version:   1,
		LineItems: []models.QuoteLineItem{{
			ComponentID: loaded.Components[0].ID,
			UnitPrice:   decimal.NewFromInt(50),
			Quantity:    2,
		}},
	}
	require.NoError(t, conn.Create(&quote).Error)

	require.NoError(t, svc.Delete(ctx, created.ID, "manager-1"))

	var remaining int64
	require.NoError(t, conn.Model(&models.QuoteLineItem{}).Where("quote_id = ?", quote.ID).Count(&remaining).Error)
	assert.Zero(t, remaining)
	require.NoError(t, conn.Model(&models.SupplierQuote{}).Where("request_id = ?", created.ID).Count(&remaining).Error)
	assert.Zero(t, remaining)
	require.NoError(t, conn.Model(&models.RequestComponent{}).Where("request_id = ?", created.ID).Count(&remaining).Error)
	assert.Zero(t, remaining)

	_, err = svc.Get(ctx, created.ID)
	require.Error(t, err)

	history, err := svc.History(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "request created", history[0].Action)
	assert.Equal(t, "request deleted", history[1].Action)
}

func TestSQLiteDeleteRefusedWithPurchases(t *testing.T) {
	svc, client := newSQLiteService(t)
	ctx := context.Background()
	conn := client.DB()

	created, err := svc.Create(ctx, CreateInput{
		ClientEmail: "client@example.com",
		Components:  []ComponentInput{{Reference: "ALT-1"}},
		Actor:       "manager-1",
	})
	require.NoError(t, err)

	require.NoError(t, conn.Create(&models.Purchase{
		ID:          uuid.New(),
		RequestID:   created.ID,
		Supplier:    "supplier-a",
		Amount:      decimal.RequireFromString("120.50"),
		Currency:    enums.CurrencyGBP,
		PurchasedAt: time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC),
	}).Error)

	deps, err := NewRepository(conn).CountDependents(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, Dependents{Purchases: 1}, deps)

	err = svc.Delete(ctx, created.ID, "manager-1")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidRequestState))

	loaded, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Components, 1)
}

func TestSQLiteLegacyStatusIsNormalized(t *testing.T) {
	svc, client := newSQLiteService(t)
	ctx := context.Background()

	id := uuid.New()
	now := time.Now().UTC()
	require.NoError(t, client.DB().Exec(
		`INSERT INTO requests (id, client_email, status, document_urls, version, created_at, updated_at) VALUES (?, ?, ?, '[]', 1, ?, ?)`,
		id.String(), "legacy@example.com", "Shipped", now, now,
	).Error)

	req, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, enums.RequestStatusInTransit, req.Status)

	status := enums.RequestStatusInTransit
	rows, err := svc.List(ctx, ListFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, id, rows[0].ID)

	delivered, err := svc.MarkDelivered(ctx, id, "manager-1")
	require.NoError(t, err)
	assert.Equal(t, 2, delivered.Version)

	var queued int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Where("aggregate_id = ?", id).Count(&queued).Error)
	assert.Equal(t, int64(1), queued)
}
