package repo

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/sourcing-engine/pkg/db/dbtest"
	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
)

func TestNewBaseStoresConnection(t *testing.T) {
	db := dbtest.Open(t)
	base := NewBase(db)

	if base.db != db {
		t.Fatalf("expected base db to match provided connection")
	}
}

func TestBaseDB_BindsContext(t *testing.T) {
	db := dbtest.Open(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), struct{}{}, "value")
	withCtx := base.DB(ctx)

	if withCtx == nil {
		t.Fatalf("expected non-nil DB when context provided")
	}
	if withCtx.Statement == nil || withCtx.Statement.Context != ctx {
		t.Fatalf("expected statement bound to context")
	}
}

func TestUpdateVersioned(t *testing.T) {
	db := dbtest.Open(t)
	base := NewBase(db)
	ctx := context.Background()

	req := models.Request{ID: uuid.New(), ClientEmail: "c@example.com", Status: enums.RequestStatusOpenForQuotes, Version: 1}
	require.NoError(t, db.Create(&req).Error)

	ok, err := base.UpdateVersioned(ctx, &models.Request{}, req.ID, 1, map[string]any{"client_email": "new@example.com"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = base.UpdateVersioned(ctx, &models.Request{}, req.ID, 1, map[string]any{"client_email": "stale@example.com"})
	require.NoError(t, err)
	assert.False(t, ok, "stale version must not write")

	var stored models.Request
	require.NoError(t, db.First(&stored, "id = ?", req.ID).Error)
	assert.Equal(t, 2, stored.Version)
	assert.Equal(t, "new@example.com", stored.ClientEmail)
}
