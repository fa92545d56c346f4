package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))
}

func TestValidateDirRejectsDialectDrift(t *testing.T) {
	dir := t.TempDir()
	_, err := CreateSQLMigration(dir, "add widgets")
	require.NoError(t, err)
	require.NoError(t, ValidateDir(dir))

	extra := filepath.Join(dir, DialectSQLite, "20990101000000_only_sqlite.sql")
	require.NoError(t, os.WriteFile(extra, []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	assert.Error(t, ValidateDir(dir))
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	paths, err := CreateSQLMigration(dir, "Add Tracking  Index!")
	require.NoError(t, err)
	require.Len(t, paths, 2)
	for _, p := range paths {
		assert.True(t, strings.HasSuffix(p, "_add_tracking_index.sql"), p)
	}

	_, err = CreateSQLMigration(dir, "!!!")
	assert.Error(t, err)
}

func TestSupplierQuoteMigrationsEnforceSingleWinner(t *testing.T) {
	for _, dialect := range dialects {
		matches, err := filepath.Glob(filepath.Join("migrations", dialect, "*_create_supplier_quotes.sql"))
		require.NoError(t, err)
		require.NotEmpty(t, matches, dialect)

		data, err := os.ReadFile(matches[0])
		require.NoError(t, err)
		content := string(data)

		for _, sub := range []string{
			"CREATE UNIQUE INDEX IF NOT EXISTS uniq_supplier_quotes_selected_per_request",
			"WHERE status = 'selected'",
			"DROP TABLE IF EXISTS supplier_quotes",
		} {
			assert.Contains(t, content, sub, dialect)
		}
	}
}

func TestUpAppliesSQLiteSchema(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migrate_up?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, Up(ctx, sqlDB, DialectSQLite))
	// idempotent
	require.NoError(t, Up(ctx, sqlDB, DialectSQLite))

	for _, table := range []string{
		"company_profiles", "requests", "request_components", "supplier_quotes",
		"quote_line_items", "client_quotes", "client_quote_items", "document_sequences",
		"ledger_entries", "purchases", "outbox_events",
	} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}

	_, err = sqlDB.Exec(`INSERT INTO ledger_entries (id, entity_type, entity_id, action, actor, created_at)
		VALUES ('l1', 'request', 'r1', 'created', 'tester', CURRENT_TIMESTAMP)`)
	require.NoError(t, err)
	_, err = sqlDB.Exec(`DELETE FROM ledger_entries WHERE id = 'l1'`)
	assert.Error(t, err, "ledger entries must be append-only")
}

func TestUpRejectsUnknownDialect(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migrate_bad?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	assert.Error(t, Up(context.Background(), sqlDB, "mysql"))
}
