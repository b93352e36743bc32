package erp

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// SQLite accepts $N placeholders and quoted identifiers, so it stands in for the ERP view
func setupERP(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "erp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
		CREATE TABLE inventory_snapshot_v (
			sku TEXT PRIMARY KEY,
			description TEXT,
			warehouse TEXT NOT NULL,
			on_hand REAL NOT NULL,
			reserved REAL NOT NULL,
			unit TEXT,
			refreshed_at DATETIME
		)`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO inventory_snapshot_v VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"BRG-6204", "Deep groove bearing", "WH1", 120.0, 20.0, "pcs", time.Date(2026, 10, 17, 6, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO inventory_snapshot_v (sku, warehouse, on_hand, reserved) VALUES ('NUT-M8', 'WH2', 5, 0)`)
	require.NoError(t, err)
	return db
}

func TestInventoryReader_GetItem(t *testing.T) {
	reader := NewInventoryReader(setupERP(t), Config{}, zap.NewNop())

	item, err := reader.GetItem(context.Background(), "BRG-6204")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "Deep groove bearing", item.Description)
	assert.Equal(t, "WH1", item.Warehouse)
	assert.Equal(t, 100.0, item.Available())
	assert.Equal(t, time.Date(2026, 10, 17, 6, 0, 0, 0, time.UTC), item.RefreshedAt)

	sparse, err := reader.GetItem(context.Background(), "NUT-M8")
	require.NoError(t, err)
	assert.Empty(t, sparse.Description)
	assert.True(t, sparse.RefreshedAt.IsZero())

	missing, err := reader.GetItem(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestBuildItemQuery(t *testing.T) {
	assert.Contains(t, buildItemQuery("inventory_snapshot_v"), `FROM "inventory_snapshot_v"`)
	assert.Contains(t, buildItemQuery("erp.stock_v"), `FROM "erp"."stock_v"`)
	assert.Contains(t, buildItemQuery(`bad"name`), `FROM "bad""name"`)
}

func TestDescribeError(t *testing.T) {
	err := describeError(&pq.Error{Code: "42P01", Message: `relation "inventory_snapshot_v" does not exist`})
	assert.Contains(t, err.Error(), "undefined_table")

	plain := errors.New("connection reset")
	assert.ErrorIs(t, describeError(plain), plain)
}

func TestOpen_RequiresDSN(t *testing.T) {
	_, err := Open(Config{}, zap.NewNop())
	assert.Error(t, err)
}
