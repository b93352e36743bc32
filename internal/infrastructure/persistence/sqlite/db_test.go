package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/uxone/internal/domain/entity"
)

func openDB(t *testing.T) *DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "tx.db")+"?_txlock=immediate&_busy_timeout=1000")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	_, err = sqlDB.Exec(`CREATE TABLE items (name TEXT NOT NULL UNIQUE)`)
	require.NoError(t, err)
	return NewDB(sqlDB, zap.NewNop())
}

func countItems(t *testing.T, db *DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n))
	return n
}

func TestWithTransaction_CommitAndRollback(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	err := db.WithTransaction(ctx, func(txCtx context.Context) error {
		require.NotNil(t, TxFromContext(txCtx))
		_, err := Conn(txCtx, db.DB).ExecContext(txCtx, `INSERT INTO items (name) VALUES ('a')`)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countItems(t, db))

	boom := errors.New("boom")
	err = db.WithTransaction(ctx, func(txCtx context.Context) error {
		_, err := Conn(txCtx, db.DB).ExecContext(txCtx, `INSERT INTO items (name) VALUES ('b')`)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, countItems(t, db))
}

func TestWithTransaction_NestedJoinsOuter(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	err := db.WithTransaction(ctx, func(outer context.Context) error {
		outerTx := TxFromContext(outer)
		return db.WithTransaction(outer, func(inner context.Context) error {
			assert.Same(t, outerTx, TxFromContext(inner))
			_, err := Conn(inner, db.DB).ExecContext(inner, `INSERT INTO items (name) VALUES ('nested')`)
			return err
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countItems(t, db))
}

func TestWithTransaction_PanicRollsBack(t *testing.T) {
	db := openDB(t)

	assert.Panics(t, func() {
		_ = db.WithTransaction(context.Background(), func(txCtx context.Context) error {
			_, _ = Conn(txCtx, db.DB).ExecContext(txCtx, `INSERT INTO items (name) VALUES ('p')`)
			panic("handler bug")
		})
	})
	assert.Equal(t, 0, countItems(t, db))
}

func TestConn_WithoutTransaction(t *testing.T) {
	db := openDB(t)
	assert.Nil(t, TxFromContext(context.Background()))
	assert.Equal(t, Executor(db.DB), Conn(context.Background(), db.DB))
}

func TestErrorClassification(t *testing.T) {
	busy := sqlite3.Error{Code: sqlite3.ErrBusy}
	locked := sqlite3.Error{Code: sqlite3.ErrLocked}
	unique := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}

	assert.True(t, IsBusy(busy))
	assert.True(t, IsBusy(locked))
	assert.False(t, IsBusy(unique))
	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(errors.New("other")))

	assert.ErrorIs(t, TranslateError(busy), entity.ErrStorageBusy)
	plain := errors.New("disk I/O error")
	assert.Equal(t, plain, TranslateError(plain))
	assert.NoError(t, TranslateError(nil))
}

func TestUniqueViolationFromDriver(t *testing.T) {
	db := openDB(t)
	_, err := db.Exec(`INSERT INTO items (name) VALUES ('dup')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO items (name) VALUES ('dup')`)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}
