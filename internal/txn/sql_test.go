package txn

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/modreg/internal/testutil"
)

const itemsSchema = `CREATE TABLE items (name TEXT PRIMARY KEY)`

func countItems(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n))
	return n
}

func TestRunInTx_CommitsAndRunsAfterCommit(t *testing.T) {
	db := testutil.NewTestDB(t, itemsSchema)
	committed := false

	err := RunInTx(context.Background(), db, func(ctx context.Context) error {
		sqlTx, ok := SQLFromContext(ctx)
		require.True(t, ok)
		_, err := sqlTx.ExecContext(ctx, `INSERT INTO items (name) VALUES ('a')`)
		require.NoError(t, err)

		tx, err := Require(ctx)
		require.NoError(t, err)
		return tx.RunAfterCommit(func() { committed = true })
	})
	require.NoError(t, err)
	require.True(t, committed)
	require.Equal(t, 1, countItems(t, db))
}

func TestRunInTx_ErrorRollsBack(t *testing.T) {
	db := testutil.NewTestDB(t, itemsSchema)
	boom := errors.New("boom")
	rolledBack, committed := false, false

	err := RunInTx(context.Background(), db, func(ctx context.Context) error {
		sqlTx, _ := SQLFromContext(ctx)
		_, err := sqlTx.ExecContext(ctx, `INSERT INTO items (name) VALUES ('a')`)
		require.NoError(t, err)

		tx, _ := FromContext(ctx)
		require.NoError(t, tx.RunOnRollback(func() { rolledBack = true }))
		require.NoError(t, tx.RunAfterCommit(func() { committed = true }))
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.True(t, rolledBack)
	require.False(t, committed)
	require.Zero(t, countItems(t, db))
}

func TestRunInTx_PanicRollsBack(t *testing.T) {
	db := testutil.NewTestDB(t, itemsSchema)
	rolledBack := false

	require.Panics(t, func() {
		_ = RunInTx(context.Background(), db, func(ctx context.Context) error {
			tx, _ := FromContext(ctx)
			require.NoError(t, tx.RunOnRollback(func() { rolledBack = true }))
			panic("boom")
		})
	})
	require.True(t, rolledBack)
}

func TestSQLTx_FinishTwice(t *testing.T) {
	db := testutil.NewTestDB(t, itemsSchema)
	tx, err := BeginSQL(context.Background(), db, nil)
	require.NoError(t, err)

	require.NoError(t, tx.Rollback())
	require.ErrorIs(t, tx.Commit(), ErrTxDone)
	require.ErrorIs(t, tx.Rollback(), ErrTxDone)
}

func TestSQLFromContext_InMemoryTxHasNoSQL(t *testing.T) {
	_, ok := SQLFromContext(WithTx(context.Background(), Begin()))
	require.False(t, ok)
}
