// Package storetest opens migrated in-memory device stores for tests.
package storetest

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/dmitrijs2005/gophscan/internal/client/migrations"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

var seq atomic.Int64

// Open returns a fresh, fully migrated in-memory database private to t.
// The pool is limited to one connection so every query sees the same
// in-memory database.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:storetest_%d?mode=memory&cache=shared", seq.Add(1))

	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migrations.Up(context.Background(), db))
	return db
}
