package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/gophscan/internal/client/migrations"
	"github.com/dmitrijs2005/gophscan/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/gophscan/internal/client/repositories/queue"
	"github.com/dmitrijs2005/gophscan/internal/client/repositories/tickets"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Repositories bundles the local store of the device.
type Repositories struct {
	DB       *sql.DB
	Tickets  *tickets.SQLiteRepository
	Queue    *queue.SQLiteRepository
	Metadata *metadata.SQLiteRepository
}

// Close closes the underlying database.
func (r *Repositories) Close() error {
	return r.DB.Close()
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrations.Up(ctx, db)
}

// storeDSN enables WAL, a busy timeout and foreign keys on a database file.
func storeDSN(path string) string {
	return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"
}

// InitDatabase opens (creating if needed) the database file at path and
// applies the migrations.
func InitDatabase(ctx context.Context, path string) (*Repositories, error) {
	db, err := sql.Open("sqlite", storeDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repositories{
		DB:       db,
		Tickets:  tickets.NewSQLiteRepository(db),
		Queue:    queue.NewSQLiteRepository(db),
		Metadata: metadata.NewSQLiteRepository(db),
	}, nil
}
