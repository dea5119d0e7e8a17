// Package migrate applies ordered, forward-only schema migrations to a
// PostgreSQL database.
//
// A migration is a file named "<14-digit UTC timestamp>-<slug>.go" or
// "<...>.sql" in the migrations directory. SQL files are executed as one
// batch. Go files are compiled into the binary and bind themselves to their
// id with Register from an init function:
//
//	func init() {
//		migrate.Register("20250309152556", func(ctx context.Context, q db.Queryable) error {
//			_, err := q.Query(ctx, sqlfrag.SQL(`CREATE TABLE orgs (id SERIAL PRIMARY KEY)`))
//			return err
//		})
//	}
//
// Applied ids are recorded in the "migrations" table. Runs are serialized
// cluster-wide by a session-scoped advisory lock.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"pgist/internal/db"
	"pgist/internal/sqlfrag"
)

const (
	// TableName is the bookkeeping table.
	TableName = "migrations"

	// LockToken keys the advisory lock taken while a migration runs. It
	// must be the same in every deployed process and is not configurable.
	LockToken int64 = 4_812_262_019_337_655_214

	// IDLayout formats a migration id from its UTC creation time.
	IDLayout = "20060102150405"
)

// Record is one row of the migrations table.
type Record struct {
	ID        string
	CreatedAt time.Time
}

// EnsureMigrationsTable creates the migrations table if it does not exist.
func EnsureMigrationsTable(ctx context.Context, q db.Queryable) error {
	_, err := q.Query(ctx, sqlfrag.Unsafe(`CREATE TABLE IF NOT EXISTS `+TableName+` (
  id TEXT NOT NULL PRIMARY KEY,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`))
	if err != nil {
		return fmt.Errorf("creating %s table: %w", TableName, err)
	}
	return nil
}

// RecordMigration inserts id. Recording an id twice fails with
// ErrCodeUniqueConstraint.
func RecordMigration(ctx context.Context, q db.Queryable, id string) error {
	_, err := q.Query(ctx, sqlfrag.SQL("INSERT INTO "+TableName+" (id) VALUES (", id, ")"))
	return err
}

// LatestMigration returns the record with the greatest id, or nil when
// nothing has been applied. A missing table counts as nothing applied.
func LatestMigration(ctx context.Context, q db.Queryable) (*Record, error) {
	row, ok, err := q.One(ctx, sqlfrag.Unsafe("SELECT id, created_at FROM "+TableName+" ORDER BY id DESC LIMIT 1"))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
			return nil, nil
		}
		return nil, fmt.Errorf("reading latest migration: %w", err)
	}
	if !ok {
		return nil, nil
	}

	id, _ := db.Value[string](row, "id")
	createdAt, _ := db.Value[time.Time](row, "createdAt")
	return &Record{ID: id, CreatedAt: createdAt}, nil
}
