package migrations

import (
	"context"

	"pgist/internal/db"
	"pgist/internal/migrate"
	"pgist/internal/sqlfrag"
)

func init() {
	migrate.Register("20250309152556", func(ctx context.Context, q db.Queryable) error {
		_, err := q.Query(ctx, sqlfrag.SQL(`
			CREATE TABLE IF NOT EXISTS orgs (
				id SERIAL PRIMARY KEY,
				name TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`))
		return err
	})
}
