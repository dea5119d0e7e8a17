package migrations

import (
	"context"

	"pgist/internal/db"
	"pgist/internal/migrate"
	"pgist/internal/sqlfrag"
)

func init() {
	migrate.Register("20250309153536", func(ctx context.Context, q db.Queryable) error {
		_, err := q.Query(ctx, sqlfrag.SQL(`
			CREATE TABLE users (
				id SERIAL PRIMARY KEY,
				org_id INTEGER REFERENCES orgs (id) ON DELETE CASCADE,
				name VARCHAR(100) NOT NULL,
				email VARCHAR(100) UNIQUE NOT NULL
			);
			CREATE INDEX users_org_id_idx ON users (org_id)`))
		return err
	})
}
