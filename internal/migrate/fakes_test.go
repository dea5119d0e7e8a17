package migrate

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"pgist/internal/db"
)

// fakeDB is an in-memory stand-in for the statements the engine issues:
// the migrations table, the advisory lock and arbitrary migration SQL.
type fakeDB struct {
	mu sync.Mutex

	tableExists bool
	applied     map[string]time.Time
	lockedBy    int // 0 when free, -1 when held by another session
	statements  []string
	failOn      string
	acquired    int
	released    int
	nextSession int
}

func newFakeDB() *fakeDB {
	return &fakeDB{applied: make(map[string]time.Time)}
}

func (f *fakeDB) database() *db.DB {
	return db.New(f, db.WithLogger(discardLogger()))
}

func (f *fakeDB) Acquire(context.Context) (db.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquired++
	f.nextSession++
	return &fakeConn{db: f, session: f.nextSession}, nil
}

func (f *fakeDB) Close() {}

// migrationStatements returns the statements that were not bookkeeping.
func (f *fakeDB) migrationStatements() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.statements {
		if strings.Contains(s, "migrations") || strings.Contains(s, "advisory") {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (f *fakeDB) appliedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.applied))
	for id := range f.applied {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (f *fakeDB) run(session int, sql string, args []any) (*fakeRows, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statements = append(f.statements, sql)

	switch {
	case f.failOn != "" && strings.Contains(sql, f.failOn):
		return nil, &pgconn.PgError{Code: "42P07", Message: "relation already exists"}

	case strings.HasPrefix(sql, "CREATE TABLE IF NOT EXISTS migrations"):
		f.tableExists = true
		return emptyRows(), nil

	case strings.HasPrefix(sql, "SELECT id, created_at FROM migrations"):
		if !f.tableExists {
			return nil, &pgconn.PgError{Code: "42P01", Message: `relation "migrations" does not exist`}
		}
		var latest string
		for id := range f.applied {
			if id > latest {
				latest = id
			}
		}
		if latest == "" {
			return newFakeRows([]string{"id", "created_at"}), nil
		}
		return newFakeRows([]string{"id", "created_at"}, []any{latest, f.applied[latest]}), nil

	case strings.HasPrefix(sql, "INSERT INTO migrations"):
		id := args[0].(string)
		if _, dup := f.applied[id]; dup {
			return nil, &pgconn.PgError{Code: "23505", ConstraintName: "migrations_pkey"}
		}
		f.applied[id] = time.Date(2025, 3, 9, 15, 0, 0, 0, time.UTC)
		return emptyRows(), nil

	case strings.HasPrefix(sql, "SELECT pg_try_advisory_lock"):
		if args[0] != LockToken {
			return nil, errors.New("unexpected lock token")
		}
		ok := f.lockedBy == 0 || f.lockedBy == session
		if ok {
			f.lockedBy = session
		}
		return newFakeRows([]string{"locked"}, []any{ok}), nil

	case strings.HasPrefix(sql, "SELECT pg_advisory_unlock"):
		ok := f.lockedBy == session
		if ok {
			f.lockedBy = 0
		}
		return newFakeRows([]string{"pg_advisory_unlock"}, []any{ok}), nil
	}
	return emptyRows(), nil
}

type fakeConn struct {
	db      *fakeDB
	session int
}

func (c *fakeConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	_, err := c.db.run(c.session, sql, args)
	return pgconn.NewCommandTag(""), err
}

func (c *fakeConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	rows, err := c.db.run(c.session, sql, args)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *fakeConn) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("QueryRow is not used")
}

func (c *fakeConn) Release() {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.released++
}

type fakeRows struct {
	fields []pgconn.FieldDescription
	data   [][]any
	idx    int
}

func newFakeRows(columns []string, data ...[]any) *fakeRows {
	fds := make([]pgconn.FieldDescription, len(columns))
	for i, c := range columns {
		fds[i] = pgconn.FieldDescription{Name: c}
	}
	return &fakeRows{fields: fds, data: data, idx: -1}
}

func emptyRows() *fakeRows { return newFakeRows(nil) }

func (r *fakeRows) Close() {}

func (r *fakeRows) Err() error { return nil }

func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("") }

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return r.fields }

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.data)
}

func (r *fakeRows) Scan(...any) error { return nil }

func (r *fakeRows) Values() ([]any, error) { return r.data[r.idx], nil }

func (r *fakeRows) RawValues() [][]byte { return nil }

func (r *fakeRows) Conn() *pgx.Conn { return nil }
