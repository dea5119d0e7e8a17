// Package db executes sqlfrag fragments against PostgreSQL through a pooled
// connection. Every operation borrows exactly one connection from the Pool
// and returns it on every exit path: a single query, a transaction (Tx) and
// a streaming cursor (Stream) each own their connection until they finish.
//
// Result rows are returned with camelCase field names; see Row.
package db

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"pgist/internal/sqlfrag"
)

// DBTX is the minimal statement interface shared by *pgxpool.Pool,
// *pgxpool.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Conn is a connection borrowed from a Pool. It must be released exactly
// once.
type Conn interface {
	DBTX
	Release()
}

// Pool hands out connections. Acquire may block until one is free or the
// pool's acquire timeout elapses.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
	Close()
}

// Queryable is the query surface shared by DB, Session and Tx. Migration
// functions receive one.
type Queryable interface {
	Query(ctx context.Context, f sqlfrag.Fragment) (*Result, error)
	One(ctx context.Context, f sqlfrag.Fragment) (Row, bool, error)
	OnlyOne(ctx context.Context, f sqlfrag.Fragment) (Row, error)
}

// DefaultBatchSize is the number of rows fetched per round trip by Stream
// when no batch size is configured.
const DefaultBatchSize = 100

// DB runs queries on connections borrowed from a Pool.
type DB struct {
	pool      Pool
	logger    *slog.Logger
	batchSize int
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger used for query and transaction diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(d *DB) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithBatchSize sets the default cursor batch size used by Stream.
func WithBatchSize(n int) Option {
	return func(d *DB) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

// New creates a DB over pool.
func New(pool Pool, opts ...Option) *DB {
	d := &DB{
		pool:      pool,
		logger:    slog.Default(),
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Acquire borrows a connection and returns it as a Session. The caller must
// call Release.
func (d *DB) Acquire(ctx context.Context) (*Session, error) {
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return newSession(conn, d.logger), nil
}

// Query runs f and returns its rows.
func (d *DB) Query(ctx context.Context, f sqlfrag.Fragment) (*Result, error) {
	s, err := d.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Release()

	return s.Query(ctx, f)
}

// One runs f and returns its first row. ok is false when no rows came back.
func (d *DB) One(ctx context.Context, f sqlfrag.Fragment) (Row, bool, error) {
	s, err := d.Acquire(ctx)
	if err != nil {
		return Row{}, false, err
	}
	defer s.Release()

	return s.One(ctx, f)
}

// OnlyOne runs f and returns its first row, failing with ErrCodeOnlyOne when
// there is none. See Session.OnlyOne.
func (d *DB) OnlyOne(ctx context.Context, f sqlfrag.Fragment) (Row, error) {
	s, err := d.Acquire(ctx)
	if err != nil {
		return Row{}, err
	}
	defer s.Release()

	return s.OnlyOne(ctx, f)
}

// Close closes the underlying pool.
func (d *DB) Close() {
	d.pool.Close()
}

var (
	_ Queryable = (*DB)(nil)
	_ Queryable = (*Session)(nil)
	_ Queryable = (*Tx)(nil)
)
