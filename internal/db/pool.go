package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker/v2"

	"pgist/internal/config"
)

// acquirer is the part of *pgxpool.Pool used by PgxPool.
type acquirer interface {
	Acquire(ctx context.Context) (*pgxpool.Conn, error)
	Close()
}

// PgxPool adapts *pgxpool.Pool to Pool. Acquisition is bounded by the
// configured acquire timeout and guarded by a circuit breaker: after
// repeated acquisition failures it fails fast with gobreaker.ErrOpenState
// instead of queueing callers behind a database that is down. The breaker
// never retries.
type PgxPool struct {
	pool           acquirer
	breaker        *gobreaker.CircuitBreaker[*pgxpool.Conn]
	acquireTimeout time.Duration
}

// NewPool builds a pgx pool from cfg and wraps it.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*PgxPool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		// The parse error can echo the connection string; do not wrap it.
		return nil, errors.New("parsing database URL: invalid connection string")
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns) //nolint:gosec // validated small positive value
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns) //nolint:gosec // validated small positive value
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
	if cfg.ApplicationName != "" {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	logger.Info("connection pool created",
		"max_conns", poolCfg.MaxConns,
		"min_conns", poolCfg.MinConns,
		"acquire_timeout", cfg.AcquireTimeout,
	)

	return newPgxPool(pool, cfg.AcquireTimeout, cfg.BreakerFailures, logger), nil
}

func newPgxPool(pool acquirer, acquireTimeout time.Duration, breakerFailures int, logger *slog.Logger) *PgxPool {
	p := &PgxPool{
		pool:           pool,
		acquireTimeout: acquireTimeout,
	}
	if breakerFailures > 0 {
		p.breaker = gobreaker.NewCircuitBreaker[*pgxpool.Conn](gobreaker.Settings{
			Name:        "pgist-pool-acquire",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(breakerFailures) //nolint:gosec // validated positive
			},
			IsSuccessful: func(err error) bool {
				// A caller giving up is not a database failure.
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("connection breaker state changed",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
		})
	}
	return p
}

// Acquire borrows a connection, waiting at most the acquire timeout.
func (p *PgxPool) Acquire(ctx context.Context) (Conn, error) {
	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}

	acquire := func() (*pgxpool.Conn, error) {
		return p.pool.Acquire(ctx)
	}

	var (
		conn *pgxpool.Conn
		err  error
	)
	if p.breaker != nil {
		conn, err = p.breaker.Execute(acquire)
	} else {
		conn, err = acquire()
	}
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	return conn, nil
}

// Close closes every connection in the pool.
func (p *PgxPool) Close() {
	p.pool.Close()
}

// Open creates a DB from the full configuration: pool, logger and cursor
// batch size.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*DB, error) {
	pool, err := NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	return New(pool, WithLogger(logger), WithBatchSize(cfg.Cursor.BatchSize)), nil
}
