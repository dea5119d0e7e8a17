package migrate

import (
	"context"
	"log/slog"
	"sync"

	"pgist/internal/db"
	"pgist/internal/sqlfrag"
	"pgist/internal/types"
)

// Lock is a held migration lock. Advisory locks belong to the session that
// took them, so a Lock keeps its connection checked out until Release.
type Lock struct {
	session *db.Session
	logger  *slog.Logger
	once    sync.Once
	err     error
}

// acquireLock takes the advisory lock on a dedicated session without
// waiting. If another session holds it, the error has ErrCodeMigrationLocked.
func acquireLock(ctx context.Context, database *db.DB, logger *slog.Logger) (*Lock, error) {
	s, err := database.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	row, err := s.OnlyOne(ctx, sqlfrag.SQL("SELECT pg_try_advisory_lock(", LockToken, ") AS locked"))
	if err != nil {
		s.Release()
		return nil, err
	}
	if locked, _ := db.Value[bool](row, "locked"); !locked {
		s.Release()
		return nil, types.NewAppError(types.ErrCodeMigrationLocked,
			"another process is running migrations", nil)
	}

	logger.Debug("migration lock acquired")
	return &Lock{session: s, logger: logger}, nil
}

// Queryable returns the session holding the lock.
func (l *Lock) Queryable() db.Queryable {
	return l.session
}

// Release unlocks and returns the session to the pool. Only the first call
// does anything; later calls return its result.
func (l *Lock) Release(ctx context.Context) error {
	l.once.Do(func() {
		defer l.session.Release()

		ctx := context.WithoutCancel(ctx)
		_, l.err = l.session.Query(ctx, sqlfrag.SQL("SELECT pg_advisory_unlock(", LockToken, ")"))
		if l.err != nil {
			l.logger.Warn("migration unlock failed", "error", l.err)
			return
		}
		l.logger.Debug("migration lock released")
	})
	return l.err
}
