package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"pgist/internal/sqlfrag"
	"pgist/internal/types"
)

// pgxConnHolder is implemented by *pgxpool.Conn and pgx.Tx. It gives access
// to the low-level connection needed for multi-statement batches.
type pgxConnHolder interface {
	Conn() *pgx.Conn
}

// Session is a borrowed connection with the Queryable surface. Statements
// issued through one Session run on the same database session, in order.
type Session struct {
	conn        Conn
	logger      *slog.Logger
	releaseOnce sync.Once
}

func newSession(conn Conn, logger *slog.Logger) *Session {
	return &Session{conn: conn, logger: logger}
}

// Release returns the connection to the pool. Calling it again is a no-op.
func (s *Session) Release() {
	s.releaseOnce.Do(s.conn.Release)
}

// Query runs f and returns its rows. A fragment without values may hold
// several ;-separated statements; only the last statement's rows are
// returned.
func (s *Session) Query(ctx context.Context, f sqlfrag.Fragment) (*Result, error) {
	return execute(ctx, s.conn, f, s.logger)
}

// One runs f and returns its first row. ok is false when no rows came back;
// that is not an error.
func (s *Session) One(ctx context.Context, f sqlfrag.Fragment) (Row, bool, error) {
	return queryOne(ctx, s.conn, f, s.logger)
}

// OnlyOne runs f and returns its first row, failing with ErrCodeOnlyOne when
// there is none.
//
// Extra rows are not an error: the first row is returned and the rest are
// ignored. Callers that need to reject multi-row results must check with
// Query.
func (s *Session) OnlyOne(ctx context.Context, f sqlfrag.Fragment) (Row, error) {
	return queryOnlyOne(ctx, s.conn, f, s.logger)
}

func queryOne(ctx context.Context, conn DBTX, f sqlfrag.Fragment, logger *slog.Logger) (Row, bool, error) {
	res, err := execute(ctx, conn, f, logger)
	if err != nil {
		return Row{}, false, err
	}
	row, ok := res.first()
	return row, ok, nil
}

func queryOnlyOne(ctx context.Context, conn DBTX, f sqlfrag.Fragment, logger *slog.Logger) (Row, error) {
	row, ok, err := queryOne(ctx, conn, f, logger)
	if err != nil {
		return Row{}, err
	}
	if !ok {
		return Row{}, types.NewAppError(types.ErrCodeOnlyOne, "query returned no rows", nil)
	}
	return row, nil
}

// execute runs f on conn. Fragments with values go through the extended
// protocol as a single statement. Fragments without values go through the
// simple protocol when the connection allows it, so batches work.
func execute(ctx context.Context, conn DBTX, f sqlfrag.Fragment, logger *slog.Logger) (*Result, error) {
	text := f.Text()
	values := f.Values()

	logger.Debug("executing query", "sql", text, "params", len(values))

	if len(values) == 0 {
		if holder, ok := conn.(pgxConnHolder); ok {
			return executeBatch(ctx, holder.Conn(), text)
		}
	}

	rows, err := conn.Query(ctx, text, values...)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	var raw [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, classifyError(err)
		}
		raw = append(raw, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}

	return newResult(newRowShape(rows.FieldDescriptions()), raw), nil
}

// executeBatch runs text on the simple protocol and keeps the last result
// set.
func executeBatch(ctx context.Context, conn *pgx.Conn, text string) (*Result, error) {
	results, err := conn.PgConn().Exec(ctx, text).ReadAll()
	if err != nil {
		return nil, classifyError(err)
	}
	if len(results) == 0 {
		return newResult(newRowShape(nil), nil), nil
	}

	last := results[len(results)-1]
	typeMap := conn.TypeMap()

	raw := make([][]any, len(last.Rows))
	for i, row := range last.Rows {
		vals := make([]any, len(row))
		for j, src := range row {
			v, err := decodeValue(typeMap, last.FieldDescriptions[j], src)
			if err != nil {
				return nil, fmt.Errorf("decoding column %q: %w", last.FieldDescriptions[j].Name, err)
			}
			vals[j] = v
		}
		raw[i] = vals
	}

	return newResult(newRowShape(last.FieldDescriptions), raw), nil
}

func decodeValue(m *pgtype.Map, fd pgconn.FieldDescription, src []byte) (any, error) {
	if src == nil {
		return nil, nil
	}
	if t, ok := m.TypeForOID(fd.DataTypeOID); ok {
		return t.Codec.DecodeValue(m, fd.DataTypeOID, fd.Format, src)
	}
	if fd.Format == pgtype.TextFormatCode {
		return string(src), nil
	}
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

// classifyError maps a unique violation to ErrCodeUniqueConstraint. Every
// other error is returned unchanged.
func classifyError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return types.NewUniqueConstraintError(pgErr.Message, pgErr.ConstraintName, err)
	}
	return err
}
