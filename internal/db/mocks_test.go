package db

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
)

// --- Mock Conn ---

// mockConn records every statement and the release in calls, so tests can
// assert ordering (for example that Release happens after COMMIT).
type mockConn struct {
	mock.Mock

	mu    sync.Mutex
	calls []string
}

func (m *mockConn) record(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, s)
}

func (m *mockConn) Statements() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *mockConn) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	m.record(firstWord(sql))
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockConn) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	m.record(firstWord(sql))
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockConn) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	m.record(firstWord(sql))
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

func (m *mockConn) Release() {
	m.record("RELEASE")
	m.Called()
}

func firstWord(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// --- Mock Pool ---

type mockPool struct {
	mock.Mock
}

func (m *mockPool) Acquire(ctx context.Context) (Conn, error) {
	args := m.Called(ctx)
	if c := args.Get(0); c != nil {
		return c.(Conn), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPool) Close() {
	m.Called()
}

func newMockDB(conn *mockConn) (*DB, *mockPool) {
	pool := new(mockPool)
	pool.On("Acquire", mock.Anything).Return(conn, nil)
	conn.On("Release").Return()
	return New(pool), pool
}

// --- Mock Rows ---

type mockRows struct {
	fields []pgconn.FieldDescription
	data   [][]any
	idx    int
	err    error
	valErr error
	closed bool
}

func newMockRows(columns []string, data ...[]any) *mockRows {
	fds := make([]pgconn.FieldDescription, len(columns))
	for i, c := range columns {
		fds[i] = pgconn.FieldDescription{Name: c}
	}
	return &mockRows{fields: fds, data: data, idx: -1}
}

func (r *mockRows) Close() { r.closed = true }

func (r *mockRows) Err() error { return r.err }

func (r *mockRows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT") }

func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return r.fields }

func (r *mockRows) RawValues() [][]byte { return nil }

func (r *mockRows) Conn() *pgx.Conn { return nil }

func (r *mockRows) Scan(dest ...any) error { return nil }

func (r *mockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *mockRows) Values() ([]any, error) {
	if r.valErr != nil {
		return nil, r.valErr
	}
	return r.data[r.idx], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
