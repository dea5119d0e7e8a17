package db

import (
	"context"
	"fmt"

	"pgist/internal/sqlfrag"
	"pgist/internal/types"
)

// TxState is the lifecycle state of a Tx.
type TxState int

const (
	TxOpen TxState = iota
	TxCommitted
	TxRolledBack
)

func (s TxState) String() string {
	switch s {
	case TxOpen:
		return "open"
	case TxCommitted:
		return "committed"
	case TxRolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("TxState(%d)", int(s))
	}
}

// Tx is the handle passed to a DB.Tx callback. Its queries run inside the
// transaction on the transaction's own connection.
type Tx struct {
	s     *Session
	state TxState
}

// Query runs f inside the transaction.
func (t *Tx) Query(ctx context.Context, f sqlfrag.Fragment) (*Result, error) {
	return t.s.Query(ctx, f)
}

// One runs f inside the transaction and returns its first row.
func (t *Tx) One(ctx context.Context, f sqlfrag.Fragment) (Row, bool, error) {
	return t.s.One(ctx, f)
}

// OnlyOne runs f inside the transaction; see Session.OnlyOne.
func (t *Tx) OnlyOne(ctx context.Context, f sqlfrag.Fragment) (Row, error) {
	return t.s.OnlyOne(ctx, f)
}

// State reports whether the transaction is open, committed or rolled back.
func (t *Tx) State() TxState {
	return t.state
}

// Rollback aborts the transaction. Only the first call issues ROLLBACK;
// later calls, and calls after commit, do nothing. When the callback returns
// after an explicit Rollback, DB.Tx does not commit.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.state != TxOpen {
		return nil
	}
	t.state = TxRolledBack

	if _, err := t.s.conn.Exec(ctx, "ROLLBACK"); err != nil {
		return fmt.Errorf("rolling back transaction: %w", err)
	}
	return nil
}

// Tx runs fn inside a transaction on one borrowed connection.
//
// If fn returns nil and did not call Rollback, the transaction is committed.
// If fn returns an error or panics, the transaction is rolled back and the
// error is returned (or the panic resumed). The connection goes back to the
// pool only after COMMIT or ROLLBACK has completed.
func (d *DB) Tx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) (err error) {
	s, err := d.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.Release()

	if _, err := s.conn.Exec(ctx, "BEGIN"); err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	tx := &Tx{s: s, state: TxOpen}

	defer func() {
		if p := recover(); p != nil {
			d.rollbackQuietly(ctx, tx)
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		d.rollbackQuietly(ctx, tx)
		return err
	}

	if tx.state == TxRolledBack {
		return nil
	}

	tag, err := s.conn.Exec(ctx, "COMMIT")
	if err != nil {
		// COMMIT either succeeded or the server aborted the transaction;
		// in both cases nothing is left open.
		tx.state = TxRolledBack
		return classifyError(err)
	}
	if tag.String() == "ROLLBACK" {
		// The server answers COMMIT with ROLLBACK when a statement inside
		// the transaction failed and the callback swallowed the error.
		tx.state = TxRolledBack
		return types.NewAppError(types.ErrCodeInternalDB, "transaction was aborted by the server and rolled back", nil)
	}

	tx.state = TxCommitted
	return nil
}

// rollbackQuietly rolls back after a failed callback. The callback's error
// is what the caller needs to see, so a rollback failure is only logged.
func (d *DB) rollbackQuietly(ctx context.Context, tx *Tx) {
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
		d.logger.Warn("transaction rollback failed", "error", err)
	}
}

// InTx runs fn in a transaction like DB.Tx and returns fn's value. The value
// is returned even when fn rolled back explicitly.
func InTx[T any](ctx context.Context, d *DB, fn func(ctx context.Context, tx *Tx) (T, error)) (T, error) {
	var out T
	err := d.Tx(ctx, func(ctx context.Context, tx *Tx) error {
		v, err := fn(ctx, tx)
		out = v
		return err
	})
	return out, err
}
