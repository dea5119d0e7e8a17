package db

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"pgist/internal/sqlfrag"
)

// Stream runs f through a server-side cursor and yields its rows, fetching
// the configured batch size per round trip.
func (d *DB) Stream(ctx context.Context, f sqlfrag.Fragment) iter.Seq2[Row, error] {
	return d.StreamBatch(ctx, f, d.batchSize)
}

// StreamBatch is Stream with an explicit batch size.
//
// The connection stays checked out while the loop runs and is released when
// the rows run out, an error is yielded, or the caller breaks out early. An
// error ends the sequence.
//
//	for row, err := range database.StreamBatch(ctx, q, 25) {
//		if err != nil {
//			return err
//		}
//		...
//	}
func (d *DB) StreamBatch(ctx context.Context, f sqlfrag.Fragment, batchSize int) iter.Seq2[Row, error] {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return func(yield func(Row, error) bool) {
		s, err := d.Acquire(ctx)
		if err != nil {
			yield(Row{}, err)
			return
		}
		defer s.Release()

		c := &cursor{
			s:     s,
			name:  cursorName(),
			batch: batchSize,
		}
		if err := c.open(ctx, f); err != nil {
			yield(Row{}, err)
			return
		}

		failed := false
		defer func() { c.close(ctx, failed) }()

		for {
			res, err := c.fetch(ctx)
			if err != nil {
				failed = true
				yield(Row{}, err)
				return
			}
			if res.Len() == 0 {
				return
			}
			for row := range res.Rows() {
				if !yield(row, nil) {
					return
				}
			}
		}
	}
}

type cursor struct {
	s     *Session
	name  string
	batch int
}

// cursorName returns a fresh identifier so concurrent cursors never clash.
func cursorName() string {
	return pgx.Identifier{"pgist_cursor_" + strings.ReplaceAll(uuid.NewString(), "-", "")}.Sanitize()
}

func (c *cursor) open(ctx context.Context, f sqlfrag.Fragment) error {
	if _, err := c.s.conn.Exec(ctx, "BEGIN"); err != nil {
		return fmt.Errorf("beginning cursor transaction: %w", err)
	}

	declare := sqlfrag.SQL("DECLARE "+c.name+" NO SCROLL CURSOR FOR ", f)
	if _, err := c.s.conn.Exec(ctx, declare.Text(), declare.Values()...); err != nil {
		if _, rbErr := c.s.conn.Exec(context.WithoutCancel(ctx), "ROLLBACK"); rbErr != nil {
			c.s.logger.Warn("cursor rollback failed", "cursor", c.name, "error", rbErr)
		}
		return classifyError(err)
	}

	c.s.logger.Debug("cursor opened", "cursor", c.name, "batch_size", c.batch)
	return nil
}

func (c *cursor) fetch(ctx context.Context) (*Result, error) {
	return c.s.Query(ctx, sqlfrag.Unsafe(fmt.Sprintf("FETCH %d FROM %s", c.batch, c.name)))
}

// close ends the cursor's transaction. It runs on a context that ignores
// cancellation so an abandoned loop still cleans up its session.
func (c *cursor) close(ctx context.Context, failed bool) {
	ctx = context.WithoutCancel(ctx)

	if failed {
		if _, err := c.s.conn.Exec(ctx, "ROLLBACK"); err != nil {
			c.s.logger.Warn("cursor rollback failed", "cursor", c.name, "error", err)
		}
		return
	}

	if _, err := c.s.conn.Exec(ctx, "CLOSE "+c.name); err != nil {
		c.s.logger.Warn("cursor close failed", "cursor", c.name, "error", err)
	}
	if _, err := c.s.conn.Exec(ctx, "COMMIT"); err != nil {
		c.s.logger.Warn("cursor commit failed", "cursor", c.name, "error", err)
	}
}
