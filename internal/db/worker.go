package db

import (
	"context"
	"database/sql"

	"github.com/prismwall/prismd/internal/lane"
)

type TxFn func(ctx context.Context, tx *sql.Tx) error

// Worker runs sqlite write transactions on the process lane. A write issued
// from inside a lane job commits inline.
type Worker struct {
	db   *sql.DB
	lane *lane.Lane
}

func NewWorker(db *sql.DB, l *lane.Lane) *Worker {
	return &Worker{db: db, lane: l}
}

func (w *Worker) Do(ctx context.Context, fn TxFn) error {
	return w.lane.Do(ctx, func(ctx context.Context) error {
		tx, err := w.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}

		if err := fn(ctx, tx); err != nil {
			_ = tx.Rollback()
			return err
		}

		return tx.Commit()
	})
}
