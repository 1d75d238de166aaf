package db

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// InTx runs fn inside a single transaction. The transaction holds one pooled
// connection for its lifetime. fn's error is returned unchanged in its chain
// after a rollback; a nil error commits. The connection goes back to the pool
// on every path, including a panic in fn.
func InTx(ctx context.Context, pool Pool, fn func(tx Querier) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "db: begin tx")
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// Use a fresh context so a cancelled caller context still releases the
		// connection.
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			zap.L().Warn("db: rollback failed", zap.Error(rbErr))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "db: commit tx")
	}
	committed = true
	return nil
}
