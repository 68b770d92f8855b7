package util

import (
	"cloud.google.com/go/logging"
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
)

var nextTxId uint32

// RunTx runs f in a transaction on db, committing when f succeeds and rolling back otherwise.
func RunTx(ctx context.Context, db *sql.DB, f func(ctx context.Context, tx *sql.Tx) error) error {
	txid := atomic.AddUint32(&nextTxId, 1)
	ctx = WithLoggerValue(ctx, "db_tx_id", fmt.Sprintf("tx_%d", txid))

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to create transaction [%d]: %w", txid, err)
	}
	Logf(ctx, logging.Debug, "started new database transaction [%d]", txid)

	err = f(ctx, tx)
	if err != nil {
		Logf(ctx, logging.Debug, "rolling back database transaction [%d]", txid)
		errRollback := tx.Rollback()
		if errRollback != nil {
			Logf(ctx, logging.Warning, "failed to rollback database transaction [%d]: %v", txid, errRollback)
		}
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit database transaction [%d]: %w", txid, err)
	}

	Logf(ctx, logging.Debug, "successfully committed database transaction [%d]", txid)
	return nil
}
