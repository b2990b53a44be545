package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"fleetledger/pkg/logger"
)

//go:embed schema.sql
var schemaSQL string

// Migrate applies the ledger schema. Every statement is idempotent, so it is
// safe to run on each start.
func Migrate(ctx context.Context, txm *TxManager) error {
	err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
		// Serialize concurrent starters.
		if _, err := txm.GetQuerier(ctx).Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext('fleetledger_migrate'))"); err != nil {
			return err
		}
		_, err := txm.GetQuerier(ctx).Exec(ctx, schemaSQL)
		return err
	})
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	logger.Info(ctx, "database schema applied")
	return nil
}
