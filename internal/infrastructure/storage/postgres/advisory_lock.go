package postgres

import (
	"context"
	"fmt"

	"fleetledger/internal/domain/topup"
)

var _ topup.Locker = (*AdvisoryLocker)(nil)

// AdvisoryLocker scopes singleton jobs with transaction-level advisory locks.
// The lock is taken in the transaction that fn joins, so it is released by
// the commit or rollback that ends fn's work, including on crashes.
type AdvisoryLocker struct {
	txm *TxManager
}

func NewAdvisoryLocker(txm *TxManager) *AdvisoryLocker {
	return &AdvisoryLocker{txm: txm}
}

// TryWithLock runs fn while holding pg_try_advisory_xact_lock(hashtext(name)).
func (l *AdvisoryLocker) TryWithLock(ctx context.Context, name string, fn func(ctx context.Context) error) (bool, error) {
	acquired := false
	err := l.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		row := l.txm.GetQuerier(ctx).QueryRow(ctx, "SELECT pg_try_advisory_xact_lock(hashtext($1))", name)
		if err := row.Scan(&acquired); err != nil {
			return fmt.Errorf("try advisory lock %q: %w", name, err)
		}
		if !acquired {
			return nil
		}
		return fn(ctx)
	})
	return acquired, err
}
