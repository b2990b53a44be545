// Package topup_repo provides PostgreSQL persistence for top-up rules and
// fuel card transactions.
package topup_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"fleetledger/internal/core/apperror"
	"fleetledger/internal/core/id"
	"fleetledger/internal/domain/topup"
	"fleetledger/internal/infrastructure/storage/postgres"
)

const (
	rulesTable        = "fuel_card_topup_rules"
	transactionsTable = "fuel_card_transactions"
)

var (
	ruleColumns        = postgres.ExtractDBColumns[topup.Rule]()
	transactionColumns = postgres.ExtractDBColumns[topup.FuelCardTransaction]()
)

// Repo implements topup.Repository.
type Repo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

func NewRepo(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *Repo) CreateRule(ctx context.Context, rule *topup.Rule) error {
	sql, args, err := r.builder.Insert(rulesTable).SetMap(postgres.StructToMap(rule)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(fmt.Errorf("insert rule: %w", err), "topup_rule", "id", rule.ID.String())
	}
	return nil
}

func (r *Repo) GetRule(ctx context.Context, orgID, ruleID id.ID) (*topup.Rule, error) {
	sql, args, err := r.builder.Select(ruleColumns...).
		From(rulesTable).
		Where(squirrel.Eq{"organization_id": orgID, "id": ruleID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rule topup.Rule
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &rule, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("topup_rule", ruleID)
		}
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return &rule, nil
}

func (r *Repo) ListRules(ctx context.Context, orgID id.ID) ([]topup.Rule, error) {
	sql, args, err := r.builder.Select(ruleColumns...).
		From(rulesTable).
		Where(squirrel.Eq{"organization_id": orgID}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	out := make([]topup.Rule, 0)
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return out, nil
}

func (r *Repo) SetRuleActive(ctx context.Context, orgID, ruleID id.ID, active bool, updatedAt time.Time) error {
	sql, args, err := r.builder.Update(rulesTable).
		Set("is_active", active).
		Set("updated_at", updatedAt).
		Where(squirrel.Eq{"organization_id": orgID, "id": ruleID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("topup_rule", ruleID)
	}
	return nil
}

// buildClaimQuery selects due rules outside their failure backoff and locks
// them, skipping rows another worker already holds. Rules that failed before
// sort after healthy ones.
func (r *Repo) buildClaimQuery(asOf, now time.Time, limit int) squirrel.SelectBuilder {
	return r.builder.Select(ruleColumns...).
		From(rulesTable).
		Where(squirrel.Eq{"is_active": true}).
		Where(squirrel.LtOrEq{"next_run_at": asOf}).
		Where(squirrel.Or{
			squirrel.Eq{"retry_after": nil},
			squirrel.LtOrEq{"retry_after": now},
		}).
		OrderBy("failure_count > 0", "next_run_at", "id").
		Limit(uint64(limit)).
		Suffix("FOR UPDATE SKIP LOCKED")
}

func (r *Repo) ClaimDueRules(ctx context.Context, asOf, now time.Time, limit int) ([]topup.Rule, error) {
	if r.txm.GetTx(ctx) == nil {
		return nil, fmt.Errorf("claim due rules: row locks require a transaction")
	}

	sql, args, err := r.buildClaimQuery(asOf, now, limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	out := make([]topup.Rule, 0)
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("claim rules: %w", err)
	}
	return out, nil
}

func (r *Repo) AdvanceSchedule(ctx context.Context, ruleID id.ID, lastRunAt, nextRunAt time.Time) error {
	sql, args, err := r.builder.Update(rulesTable).
		Set("last_run_at", lastRunAt).
		Set("next_run_at", nextRunAt).
		Set("updated_at", lastRunAt).
		Set("failure_count", 0).
		Set("last_error", nil).
		Set("retry_after", nil).
		Where(squirrel.Eq{"id": ruleID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("advance schedule: %w", err)
	}
	return nil
}

func (r *Repo) RecordFailure(ctx context.Context, ruleID id.ID, message string, failedAt, retryAfter time.Time) error {
	sql, args, err := r.builder.Update(rulesTable).
		Set("failure_count", squirrel.Expr("failure_count + 1")).
		Set("last_error", message).
		Set("retry_after", retryAfter).
		Set("updated_at", failedAt).
		Where(squirrel.Eq{"id": ruleID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("record rule failure: %w", err)
	}
	return nil
}

func (r *Repo) InsertTransaction(ctx context.Context, t *topup.FuelCardTransaction) error {
	sql, args, err := r.builder.Insert(transactionsTable).SetMap(postgres.StructToMap(t)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(fmt.Errorf("insert fuel card transaction: %w", err), "fuel_card_transaction", "periodKey", t.PeriodKey)
	}
	return nil
}

func (r *Repo) LinkTransactionMovement(ctx context.Context, transactionID, movementID id.ID) error {
	sql, args, err := r.builder.Update(transactionsTable).
		Set("stock_movement_id", movementID).
		Where(squirrel.Eq{"id": transactionID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("link movement: %w", err)
	}
	return nil
}

func (r *Repo) ListTransactions(ctx context.Context, orgID, fuelCardID id.ID) ([]topup.FuelCardTransaction, error) {
	sql, args, err := r.builder.Select(transactionColumns...).
		From(transactionsTable).
		Where(squirrel.Eq{"organization_id": orgID, "fuel_card_id": fuelCardID}).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	out := make([]topup.FuelCardTransaction, 0)
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list fuel card transactions: %w", err)
	}
	return out, nil
}

var _ topup.Repository = (*Repo)(nil)
