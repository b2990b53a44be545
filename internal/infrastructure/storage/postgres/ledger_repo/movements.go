// Package ledger_repo provides the PostgreSQL ledger store, location
// repository and the read-only directory lookups.
package ledger_repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"fleetledger/internal/core/apperror"
	"fleetledger/internal/core/id"
	"fleetledger/internal/domain/stock"
	"fleetledger/internal/infrastructure/storage/postgres"
)

const movementsTable = "stock_movements"

// contributingPredicate selects rows that count towards balances.
const contributingPredicate = "is_void = false AND storno_of_movement_id IS NULL"

var movementColumns = postgres.ExtractDBColumns[stock.Movement]()

var roleColumns = map[stock.LocationRole]string{
	stock.RoleLocation: "stock_location_id",
	stock.RoleFrom:     "from_stock_location_id",
	stock.RoleTo:       "to_stock_location_id",
}

// roleOrder fixes the UNION ALL branch order of the grouped balance query.
var roleOrder = []stock.LocationRole{stock.RoleLocation, stock.RoleFrom, stock.RoleTo}

// MovementRepo implements stock.Repository.
type MovementRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType

	balanceAtSQL  string
	balancesAtSQL string
}

func NewMovementRepo(txm *postgres.TxManager) *MovementRepo {
	return &MovementRepo{
		txm:           txm,
		builder:       squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		balanceAtSQL:  buildBalanceAtSQL(),
		balancesAtSQL: buildBalancesAtSQL(),
	}
}

// signedQuantityExpr turns the movement kind table into a CASE expression
// yielding the signed contribution of a row to the location in locationArg.
func signedQuantityExpr(locationArg string) string {
	var b strings.Builder
	b.WriteString("CASE")
	for _, e := range stock.Effects() {
		fmt.Fprintf(&b, " WHEN movement_type = '%s' AND %s = %s THEN %s",
			e.Type, roleColumns[e.Role], locationArg, signedQuantity(e.Sign))
	}
	b.WriteString(" ELSE 0 END")
	return b.String()
}

func signedQuantity(sign int) string {
	if sign < 0 {
		return "-quantity"
	}
	return "quantity"
}

func buildBalanceAtSQL() string {
	return fmt.Sprintf(`
		SELECT COALESCE(SUM(%s), 0)
		FROM %s
		WHERE stock_item_id = $2
		  AND occurred_at <= $3
		  AND %s
		  AND (stock_location_id = $1 OR from_stock_location_id = $1 OR to_stock_location_id = $1)`,
		signedQuantityExpr("$1"), movementsTable, contributingPredicate)
}

// buildBalancesAtSQL computes every location balance of an organization in a
// single statement: one UNION ALL branch per location column, grouped by location.
func buildBalancesAtSQL() string {
	byRole := stock.EffectsByRole()

	var branches []string
	for _, role := range roleOrder {
		effects := byRole[role]
		if len(effects) == 0 {
			continue
		}
		col := roleColumns[role]

		var c strings.Builder
		c.WriteString("CASE movement_type")
		for _, e := range effects {
			fmt.Fprintf(&c, " WHEN '%s' THEN %s", e.Type, signedQuantity(e.Sign))
		}
		c.WriteString(" ELSE 0 END")

		branches = append(branches, fmt.Sprintf(`
			SELECT %s AS loc_id, %s AS delta
			FROM %s
			WHERE organization_id = $1 AND stock_item_id = $2 AND occurred_at <= $3
			  AND %s AND %s IS NOT NULL`,
			col, c.String(), movementsTable, contributingPredicate, col))
	}

	return fmt.Sprintf(`
		SELECT l.id AS stock_location_id, COALESCE(b.balance, 0) AS balance
		FROM stock_locations l
		LEFT JOIN (
			SELECT loc_id, SUM(delta) AS balance
			FROM (%s
			) d
			GROUP BY loc_id
		) b ON b.loc_id = l.id
		WHERE l.organization_id = $1
		ORDER BY l.location_type, l.created_at, l.id`,
		strings.Join(branches, "\n\t\t\tUNION ALL"))
}

// Insert appends a movement.
func (r *MovementRepo) Insert(ctx context.Context, m *stock.Movement) error {
	sql, args, err := r.builder.Insert(movementsTable).SetMap(postgres.StructToMap(m)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		ref := ""
		if m.ExternalRef != nil {
			ref = *m.ExternalRef
		}
		return postgres.MapError(fmt.Errorf("insert movement: %w", err), "stock_movement", "externalRef", ref)
	}
	return nil
}

func (r *MovementRepo) GetByID(ctx context.Context, orgID, movementID id.ID) (*stock.Movement, error) {
	return r.getOne(ctx, squirrel.Eq{"organization_id": orgID, "id": movementID}, movementID)
}

func (r *MovementRepo) GetByExternalRef(ctx context.Context, orgID id.ID, ref string) (*stock.Movement, error) {
	return r.getOne(ctx, squirrel.Eq{"organization_id": orgID, "external_ref": ref}, ref)
}

func (r *MovementRepo) getOne(ctx context.Context, where squirrel.Eq, key any) (*stock.Movement, error) {
	sql, args, err := r.builder.Select(movementColumns...).From(movementsTable).Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var m stock.Movement
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &m, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("stock_movement", key)
		}
		return nil, fmt.Errorf("get movement: %w", err)
	}
	return &m, nil
}

// buildListQuery renders a MovementFilter, newest movements first.
func (r *MovementRepo) buildListQuery(f stock.MovementFilter) squirrel.SelectBuilder {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"organization_id": f.OrganizationID})

	if f.StockLocationID != nil {
		q = q.Where(squirrel.Or{
			squirrel.Eq{"stock_location_id": *f.StockLocationID},
			squirrel.Eq{"from_stock_location_id": *f.StockLocationID},
			squirrel.Eq{"to_stock_location_id": *f.StockLocationID},
		})
	}
	if f.StockItemID != nil {
		q = q.Where(squirrel.Eq{"stock_item_id": *f.StockItemID})
	}
	if f.DocumentType != nil {
		q = q.Where(squirrel.Eq{"document_type": *f.DocumentType})
	}
	if f.DocumentID != nil {
		q = q.Where(squirrel.Eq{"document_id": *f.DocumentID})
	}
	if f.From != nil {
		q = q.Where(squirrel.GtOrEq{"occurred_at": *f.From})
	}
	if f.To != nil {
		q = q.Where(squirrel.LtOrEq{"occurred_at": *f.To})
	}
	if !f.IncludeVoid {
		q = q.Where(squirrel.Eq{"is_void": false})
	}

	q = q.OrderBy("occurred_at DESC", "occurred_seq DESC", "created_at DESC", "id DESC")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q
}

func (r *MovementRepo) List(ctx context.Context, f stock.MovementFilter) ([]stock.Movement, error) {
	return r.selectMovements(ctx, r.buildListQuery(f))
}

func (r *MovementRepo) ListByDocument(ctx context.Context, orgID id.ID, documentType, documentID string) ([]stock.Movement, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{
			"organization_id": orgID,
			"document_type":   documentType,
			"document_id":     documentID,
		}).
		OrderBy("occurred_at", "occurred_seq", "created_at", "id").
		Suffix("FOR UPDATE")
	return r.selectMovements(ctx, q)
}

func (r *MovementRepo) ListForLocation(ctx context.Context, locationID, stockItemID id.ID, from, to time.Time) ([]stock.Movement, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"stock_item_id": stockItemID}).
		Where(squirrel.Or{
			squirrel.Eq{"stock_location_id": locationID},
			squirrel.Eq{"from_stock_location_id": locationID},
			squirrel.Eq{"to_stock_location_id": locationID},
		}).
		Where(squirrel.GtOrEq{"occurred_at": from}).
		Where(squirrel.LtOrEq{"occurred_at": to}).
		OrderBy("occurred_at", "occurred_seq", "created_at", "id")
	return r.selectMovements(ctx, q)
}

func (r *MovementRepo) selectMovements(ctx context.Context, q squirrel.SelectBuilder) ([]stock.Movement, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	movements := make([]stock.Movement, 0)
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	return movements, nil
}

func (r *MovementRepo) Void(ctx context.Context, orgID id.ID, movementIDs []id.ID, voidedAt time.Time, userID *string, reason string) (int64, error) {
	if len(movementIDs) == 0 {
		return 0, nil
	}

	sql, args, err := r.builder.Update(movementsTable).
		Set("is_void", true).
		Set("voided_at", voidedAt).
		Set("voided_by_user_id", userID).
		Set("void_reason", reason).
		Where(squirrel.Eq{"organization_id": orgID, "id": movementIDs, "is_void": false}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("void movements: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *MovementRepo) BalanceAt(ctx context.Context, locationID, stockItemID id.ID, asOf time.Time) (decimal.Decimal, error) {
	var bal decimal.Decimal
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, r.balanceAtSQL, locationID, stockItemID, asOf).Scan(&bal); err != nil {
		return decimal.Zero, fmt.Errorf("query balance: %w", err)
	}
	return bal, nil
}

func (r *MovementRepo) BalancesAt(ctx context.Context, orgID, stockItemID id.ID, asOf time.Time) ([]stock.LocationBalance, error) {
	out := make([]stock.LocationBalance, 0)
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, r.balancesAtSQL, orgID, stockItemID, asOf); err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	return out, nil
}

var _ stock.Repository = (*MovementRepo)(nil)
