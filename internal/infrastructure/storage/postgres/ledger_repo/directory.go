package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"fleetledger/internal/core/apperror"
	"fleetledger/internal/core/id"
	"fleetledger/internal/domain/fuelcards"
	"fleetledger/internal/domain/locations"
	"fleetledger/internal/infrastructure/storage/postgres"
)

var ownerTables = map[locations.OwnerKind]string{
	locations.OwnerWarehouse: "warehouses",
	locations.OwnerVehicle:   "vehicles",
	locations.OwnerFuelCard:  "fuel_cards",
	locations.OwnerStockItem: "stock_items",
}

// Directory reads the tables owned by the catalog subsystems.
// It implements locations.Directory and fuelcards.CardStore.
type Directory struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

func NewDirectory(txm *postgres.TxManager) *Directory {
	return &Directory{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (d *Directory) OwnerOrganization(ctx context.Context, kind locations.OwnerKind, ownerID id.ID) (id.ID, error) {
	table, ok := ownerTables[kind]
	if !ok {
		return id.ID{}, fmt.Errorf("unknown owner kind %q", kind)
	}

	sql, args, err := d.builder.Select("organization_id").From(table).Where(squirrel.Eq{"id": ownerID}).ToSql()
	if err != nil {
		return id.ID{}, fmt.Errorf("build query: %w", err)
	}

	var orgID id.ID
	if err := pgxscan.Get(ctx, d.txm.GetQuerier(ctx), &orgID, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return id.ID{}, apperror.NewNotFound(string(kind), ownerID)
		}
		return id.ID{}, fmt.Errorf("owner organization: %w", err)
	}
	return orgID, nil
}

func (d *Directory) DefaultWarehouseID(ctx context.Context, orgID id.ID) (*id.ID, error) {
	sql, args, err := d.builder.Select("default_warehouse_id").From("organizations").Where(squirrel.Eq{"id": orgID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var whID *id.ID
	if err := pgxscan.Get(ctx, d.txm.GetQuerier(ctx), &whID, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("organization", orgID)
		}
		return nil, fmt.Errorf("default warehouse: %w", err)
	}
	return whID, nil
}

func (d *Directory) ListCards(ctx context.Context, orgID *id.ID) ([]fuelcards.Card, error) {
	q := d.builder.Select("id", "organization_id", "fuel_stock_item_id", "balance_liters").
		From("fuel_cards").
		OrderBy("organization_id", "id")
	if orgID != nil {
		q = q.Where(squirrel.Eq{"organization_id": *orgID})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	out := make([]fuelcards.Card, 0)
	if err := pgxscan.Select(ctx, d.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list fuel cards: %w", err)
	}
	return out, nil
}

func (d *Directory) SetCachedBalance(ctx context.Context, cardID id.ID, liters decimal.Decimal, computedAt time.Time) error {
	sql, args, err := d.builder.Update("fuel_cards").
		Set("balance_liters", liters).
		Set("balance_calculated_at", computedAt).
		Where(squirrel.Eq{"id": cardID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := d.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update fuel card balance: %w", err)
	}
	return nil
}

var (
	_ locations.Directory = (*Directory)(nil)
	_ fuelcards.CardStore = (*Directory)(nil)
)
