package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"fleetledger/internal/core/apperror"
	"fleetledger/internal/core/id"
	"fleetledger/internal/domain/locations"
	"fleetledger/internal/infrastructure/storage/postgres"
)

const locationsTable = "stock_locations"

var locationColumns = postgres.ExtractDBColumns[locations.StockLocation]()

var ownerColumns = map[locations.LocationType]string{
	locations.TypeWarehouse:   "warehouse_id",
	locations.TypeVehicleTank: "vehicle_id",
	locations.TypeFuelCard:    "fuel_card_id",
}

// LocationRepo implements locations.Repository.
type LocationRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

func NewLocationRepo(txm *postgres.TxManager) *LocationRepo {
	return &LocationRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *LocationRepo) GetByID(ctx context.Context, locationID id.ID) (*locations.StockLocation, error) {
	return r.getOne(ctx, squirrel.Eq{"id": locationID}, locationID)
}

func (r *LocationRepo) FindByOwner(ctx context.Context, t locations.LocationType, ownerID id.ID) (*locations.StockLocation, error) {
	col, ok := ownerColumns[t]
	if !ok {
		return nil, apperror.NewValidation(fmt.Sprintf("unknown location type %q", t))
	}
	return r.getOne(ctx, squirrel.Eq{"location_type": t, col: ownerID}, ownerID)
}

func (r *LocationRepo) getOne(ctx context.Context, where squirrel.Eq, key any) (*locations.StockLocation, error) {
	sql, args, err := r.builder.Select(locationColumns...).From(locationsTable).Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var loc locations.StockLocation
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &loc, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("stock_location", key)
		}
		return nil, fmt.Errorf("get location: %w", err)
	}
	return &loc, nil
}

func (r *LocationRepo) Create(ctx context.Context, loc *locations.StockLocation) error {
	sql, args, err := r.builder.Insert(locationsTable).SetMap(postgres.StructToMap(loc)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(fmt.Errorf("insert location: %w", err), "stock_location", "owner", loc.OwnerID().String())
	}
	return nil
}

func (r *LocationRepo) ListByOrganization(ctx context.Context, orgID id.ID) ([]locations.StockLocation, error) {
	sql, args, err := r.builder.Select(locationColumns...).
		From(locationsTable).
		Where(squirrel.Eq{"organization_id": orgID}).
		OrderBy("location_type", "created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	out := make([]locations.StockLocation, 0)
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return out, nil
}

var _ locations.Repository = (*LocationRepo)(nil)
