// Package ledgertest wires the ledger services over the in-memory store for tests.
package ledgertest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"fleetledger/internal/core/id"
	"fleetledger/internal/core/types"
	"fleetledger/internal/domain/locations"
	"fleetledger/internal/domain/stock"
	"fleetledger/internal/domain/topup"
	"fleetledger/internal/infrastructure/storage/memory"
)

// Org is a seeded organization with one of each directory entity.
type Org struct {
	ID        id.ID
	Item      id.ID // fuel stock item
	Warehouse id.ID // default warehouse
	Vehicle   id.ID
	Card      id.ID
}

// Env is a fully wired ledger.
type Env struct {
	Store     *memory.Store
	Registry  *locations.Registry
	Balances  *stock.BalanceEngine
	Movements *stock.MovementService
	Storno    *stock.StornoService
	Rules     *topup.RuleService
	Engine    *topup.Engine
	Audit     *AuditLog
}

func New() *Env {
	s := memory.New()
	txm := s.TxManager()

	reg := locations.NewRegistry(s.Locations(), s.Directory(), txm)
	balances := stock.NewBalanceEngine(s.Movements())
	movements := stock.NewMovementService(s.Movements(), reg, txm)
	audit := &AuditLog{}

	return &Env{
		Store:     s,
		Registry:  reg,
		Balances:  balances,
		Movements: movements,
		Storno:    stock.NewStornoService(s.Movements(), movements, txm, audit),
		Rules:     topup.NewRuleService(s.TopUps(), reg),
		Engine:    topup.NewEngine(s.TopUps(), reg, balances, movements, txm, s.Locker()),
		Audit:     audit,
	}
}

// NewOrg seeds an organization with a default warehouse, a vehicle, a fuel
// card and a fuel stock item.
func (e *Env) NewOrg() Org {
	o := Org{
		ID:        id.New(),
		Item:      id.New(),
		Warehouse: id.New(),
		Vehicle:   id.New(),
		Card:      id.New(),
	}
	e.Store.AddOrganization(o.ID, id.Ptr(o.Warehouse))
	e.Store.AddOwner(locations.OwnerStockItem, o.Item, o.ID)
	e.Store.AddOwner(locations.OwnerVehicle, o.Vehicle, o.ID)
	e.Store.AddOwner(locations.OwnerFuelCard, o.Card, o.ID)
	e.Store.SetCardFuel(o.Card, o.Item)
	return o
}

func (e *Env) WarehouseLoc(t testing.TB, o Org) *locations.StockLocation {
	t.Helper()
	loc, err := e.Registry.GetOrCreateWarehouseLocation(context.Background(), o.ID, o.Warehouse)
	require.NoError(t, err)
	return loc
}

func (e *Env) TankLoc(t testing.TB, o Org) *locations.StockLocation {
	t.Helper()
	loc, err := e.Registry.GetOrCreateVehicleTankLocation(context.Background(), o.ID, o.Vehicle)
	require.NoError(t, err)
	return loc
}

func (e *Env) CardLoc(t testing.TB, o Org) *locations.StockLocation {
	t.Helper()
	loc, err := e.Registry.GetOrCreateFuelCardLocation(context.Background(), o.ID, o.Card)
	require.NoError(t, err)
	return loc
}

// Income posts an INCOME of qty liters into loc at the given time.
func (e *Env) Income(t testing.TB, o Org, loc id.ID, qty string, at time.Time) *stock.Movement {
	t.Helper()
	m, err := e.Movements.CreateIncome(context.Background(), stock.SingleLocationInput{
		MovementInput: stock.MovementInput{
			OrganizationID: o.ID,
			StockItemID:    o.Item,
			Quantity:       Qty(qty),
			OccurredAt:     at,
		},
		StockLocationID: loc,
	})
	require.NoError(t, err)
	return m
}

// Balance returns the balance of loc as of asOf.
func (e *Env) Balance(t testing.TB, o Org, loc id.ID, asOf time.Time) decimal.Decimal {
	t.Helper()
	bal, err := e.Balances.BalanceAt(context.Background(), loc, o.Item, asOf)
	require.NoError(t, err)
	return bal
}

// Qty parses a decimal literal.
func Qty(s string) decimal.Decimal {
	return types.MustQuantity(s)
}

// AuditLog collects audit entries in memory.
type AuditLog struct {
	mu      sync.Mutex
	entries []stock.AuditEntry
}

func (a *AuditLog) Record(_ context.Context, entry stock.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *AuditLog) Entries() []stock.AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]stock.AuditEntry(nil), a.entries...)
}
