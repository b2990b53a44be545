// Package memory is an in-process implementation of the ledger stores and
// transaction manager, used by tests and local experiments.
//
// Transactions are serialized: the outermost RunInTransaction holds a store
// mutex for its whole duration and restores a snapshot when it fails.
// Savepoints snapshot and restore the same way.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"fleetledger/internal/core/id"
	"fleetledger/internal/core/tx"
	"fleetledger/internal/domain/fuelcards"
	"fleetledger/internal/domain/locations"
	"fleetledger/internal/domain/stock"
	"fleetledger/internal/domain/topup"
)

type ownerKey struct {
	kind locations.OwnerKind
	id   id.ID
}

type state struct {
	movements        []stock.Movement
	locations        map[id.ID]locations.StockLocation
	rules            map[id.ID]topup.Rule
	cardTxs          []topup.FuelCardTransaction
	owners           map[ownerKey]id.ID
	defaultWarehouse map[id.ID]id.ID
	cards            map[id.ID]fuelcards.Card
}

func newState() *state {
	return &state{
		locations:        make(map[id.ID]locations.StockLocation),
		rules:            make(map[id.ID]topup.Rule),
		owners:           make(map[ownerKey]id.ID),
		defaultWarehouse: make(map[id.ID]id.ID),
		cards:            make(map[id.ID]fuelcards.Card),
	}
}

func (s *state) clone() *state {
	c := &state{
		movements:        append([]stock.Movement(nil), s.movements...),
		cardTxs:          append([]topup.FuelCardTransaction(nil), s.cardTxs...),
		locations:        make(map[id.ID]locations.StockLocation, len(s.locations)),
		rules:            make(map[id.ID]topup.Rule, len(s.rules)),
		owners:           make(map[ownerKey]id.ID, len(s.owners)),
		defaultWarehouse: make(map[id.ID]id.ID, len(s.defaultWarehouse)),
		cards:            make(map[id.ID]fuelcards.Card, len(s.cards)),
	}
	for k, v := range s.locations {
		c.locations[k] = v
	}
	for k, v := range s.rules {
		c.rules[k] = v
	}
	for k, v := range s.owners {
		c.owners[k] = v
	}
	for k, v := range s.defaultWarehouse {
		c.defaultWarehouse[k] = v
	}
	for k, v := range s.cards {
		c.cards[k] = v
	}
	return c
}

// Store holds all ledger state in memory.
type Store struct {
	mu    sync.Mutex
	state *state

	faultMu       sync.Mutex
	movementFault func(m *stock.Movement) error
	lockMu        sync.Mutex
	advisoryLocks map[string]bool
}

func New() *Store {
	return &Store{
		state:         newState(),
		advisoryLocks: make(map[string]bool),
	}
}

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// with runs fn against the state, taking the store mutex unless ctx already
// carries a transaction of this store.
func (s *Store) with(ctx context.Context, fn func(st *state) error) error {
	if s.inTx(ctx) {
		return fn(s.state)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

// InjectMovementFault makes every movement insert call fn first; a non-nil
// result fails the insert. Pass nil to clear.
func (s *Store) InjectMovementFault(fn func(m *stock.Movement) error) {
	s.faultMu.Lock()
	s.movementFault = fn
	s.faultMu.Unlock()
}

func (s *Store) fault(m *stock.Movement) error {
	s.faultMu.Lock()
	fn := s.movementFault
	s.faultMu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(m)
}

// --- tx.Manager ---

type txManager struct{ s *Store }

// TxManager returns the store's transaction manager.
func (s *Store) TxManager() tx.Manager { return txManager{s} }

func (m txManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.s.inTx(ctx) {
		return fn(ctx)
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	snapshot := m.s.state.clone()
	if err := fn(context.WithValue(ctx, txKey{}, m.s)); err != nil {
		m.s.state = snapshot
		return err
	}
	return nil
}

func (m txManager) RunInSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	if !m.s.inTx(ctx) {
		return m.RunInTransaction(ctx, fn)
	}
	snapshot := m.s.state.clone()
	if err := fn(ctx); err != nil {
		m.s.state = snapshot
		return err
	}
	return nil
}

// --- topup.Locker ---

type locker struct{ s *Store }

// Locker returns a process-local try-lock keyed by name.
func (s *Store) Locker() topup.Locker { return locker{s} }

func (l locker) TryWithLock(ctx context.Context, name string, fn func(ctx context.Context) error) (bool, error) {
	l.s.lockMu.Lock()
	if l.s.advisoryLocks[name] {
		l.s.lockMu.Unlock()
		return false, nil
	}
	l.s.advisoryLocks[name] = true
	l.s.lockMu.Unlock()

	defer func() {
		l.s.lockMu.Lock()
		delete(l.s.advisoryLocks, name)
		l.s.lockMu.Unlock()
	}()
	return true, fn(ctx)
}

// --- seeding helpers for directory data ---

// AddOrganization registers an organization and its default warehouse (may be nil).
func (s *Store) AddOrganization(orgID id.ID, defaultWarehouseID *id.ID) {
	_ = s.with(context.Background(), func(st *state) error {
		if defaultWarehouseID != nil {
			st.defaultWarehouse[orgID] = *defaultWarehouseID
			st.owners[ownerKey{locations.OwnerWarehouse, *defaultWarehouseID}] = orgID
		}
		return nil
	})
}

// AddOwner registers a warehouse, vehicle, fuel card or stock item of orgID.
func (s *Store) AddOwner(kind locations.OwnerKind, ownerID, orgID id.ID) {
	_ = s.with(context.Background(), func(st *state) error {
		st.owners[ownerKey{kind, ownerID}] = orgID
		if kind == locations.OwnerFuelCard {
			if _, ok := st.cards[ownerID]; !ok {
				st.cards[ownerID] = fuelcards.Card{ID: ownerID, OrganizationID: orgID}
			}
		}
		return nil
	})
}

// SetCardFuel sets the fuel stock item of a registered fuel card.
func (s *Store) SetCardFuel(cardID, stockItemID id.ID) {
	_ = s.with(context.Background(), func(st *state) error {
		c := st.cards[cardID]
		c.StockItemID = id.Ptr(stockItemID)
		st.cards[cardID] = c
		return nil
	})
}

// Card returns the stored fuel card row.
func (s *Store) Card(cardID id.ID) (fuelcards.Card, bool) {
	var (
		c  fuelcards.Card
		ok bool
	)
	_ = s.with(context.Background(), func(st *state) error {
		c, ok = st.cards[cardID]
		return nil
	})
	return c, ok
}

// AllMovements returns a copy of every stored movement in insertion order.
func (s *Store) AllMovements() []stock.Movement {
	var out []stock.Movement
	_ = s.with(context.Background(), func(st *state) error {
		out = append(out, st.movements...)
		return nil
	})
	return out
}

// AllTransactions returns a copy of every fuel card transaction.
func (s *Store) AllTransactions() []topup.FuelCardTransaction {
	var out []topup.FuelCardTransaction
	_ = s.with(context.Background(), func(st *state) error {
		out = append(out, st.cardTxs...)
		return nil
	})
	return out
}

func ledgerLess(a, b *stock.Movement) bool {
	if !a.OccurredAt.Equal(b.OccurredAt) {
		return a.OccurredAt.Before(b.OccurredAt)
	}
	if a.OccurredSeq != b.OccurredSeq {
		return a.OccurredSeq < b.OccurredSeq
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

func sortLedger(ms []stock.Movement) {
	sort.SliceStable(ms, func(i, j int) bool { return ledgerLess(&ms[i], &ms[j]) })
}
