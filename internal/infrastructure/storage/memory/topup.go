package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"fleetledger/internal/core/apperror"
	"fleetledger/internal/core/id"
	"fleetledger/internal/domain/topup"
)

type topupRepo struct{ s *Store }

// TopUps returns the store's rule and fuel card transaction repository.
func (s *Store) TopUps() topup.Repository { return topupRepo{s} }

func (r topupRepo) CreateRule(ctx context.Context, rule *topup.Rule) error {
	return r.s.with(ctx, func(st *state) error {
		if _, ok := st.rules[rule.ID]; ok {
			return apperror.NewDuplicate("topup_rule", "id", rule.ID.String())
		}
		st.rules[rule.ID] = *rule
		return nil
	})
}

func (r topupRepo) GetRule(ctx context.Context, orgID, ruleID id.ID) (*topup.Rule, error) {
	var out *topup.Rule
	err := r.s.with(ctx, func(st *state) error {
		rule, ok := st.rules[ruleID]
		if !ok || rule.OrganizationID != orgID {
			return apperror.NewNotFound("topup_rule", ruleID)
		}
		out = &rule
		return nil
	})
	return out, err
}

func (r topupRepo) ListRules(ctx context.Context, orgID id.ID) ([]topup.Rule, error) {
	out := make([]topup.Rule, 0)
	err := r.s.with(ctx, func(st *state) error {
		for _, rule := range st.rules {
			if rule.OrganizationID == orgID {
				out = append(out, rule)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out, err
}

func (r topupRepo) SetRuleActive(ctx context.Context, orgID, ruleID id.ID, active bool, updatedAt time.Time) error {
	return r.s.with(ctx, func(st *state) error {
		rule, ok := st.rules[ruleID]
		if !ok || rule.OrganizationID != orgID {
			return apperror.NewNotFound("topup_rule", ruleID)
		}
		rule.IsActive = active
		rule.UpdatedAt = updatedAt
		st.rules[ruleID] = rule
		return nil
	})
}

// ClaimDueRules needs no row locks here: the transaction already holds the
// store mutex.
func (r topupRepo) ClaimDueRules(ctx context.Context, asOf, now time.Time, limit int) ([]topup.Rule, error) {
	if !r.s.inTx(ctx) {
		return nil, fmt.Errorf("claim due rules: row locks require a transaction")
	}

	out := make([]topup.Rule, 0)
	for _, rule := range r.s.state.rules {
		if !rule.IsActive || rule.NextRunAt.After(asOf) {
			continue
		}
		if rule.RetryAfter != nil && rule.RetryAfter.After(now) {
			continue
		}
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool {
		if fi, fj := out[i].FailureCount > 0, out[j].FailureCount > 0; fi != fj {
			return fj
		}
		if !out[i].NextRunAt.Equal(out[j].NextRunAt) {
			return out[i].NextRunAt.Before(out[j].NextRunAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r topupRepo) AdvanceSchedule(ctx context.Context, ruleID id.ID, lastRunAt, nextRunAt time.Time) error {
	return r.s.with(ctx, func(st *state) error {
		rule, ok := st.rules[ruleID]
		if !ok {
			return nil
		}
		last := lastRunAt
		rule.LastRunAt = &last
		rule.NextRunAt = nextRunAt
		rule.UpdatedAt = lastRunAt
		rule.FailureCount = 0
		rule.LastError = nil
		rule.RetryAfter = nil
		st.rules[ruleID] = rule
		return nil
	})
}

func (r topupRepo) RecordFailure(ctx context.Context, ruleID id.ID, message string, failedAt, retryAfter time.Time) error {
	return r.s.with(ctx, func(st *state) error {
		rule, ok := st.rules[ruleID]
		if !ok {
			return nil
		}
		rule.FailureCount++
		rule.LastError = &message
		rule.RetryAfter = &retryAfter
		rule.UpdatedAt = failedAt
		st.rules[ruleID] = rule
		return nil
	})
}

func (r topupRepo) InsertTransaction(ctx context.Context, t *topup.FuelCardTransaction) error {
	return r.s.with(ctx, func(st *state) error {
		for _, e := range st.cardTxs {
			if e.OrganizationID == t.OrganizationID && e.FuelCardID == t.FuelCardID &&
				e.Type == t.Type && e.PeriodKey == t.PeriodKey {
				return apperror.NewDuplicate("fuel_card_transaction", "periodKey", t.PeriodKey)
			}
		}
		st.cardTxs = append(st.cardTxs, *t)
		return nil
	})
}

func (r topupRepo) LinkTransactionMovement(ctx context.Context, transactionID, movementID id.ID) error {
	return r.s.with(ctx, func(st *state) error {
		for i := range st.cardTxs {
			if st.cardTxs[i].ID == transactionID {
				st.cardTxs[i].StockMovementID = id.Ptr(movementID)
			}
		}
		return nil
	})
}

func (r topupRepo) ListTransactions(ctx context.Context, orgID, fuelCardID id.ID) ([]topup.FuelCardTransaction, error) {
	out := make([]topup.FuelCardTransaction, 0)
	err := r.s.with(ctx, func(st *state) error {
		for i := len(st.cardTxs) - 1; i >= 0; i-- {
			t := st.cardTxs[i]
			if t.OrganizationID == orgID && t.FuelCardID == fuelCardID {
				out = append(out, t)
			}
		}
		return nil
	})
	return out, err
}
