// Package memory provides an in-process store.Store for tests and
// single-process deployments.
package memory

import (
	"context"
	"sync"
	"time"

	recur "github.com/xraph/recur"
	"github.com/xraph/recur/event"
	"github.com/xraph/recur/plan"
	recurstore "github.com/xraph/recur/store"
	"github.com/xraph/recur/subscription"
	"github.com/xraph/recur/types"
)

// compile-time interface check
var _ recurstore.Store = (*Store)(nil)

// Store holds the entire ledger in memory. Records are copied on the
// way in and out so callers can never mutate stored state except
// through the store methods.
type Store struct {
	mu sync.RWMutex

	// Plan storage: index i holds plan ID i+1 (sequential, never reused)
	plans []*plan.Plan

	// Subscription storage, keyed by account
	subscriptions map[types.Address]*subscription.Subscription

	// Subscriber registry, append-only in insertion order
	registry []types.Address

	// Ledger globals
	owner        types.Address
	totalRevenue int64
	balance      int64

	// Notification feed
	events []*event.Event
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		subscriptions: make(map[types.Address]*subscription.Subscription),
	}
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(_ context.Context, p *plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = uint64(len(s.plans)) + 1
	cp := *p
	s.plans = append(s.plans, &cp)
	return nil
}

func (s *Store) GetPlan(_ context.Context, planID uint64) (*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if planID == 0 || planID > uint64(len(s.plans)) {
		return nil, recur.ErrPlanNotFound
	}
	cp := *s.plans[planID-1]
	return &cp, nil
}

func (s *Store) ListPlans(_ context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Slice order is ascending plan ID by construction.
	result := make([]*plan.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		if opts.ActiveOnly && !p.Active {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}

	// Apply limit/offset
	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

func (s *Store) SetPlanActive(_ context.Context, planID uint64, active bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if planID == 0 || planID > uint64(len(s.plans)) {
		return recur.ErrPlanNotFound
	}
	s.plans[planID-1].Active = active
	s.plans[planID-1].UpdatedAt = at
	return nil
}

// ==================== Subscription Store ====================

func (s *Store) GetSubscription(_ context.Context, account types.Address) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[account]
	if !ok {
		return nil, recur.ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (s *Store) PutSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sub
	s.subscriptions[sub.Account] = &cp
	return nil
}

func (s *Store) ListSubscriptions(_ context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Iterate the registry rather than the map so enumeration follows
	// insertion order.
	result := make([]*subscription.Subscription, 0)
	for _, account := range s.registry {
		sub, ok := s.subscriptions[account]
		if !ok {
			continue
		}
		if opts.PlanID != 0 && sub.PlanID != opts.PlanID {
			continue
		}
		cp := *sub
		result = append(result, &cp)
	}
	return result, nil
}

func (s *Store) CommitPurchase(_ context.Context, sub *subscription.Subscription, price int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sub
	s.subscriptions[sub.Account] = &cp
	s.totalRevenue += price
	s.balance += price

	// Linear membership scan keeps the registry append-only and
	// insertion-ordered.
	for _, existing := range s.registry {
		if existing == sub.Account {
			return nil
		}
	}
	s.registry = append(s.registry, sub.Account)
	return nil
}

// ==================== Subscriber Registry ====================

func (s *Store) ListSubscribers(_ context.Context) ([]types.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]types.Address, len(s.registry))
	copy(result, s.registry)
	return result, nil
}

// ==================== Ledger Globals ====================

func (s *Store) Owner(_ context.Context) (types.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner, nil
}

func (s *Store) SetOwner(_ context.Context, owner types.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner = owner
	return nil
}

func (s *Store) TotalRevenue(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalRevenue, nil
}

func (s *Store) Balance(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balance, nil
}

func (s *Store) SettleWithdrawal(_ context.Context, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount <= 0 || amount > s.balance {
		return recur.ErrNothingToWithdraw
	}
	s.balance -= amount
	return nil
}

// ==================== Notification Feed ====================

func (s *Store) AppendEvent(_ context.Context, evt *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *evt
	s.events = append(s.events, &cp)
	return nil
}

func (s *Store) ListEvents(_ context.Context, opts event.ListOpts) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*event.Event, 0, len(s.events))
	for _, evt := range s.events {
		if opts.Kind != "" && evt.Kind != opts.Kind {
			continue
		}
		if opts.Account != types.ZeroAddress && evt.Account != opts.Account {
			continue
		}
		cp := *evt
		result = append(result, &cp)
	}

	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

// ==================== Core ====================

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the in-memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close discards all state.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.plans = nil
	s.subscriptions = make(map[types.Address]*subscription.Subscription)
	s.registry = nil
	s.events = nil
	return nil
}
