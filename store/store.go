// Package store defines the unified storage interface for the ledger.
package store

import (
	"context"
	"time"

	"github.com/xraph/recur/event"
	"github.com/xraph/recur/plan"
	"github.com/xraph/recur/subscription"
	"github.com/xraph/recur/types"
)

// Store is the unified storage interface for all ledger state: plans,
// per-account subscriptions, the subscriber registry, the monetary
// globals (total revenue and held balance, in minimum payment units)
// and the notification feed.
//
// The engine serializes mutating calls, so implementations never see
// concurrent mutations for the same engine instance. CommitPurchase
// applies the subscription upsert, the revenue accrual, the balance
// credit and the registry append together; backends make the group
// atomic to the extent the storage engine allows.
type Store interface {
	// Plan methods. CreatePlan assigns the next sequential plan ID
	// (1-based, monotonic, never reused).
	CreatePlan(ctx context.Context, p *plan.Plan) error
	GetPlan(ctx context.Context, planID uint64) (*plan.Plan, error)
	ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error)
	SetPlanActive(ctx context.Context, planID uint64, active bool, at time.Time) error

	// Subscription methods. PutSubscription overwrites the account's
	// record without touching the monetary globals (cancel path);
	// CommitPurchase is the paid path.
	GetSubscription(ctx context.Context, account types.Address) (*subscription.Subscription, error)
	PutSubscription(ctx context.Context, sub *subscription.Subscription) error
	ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error)
	CommitPurchase(ctx context.Context, sub *subscription.Subscription, price int64) error

	// Subscriber registry: append-only, insertion-ordered enumeration
	// of every distinct account that ever subscribed.
	ListSubscribers(ctx context.Context) ([]types.Address, error)

	// Ledger globals. Owner returns the zero address when unset.
	Owner(ctx context.Context) (types.Address, error)
	SetOwner(ctx context.Context, owner types.Address) error
	TotalRevenue(ctx context.Context) (int64, error)
	Balance(ctx context.Context) (int64, error)
	SettleWithdrawal(ctx context.Context, amount int64) error

	// Notification feed.
	AppendEvent(ctx context.Context, evt *event.Event) error
	ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
