package subscription

import (
	"context"

	"github.com/xraph/recur/types"
)

// Store is the subscription persistence interface. Records are keyed by
// account; Put overwrites unconditionally (the engine enforces the
// overwrite-only-when-lapsed rule before calling it).
type Store interface {
	Get(ctx context.Context, account types.Address) (*Subscription, error)
	Put(ctx context.Context, s *Subscription) error
	List(ctx context.Context, opts ListOpts) ([]*Subscription, error)
}

// ListOpts filters subscription enumeration.
type ListOpts struct {
	// PlanID restricts results to subscriptions referencing the plan.
	// Zero means no plan filter (plan IDs are 1-based).
	PlanID uint64
}
