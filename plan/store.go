package plan

import "context"

// Store is the plan persistence interface.
//
// Create assigns the next sequential ID (1-based, monotonic, never
// reused) as part of the insert. There is no Update or Delete: plan
// attributes are immutable after creation and plans are only ever
// deactivated via SetActive.
type Store interface {
	Create(ctx context.Context, p *Plan) error
	Get(ctx context.Context, planID uint64) (*Plan, error)
	List(ctx context.Context, opts ListOpts) ([]*Plan, error)
	SetActive(ctx context.Context, planID uint64, active bool) error
}

// ListOpts filters plan enumeration. Results are always ordered by
// ascending plan ID.
type ListOpts struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}
