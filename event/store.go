package event

import (
	"context"

	"github.com/xraph/recur/types"
)

// Store is the append-only notification feed persistence interface.
type Store interface {
	Append(ctx context.Context, evt *Event) error
	List(ctx context.Context, opts ListOpts) ([]*Event, error)
}

// ListOpts filters feed enumeration. Results are ordered by emission
// (event ID) order.
type ListOpts struct {
	Kind    Kind
	Account types.Address
	Limit   int
	Offset  int
}
