// Package event defines the structured notifications emitted by every
// mutating ledger operation. External observers (audit, analytics)
// reconstruct billing history from this feed without re-deriving it
// from state.
package event

import (
	"time"

	"github.com/xraph/recur/id"
	"github.com/xraph/recur/types"
)

// Kind names a mutating ledger operation.
type Kind string

const (
	KindPlanCreated          Kind = "plan.created"
	KindPlanToggled          Kind = "plan.toggled"
	KindSubscribed           Kind = "subscription.purchased"
	KindRenewed              Kind = "subscription.renewed"
	KindCanceled             Kind = "subscription.canceled"
	KindWithdrawn            Kind = "funds.withdrawn"
	KindOwnershipTransferred Kind = "ownership.transferred"
)

// Event is one entry in the append-only notification feed. Event IDs
// are K-sortable TypeIDs, so the feed's natural ID order is also its
// emission order.
type Event struct {
	ID        id.EventID    `json:"id"`
	Kind      Kind          `json:"kind"`
	Account   types.Address `json:"account,omitempty"`
	PlanID    uint64        `json:"plan_id,omitempty"`
	Amount    types.Money   `json:"amount,omitempty"`
	EndTime   time.Time     `json:"end_time,omitzero"`
	Timestamp time.Time     `json:"timestamp"`
}

// New stamps a fresh event of the given kind at t.
func New(kind Kind, t time.Time) *Event {
	return &Event{
		ID:        id.NewEventID(),
		Kind:      kind,
		Timestamp: t,
	}
}
