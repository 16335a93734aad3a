// Package plan defines operator-created subscription offerings.
package plan

import (
	"time"

	"github.com/xraph/recur/types"
)

// Plan is an operator-defined subscription offering.
//
// Plan IDs are sequential 1-based integers assigned by the ledger and
// never reused. Once created, Price, Duration, Name and Description are
// immutable; only Active may change, and plans are deactivated rather
// than deleted so historical subscriptions keep a valid reference.
type Plan struct {
	types.Entity
	ID          uint64        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Price       types.Money   `json:"price"`
	Duration    time.Duration `json:"duration"`
	Active      bool          `json:"active"`
}

// AccessWindow returns the entitlement window granted by one payment
// starting at t.
func (p *Plan) AccessWindow(t time.Time) (start, end time.Time) {
	return t, t.Add(p.Duration)
}
