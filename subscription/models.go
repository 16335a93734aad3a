// Package subscription defines per-account subscription state and the
// entitlement derivation over it.
package subscription

import (
	"time"

	"github.com/xraph/recur/id"
	"github.com/xraph/recur/types"
)

// Subscription is the per-account payment-gated access window. Each
// account holds at most one record; a new subscribe overwrites the
// prior record only once it is inactive or expired.
//
// Active is an explicit flag independent of time-based expiry: a record
// can be Active with EndTime in the past (lazy expiry: nothing sweeps
// state at the expiry instant). Entitlement is always the conjunction
// Active && now < EndTime.
type Subscription struct {
	types.Entity
	ID           id.SubscriptionID `json:"id"`
	Account      types.Address     `json:"account"`
	PlanID       uint64            `json:"plan_id"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      time.Time         `json:"end_time"`
	Active       bool              `json:"active"`
	RenewalCount uint64            `json:"renewal_count"`
}

// EntitledAt reports whether the subscription grants access at the
// given instant: Active and not yet past EndTime.
func (s *Subscription) EntitledAt(now time.Time) bool {
	return s != nil && s.Active && now.Before(s.EndTime)
}

// RemainingAt returns the entitlement time left at the given instant,
// clamped to zero when the subscription is lapsed, canceled or absent.
func (s *Subscription) RemainingAt(now time.Time) time.Duration {
	if !s.EntitledAt(now) {
		return 0
	}
	return s.EndTime.Sub(now)
}

// Lapsed reports whether the record no longer blocks a fresh subscribe:
// either canceled (Active false) or past its EndTime.
func (s *Subscription) Lapsed(now time.Time) bool {
	return !s.EntitledAt(now)
}

// NoActivePlan is the sentinel plan name reported by composite views
// when the account holds no current entitlement.
const NoActivePlan = "no active plan"

// StatusView is the composite per-account view assembled by the engine
// from the stored record, the referenced plan and the caller clock.
type StatusView struct {
	Entitled     bool          `json:"entitled"`
	PlanID       uint64        `json:"plan_id"`
	PlanName     string        `json:"plan_name"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	Remaining    time.Duration `json:"remaining"`
	RenewalCount uint64        `json:"renewal_count"`
}

// Snapshot is the full reporting view of an account: the raw stored
// record plus the derived status.
type Snapshot struct {
	Account      types.Address `json:"account"`
	Subscription *Subscription `json:"subscription,omitempty"`
	Status       StatusView    `json:"status"`
}
