// Package plugin provides an extensible plugin system for Recur.
// Plugins can hook into ledger lifecycle events to extend functionality.
package plugin

import (
	"context"

	"github.com/xraph/recur/event"
	"github.com/xraph/recur/plan"
	"github.com/xraph/recur/subscription"
	"github.com/xraph/recur/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized. The engine is passed
// as interface{} to avoid an import cycle with the root package.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the engine is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Plan lifecycle hooks
// ──────────────────────────────────────────────────

// OnPlanCreated is called when the operator creates a plan.
type OnPlanCreated interface {
	Plugin
	OnPlanCreated(ctx context.Context, p *plan.Plan) error
}

// OnPlanToggled is called when the operator flips a plan's active flag.
// The plan carries the resulting state.
type OnPlanToggled interface {
	Plugin
	OnPlanToggled(ctx context.Context, p *plan.Plan) error
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscribed is called when an account purchases a subscription.
type OnSubscribed interface {
	Plugin
	OnSubscribed(ctx context.Context, sub *subscription.Subscription) error
}

// OnRenewed is called when an account renews, whether stacking onto a
// live window or restarting a lapsed one.
type OnRenewed interface {
	Plugin
	OnRenewed(ctx context.Context, sub *subscription.Subscription) error
}

// OnCanceled is called when an account cancels. Entitlement is revoked
// immediately even though the record's EndTime is untouched.
type OnCanceled interface {
	Plugin
	OnCanceled(ctx context.Context, sub *subscription.Subscription) error
}

// ──────────────────────────────────────────────────
// Fund custody hooks
// ──────────────────────────────────────────────────

// OnWithdrawn is called after the owner withdraws the held balance.
type OnWithdrawn interface {
	Plugin
	OnWithdrawn(ctx context.Context, to types.Address, amount types.Money) error
}

// OnOwnershipTransferred is called after the privileged identity changes.
type OnOwnershipTransferred interface {
	Plugin
	OnOwnershipTransferred(ctx context.Context, previous, next types.Address) error
}

// ──────────────────────────────────────────────────
// Notification feed hook
// ──────────────────────────────────────────────────

// OnEvent receives every structured notification the ledger emits, in
// emission order. Audit and analytics consumers implement this single
// hook instead of the per-operation ones.
type OnEvent interface {
	Plugin
	OnEvent(ctx context.Context, evt *event.Event) error
}
