// Package observability provides a metrics extension for Recur that records
// lifecycle event counts via a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/recur/event"
	"github.com/xraph/recur/plan"
	"github.com/xraph/recur/plugin"
	"github.com/xraph/recur/subscription"
	"github.com/xraph/recur/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnInit                 = (*MetricsExtension)(nil)
	_ plugin.OnPlanCreated          = (*MetricsExtension)(nil)
	_ plugin.OnPlanToggled          = (*MetricsExtension)(nil)
	_ plugin.OnSubscribed           = (*MetricsExtension)(nil)
	_ plugin.OnRenewed              = (*MetricsExtension)(nil)
	_ plugin.OnCanceled             = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawn            = (*MetricsExtension)(nil)
	_ plugin.OnOwnershipTransferred = (*MetricsExtension)(nil)
	_ plugin.OnEvent                = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Recur plugin to automatically track ledger metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Plan metrics
	PlanCreated     Counter
	PlanActivated   Counter
	PlanDeactivated Counter

	// Subscription metrics
	SubscriptionPurchased Counter
	SubscriptionRenewed   Counter
	SubscriptionCanceled  Counter
	RenewalCount          Histogram

	// Money metrics
	RevenueCollected Counter
	FundsWithdrawn   Counter
	WithdrawalAmount Histogram

	// Ownership metrics
	OwnershipTransferred Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Plan metrics
		PlanCreated:     factory.Counter("recur.plan.created"),
		PlanActivated:   factory.Counter("recur.plan.activated"),
		PlanDeactivated: factory.Counter("recur.plan.deactivated"),

		// Subscription metrics
		SubscriptionPurchased: factory.Counter("recur.subscription.purchased"),
		SubscriptionRenewed:   factory.Counter("recur.subscription.renewed"),
		SubscriptionCanceled:  factory.Counter("recur.subscription.canceled"),
		RenewalCount:          factory.Histogram("recur.subscription.renewal_count"),

		// Money metrics
		RevenueCollected: factory.Counter("recur.revenue.collected"),
		FundsWithdrawn:   factory.Counter("recur.funds.withdrawn"),
		WithdrawalAmount: factory.Histogram("recur.funds.withdrawal_amount"),

		// Ownership metrics
		OwnershipTransferred: factory.Counter("recur.ownership.transferred"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Plan lifecycle hooks
// ──────────────────────────────────────────────────

// OnPlanCreated implements plugin.OnPlanCreated.
func (m *MetricsExtension) OnPlanCreated(_ context.Context, _ *plan.Plan) error {
	m.PlanCreated.Inc()
	return nil
}

// OnPlanToggled implements plugin.OnPlanToggled.
func (m *MetricsExtension) OnPlanToggled(_ context.Context, p *plan.Plan) error {
	if p.Active {
		m.PlanActivated.Inc()
	} else {
		m.PlanDeactivated.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscribed implements plugin.OnSubscribed.
func (m *MetricsExtension) OnSubscribed(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionPurchased.Inc()
	return nil
}

// OnRenewed implements plugin.OnRenewed.
func (m *MetricsExtension) OnRenewed(_ context.Context, sub *subscription.Subscription) error {
	m.SubscriptionRenewed.Inc()
	m.RenewalCount.Observe(float64(sub.RenewalCount))
	return nil
}

// OnCanceled implements plugin.OnCanceled.
func (m *MetricsExtension) OnCanceled(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionCanceled.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Money movement hooks
// ──────────────────────────────────────────────────

// OnWithdrawn implements plugin.OnWithdrawn.
func (m *MetricsExtension) OnWithdrawn(_ context.Context, _ types.Address, amount types.Money) error {
	m.FundsWithdrawn.Inc()
	m.WithdrawalAmount.Observe(float64(amount.Amount))
	return nil
}

// ──────────────────────────────────────────────────
// Ownership hooks
// ──────────────────────────────────────────────────

// OnOwnershipTransferred implements plugin.OnOwnershipTransferred.
func (m *MetricsExtension) OnOwnershipTransferred(_ context.Context, _, _ types.Address) error {
	m.OwnershipTransferred.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Notification feed hooks
// ──────────────────────────────────────────────────

// OnEvent implements plugin.OnEvent. Paid events carry the amount, so
// revenue accrual is tracked here rather than in the typed hooks.
func (m *MetricsExtension) OnEvent(_ context.Context, evt *event.Event) error {
	switch evt.Kind {
	case event.KindSubscribed, event.KindRenewed:
		m.RevenueCollected.Add(float64(evt.Amount.Amount))
	}
	return nil
}
