package recur

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/recur/event"
	"github.com/xraph/recur/id"
	"github.com/xraph/recur/plan"
	"github.com/xraph/recur/plugin"
	"github.com/xraph/recur/store"
	"github.com/xraph/recur/subscription"
	"github.com/xraph/recur/types"
)

// Engine is the recurring-billing ledger: operator-defined plans plus
// per-account subscription state under a single shared ledger, with
// revenue accrual, balance custody and withdrawal layered on top.
//
// Every mutating operation executes under one mutex, giving a single
// global sequence of operations: each call fully commits or fully
// aborts, and outgoing transfers (refunds, withdrawals) are sequenced
// before any state commit so a failed transfer unwinds the whole call.
type Engine struct {
	store    store.Store
	transfer Transferor
	plugins  *plugin.Registry
	logger   *slog.Logger

	// Configuration
	currency  string
	bootOwner types.Address

	// opMu serializes mutating operations into a total order.
	opMu sync.Mutex
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		plugins:  plugin.NewRegistry(),
		logger:   slog.Default(),
		currency: "usd",
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithTransferor sets the value-transfer primitive used for refunds
// and withdrawals.
func WithTransferor(t Transferor) Option {
	return func(e *Engine) {
		e.transfer = t
	}
}

// WithCurrency sets the ledger currency (default "usd"). All plan
// prices and attached payments must be denominated in it.
func WithCurrency(currency string) Option {
	return func(e *Engine) {
		e.currency = currency
	}
}

// WithOwner seeds the privileged identity on Start when the store does
// not hold one yet (first run). It never overrides a persisted owner.
func WithOwner(owner types.Address) Option {
	return func(e *Engine) {
		e.bootOwner = owner
	}
}

// Start migrates the store, bootstraps the owner and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	owner, err := e.store.Owner(ctx)
	if err != nil {
		return err
	}
	if owner.IsZero() && !e.bootOwner.IsZero() {
		if err := e.store.SetOwner(ctx, e.bootOwner); err != nil {
			return err
		}
		owner = e.bootOwner
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("recur engine started",
		"owner", owner.Short(),
		"currency", e.currency,
		"plugins", e.plugins.Count(),
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// ──────────────────────────────────────────────────
// Plan Management
// ──────────────────────────────────────────────────

// CreatePlan creates a new billing plan. Owner only. The plan's ID is
// assigned by the store (sequential, 1-based, never reused) and the
// plan starts active.
func (e *Engine) CreatePlan(ctx context.Context, p *plan.Plan) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if _, err := e.requireOwner(ctx); err != nil {
		return err
	}
	if err := e.validatePlan(p); err != nil {
		return err
	}

	now := NowFrom(ctx)
	p.Entity = types.NewEntity(now)
	p.Active = true

	if err := e.store.CreatePlan(ctx, p); err != nil {
		return err
	}

	evt := event.New(event.KindPlanCreated, now)
	evt.PlanID = p.ID
	evt.Amount = p.Price
	e.emit(ctx, evt)

	e.plugins.EmitPlanCreated(ctx, p)

	e.logger.Info("plan created",
		"plan_id", p.ID,
		"name", p.Name,
		"price", p.Price.String(),
		"duration", p.Duration,
	)

	return nil
}

// GetPlan retrieves a plan by ID.
func (e *Engine) GetPlan(ctx context.Context, planID uint64) (*plan.Plan, error) {
	return e.store.GetPlan(ctx, planID)
}

// ActivePlans returns every plan whose active flag is set, ordered by
// ascending plan ID.
func (e *Engine) ActivePlans(ctx context.Context) ([]*plan.Plan, error) {
	return e.store.ListPlans(ctx, plan.ListOpts{ActiveOnly: true})
}

// TogglePlan flips a plan's active flag and returns the resulting
// state. Owner only. Deactivation is forward-only: accounts already on
// the plan keep entitlement until natural expiry or cancel, but cannot
// renew.
func (e *Engine) TogglePlan(ctx context.Context, planID uint64) (bool, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if _, err := e.requireOwner(ctx); err != nil {
		return false, err
	}

	p, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return false, err
	}

	now := NowFrom(ctx)
	p.Active = !p.Active
	p.Touch(now)

	if err := e.store.SetPlanActive(ctx, planID, p.Active, now); err != nil {
		return false, err
	}

	evt := event.New(event.KindPlanToggled, now)
	evt.PlanID = p.ID
	e.emit(ctx, evt)

	e.plugins.EmitPlanToggled(ctx, p)

	e.logger.Info("plan toggled",
		"plan_id", p.ID,
		"active", p.Active,
	)

	return p.Active, nil
}

// ──────────────────────────────────────────────────
// Subscription Lifecycle
// ──────────────────────────────────────────────────

// Subscribe purchases a subscription to the plan for the caller.
//
// A currently-entitled account cannot subscribe again; it must renew,
// cancel or let the window lapse first. On success the caller's record
// is overwritten with a fresh window, the plan price (not the attached
// payment) accrues to total revenue, the account joins the subscriber
// registry, and any overpayment is refunded through the Transferor.
// A refund failure aborts the entire operation.
func (e *Engine) Subscribe(ctx context.Context, planID uint64, payment types.Money) (*subscription.Subscription, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	caller := CallerFrom(ctx)
	if caller.IsZero() {
		return nil, fmt.Errorf("%w: missing caller identity", ErrInvalidInput)
	}
	now := NowFrom(ctx)

	p, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrPlanInactive
	}
	if err := e.checkPayment(payment, p.Price); err != nil {
		return nil, err
	}

	existing, err := e.store.GetSubscription(ctx, caller)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, err
	}
	if existing.EntitledAt(now) {
		return nil, ErrAlreadySubscribed
	}

	// Refund before commit: a failed refund must leave no trace.
	if err := e.refundExcess(ctx, caller, payment, p.Price); err != nil {
		return nil, err
	}

	start, end := p.AccessWindow(now)
	sub := &subscription.Subscription{
		Entity:       types.NewEntity(now),
		ID:           id.NewSubscriptionID(),
		Account:      caller,
		PlanID:       planID,
		StartTime:    start,
		EndTime:      end,
		Active:       true,
		RenewalCount: 0,
	}

	if err := e.store.CommitPurchase(ctx, sub, p.Price.Amount); err != nil {
		return nil, err
	}

	evt := event.New(event.KindSubscribed, now)
	evt.Account = caller
	evt.PlanID = planID
	evt.Amount = p.Price
	evt.EndTime = end
	e.emit(ctx, evt)

	e.plugins.EmitSubscribed(ctx, sub)

	e.logger.Info("subscription purchased",
		"account", caller.Short(),
		"plan_id", planID,
		"end_time", end,
		"refund", payment.Excess(p.Price).String(),
	)

	return sub, nil
}

// Renew extends the caller's subscription by one plan duration.
//
// While the current window is still live the new time stacks onto
// EndTime (no cap); once the window has lapsed the renewal restarts it
// from now, the grace path that spares a never-canceled account from
// re-subscribing. A canceled subscription cannot be renewed. The
// renewal counter always increments; revenue accrual and overpayment
// refund behave exactly as in Subscribe.
func (e *Engine) Renew(ctx context.Context, payment types.Money) (*subscription.Subscription, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	caller := CallerFrom(ctx)
	if caller.IsZero() {
		return nil, fmt.Errorf("%w: missing caller identity", ErrInvalidInput)
	}
	now := NowFrom(ctx)

	sub, err := e.store.GetSubscription(ctx, caller)
	if err != nil {
		return nil, err
	}
	if !sub.Active {
		// Canceled records renew nowhere; the account must subscribe anew.
		return nil, ErrSubscriptionNotFound
	}

	p, err := e.store.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrPlanInactive
	}
	if err := e.checkPayment(payment, p.Price); err != nil {
		return nil, err
	}

	if err := e.refundExcess(ctx, caller, payment, p.Price); err != nil {
		return nil, err
	}

	if now.Before(sub.EndTime) {
		sub.EndTime = sub.EndTime.Add(p.Duration)
	} else {
		sub.StartTime, sub.EndTime = p.AccessWindow(now)
	}
	sub.RenewalCount++
	sub.Touch(now)

	if err := e.store.CommitPurchase(ctx, sub, p.Price.Amount); err != nil {
		return nil, err
	}

	evt := event.New(event.KindRenewed, now)
	evt.Account = caller
	evt.PlanID = sub.PlanID
	evt.Amount = p.Price
	evt.EndTime = sub.EndTime
	e.emit(ctx, evt)

	e.plugins.EmitRenewed(ctx, sub)

	e.logger.Info("subscription renewed",
		"account", caller.Short(),
		"plan_id", sub.PlanID,
		"end_time", sub.EndTime,
		"renewal_count", sub.RenewalCount,
	)

	return sub, nil
}

// Cancel revokes the caller's entitlement immediately. The record's
// window and renewal counter stay untouched, nothing is refunded, and
// the account remains in the subscriber registry.
func (e *Engine) Cancel(ctx context.Context) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	caller := CallerFrom(ctx)
	if caller.IsZero() {
		return fmt.Errorf("%w: missing caller identity", ErrInvalidInput)
	}
	now := NowFrom(ctx)

	sub, err := e.store.GetSubscription(ctx, caller)
	if err != nil {
		return err
	}
	if !sub.Active {
		return ErrSubscriptionNotFound
	}

	sub.Active = false
	sub.Touch(now)

	if err := e.store.PutSubscription(ctx, sub); err != nil {
		return err
	}

	evt := event.New(event.KindCanceled, now)
	evt.Account = caller
	evt.PlanID = sub.PlanID
	e.emit(ctx, evt)

	e.plugins.EmitCanceled(ctx, sub)

	e.logger.Info("subscription canceled",
		"account", caller.Short(),
		"plan_id", sub.PlanID,
	)

	return nil
}

// ──────────────────────────────────────────────────
// Fund Custody
// ──────────────────────────────────────────────────

// Withdraw transfers the entire held balance to the owner. Owner only.
// The transfer runs before the balance is settled, so a failed transfer
// leaves the balance untouched.
func (e *Engine) Withdraw(ctx context.Context) (types.Money, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	owner, err := e.requireOwner(ctx)
	if err != nil {
		return types.Zero(e.currency), err
	}
	now := NowFrom(ctx)

	bal, err := e.store.Balance(ctx)
	if err != nil {
		return types.Zero(e.currency), err
	}
	if bal == 0 {
		return types.Zero(e.currency), ErrNothingToWithdraw
	}

	amount := types.Money{Amount: bal, Currency: e.currency}
	if err := e.send(ctx, owner, amount); err != nil {
		return types.Zero(e.currency), err
	}

	if err := e.store.SettleWithdrawal(ctx, bal); err != nil {
		return types.Zero(e.currency), err
	}

	evt := event.New(event.KindWithdrawn, now)
	evt.Account = owner
	evt.Amount = amount
	e.emit(ctx, evt)

	e.plugins.EmitWithdrawn(ctx, owner, amount)

	e.logger.Info("funds withdrawn",
		"owner", owner.Short(),
		"amount", amount.String(),
	)

	return amount, nil
}

// TransferOwnership hands the privileged identity to newOwner. Owner
// only; immediate and unconditional. The zero address is rejected.
func (e *Engine) TransferOwnership(ctx context.Context, newOwner types.Address) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	previous, err := e.requireOwner(ctx)
	if err != nil {
		return err
	}
	if newOwner.IsZero() {
		return fmt.Errorf("%w: new owner is the zero address", ErrInvalidInput)
	}
	now := NowFrom(ctx)

	if err := e.store.SetOwner(ctx, newOwner); err != nil {
		return err
	}

	evt := event.New(event.KindOwnershipTransferred, now)
	evt.Account = newOwner
	e.emit(ctx, evt)

	e.plugins.EmitOwnershipTransferred(ctx, previous, newOwner)

	e.logger.Info("ownership transferred",
		"previous", previous.Short(),
		"next", newOwner.Short(),
	)

	return nil
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// Entitled reports whether the account currently holds access: the
// record's active flag is set and the caller clock has not passed
// EndTime. Expiry is computed lazily from the stored timestamps;
// nothing in the engine flips state when a window lapses.
func (e *Engine) Entitled(ctx context.Context, account types.Address) (bool, error) {
	sub, err := e.store.GetSubscription(ctx, account)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return false, nil
		}
		return false, err
	}
	return sub.EntitledAt(NowFrom(ctx)), nil
}

// RemainingTime returns the entitlement time left for the account,
// clamped to zero when it is not currently entitled.
func (e *Engine) RemainingTime(ctx context.Context, account types.Address) (time.Duration, error) {
	sub, err := e.store.GetSubscription(ctx, account)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return sub.RemainingAt(NowFrom(ctx)), nil
}

// PlanName returns the name of the plan the account is currently
// entitled under, or the "no active plan" sentinel otherwise.
func (e *Engine) PlanName(ctx context.Context, account types.Address) (string, error) {
	view, err := e.Status(ctx, account)
	if err != nil {
		return "", err
	}
	return view.PlanName, nil
}

// Status assembles the composite per-account view from the stored
// record, the referenced plan and the caller clock. A non-entitled
// account reports only the sentinel plan name.
func (e *Engine) Status(ctx context.Context, account types.Address) (*subscription.StatusView, error) {
	sub, err := e.store.GetSubscription(ctx, account)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return &subscription.StatusView{PlanName: subscription.NoActivePlan}, nil
		}
		return nil, err
	}

	now := NowFrom(ctx)
	if !sub.EntitledAt(now) {
		return &subscription.StatusView{PlanName: subscription.NoActivePlan}, nil
	}

	p, err := e.store.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	return &subscription.StatusView{
		Entitled:     true,
		PlanID:       sub.PlanID,
		PlanName:     p.Name,
		StartTime:    sub.StartTime,
		EndTime:      sub.EndTime,
		Remaining:    sub.RemainingAt(now),
		RenewalCount: sub.RenewalCount,
	}, nil
}

// History returns the account's raw subscription record regardless of
// entitlement, canceled and expired records included.
func (e *Engine) History(ctx context.Context, account types.Address) (*subscription.Subscription, error) {
	return e.store.GetSubscription(ctx, account)
}

// Snapshot returns the full reporting view of an account: the raw
// record (nil when the account never subscribed) plus derived status.
func (e *Engine) Snapshot(ctx context.Context, account types.Address) (*subscription.Snapshot, error) {
	status, err := e.Status(ctx, account)
	if err != nil {
		return nil, err
	}

	sub, err := e.store.GetSubscription(ctx, account)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, err
	}

	return &subscription.Snapshot{
		Account:      account,
		Subscription: sub,
		Status:       *status,
	}, nil
}

// Subscribers returns every distinct account that ever subscribed, in
// insertion order. Owner only.
func (e *Engine) Subscribers(ctx context.Context) ([]types.Address, error) {
	if _, err := e.requireOwner(ctx); err != nil {
		return nil, err
	}
	return e.store.ListSubscribers(ctx)
}

// ActiveSubscribers returns the currently entitled accounts, in
// registry insertion order. Owner only.
func (e *Engine) ActiveSubscribers(ctx context.Context) ([]types.Address, error) {
	if _, err := e.requireOwner(ctx); err != nil {
		return nil, err
	}

	accounts, err := e.store.ListSubscribers(ctx)
	if err != nil {
		return nil, err
	}

	now := NowFrom(ctx)
	active := make([]types.Address, 0, len(accounts))
	for _, account := range accounts {
		sub, err := e.store.GetSubscription(ctx, account)
		if err != nil {
			if errors.Is(err, ErrSubscriptionNotFound) {
				continue
			}
			return nil, err
		}
		if sub.EntitledAt(now) {
			active = append(active, account)
		}
	}
	return active, nil
}

// PlanSubscribers returns the accounts whose current record references
// the plan, active or not, in registry insertion order. Owner only.
func (e *Engine) PlanSubscribers(ctx context.Context, planID uint64) ([]types.Address, error) {
	if _, err := e.requireOwner(ctx); err != nil {
		return nil, err
	}

	// Plan IDs are 1-based; 0 is ListOpts' unfiltered sentinel, so it
	// must short-circuit here rather than match every record.
	if planID == 0 {
		return []types.Address{}, nil
	}

	subs, err := e.store.ListSubscriptions(ctx, subscription.ListOpts{PlanID: planID})
	if err != nil {
		return nil, err
	}

	accounts := make([]types.Address, 0, len(subs))
	for _, sub := range subs {
		accounts = append(accounts, sub.Account)
	}
	return accounts, nil
}

// TotalRevenue returns the monotonically non-decreasing sum of all
// successful payments (plan prices, refunded overpayment excluded).
func (e *Engine) TotalRevenue(ctx context.Context) (types.Money, error) {
	amount, err := e.store.TotalRevenue(ctx)
	if err != nil {
		return types.Zero(e.currency), err
	}
	return types.Money{Amount: amount, Currency: e.currency}, nil
}

// Balance returns the funds currently held by the ledger: payments
// received minus withdrawals minus refunded overpayments.
func (e *Engine) Balance(ctx context.Context) (types.Money, error) {
	amount, err := e.store.Balance(ctx)
	if err != nil {
		return types.Zero(e.currency), err
	}
	return types.Money{Amount: amount, Currency: e.currency}, nil
}

// Owner returns the current privileged identity.
func (e *Engine) Owner(ctx context.Context) (types.Address, error) {
	return e.store.Owner(ctx)
}

// Events returns entries from the persisted notification feed, in
// emission order.
func (e *Engine) Events(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	return e.store.ListEvents(ctx, opts)
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// requireOwner resolves the caller and rejects anyone but the owner.
func (e *Engine) requireOwner(ctx context.Context) (types.Address, error) {
	caller := CallerFrom(ctx)
	if caller.IsZero() {
		return types.ZeroAddress, ErrUnauthorized
	}

	owner, err := e.store.Owner(ctx)
	if err != nil {
		return types.ZeroAddress, err
	}
	if owner.IsZero() || caller != owner {
		return types.ZeroAddress, ErrUnauthorized
	}
	return caller, nil
}

// validatePlan checks the creation invariants: positive price in the
// ledger currency, positive duration, non-empty name.
func (e *Engine) validatePlan(p *plan.Plan) error {
	if p.Name == "" {
		return ValidationError{Field: "name", Message: "must not be empty"}
	}
	if !p.Price.IsPositive() {
		return ValidationError{Field: "price", Message: "must be positive"}
	}
	if p.Price.Currency != e.currency {
		return ValidationError{Field: "price", Message: fmt.Sprintf("must be denominated in %q", e.currency)}
	}
	if p.Duration <= 0 {
		return ValidationError{Field: "duration", Message: "must be positive"}
	}
	return nil
}

// checkPayment validates an attached payment against a plan price.
func (e *Engine) checkPayment(payment, price types.Money) error {
	if !payment.SameCurrency(price) {
		return fmt.Errorf("%w: payment currency %q, plan currency %q",
			ErrInvalidInput, payment.Currency, price.Currency)
	}
	if payment.LessThan(price) {
		return ErrInsufficientPayment
	}
	return nil
}

// refundExcess pushes back any overpayment before state is committed.
func (e *Engine) refundExcess(ctx context.Context, to types.Address, payment, price types.Money) error {
	refund := payment.Excess(price)
	if !refund.IsPositive() {
		return nil
	}
	return e.send(ctx, to, refund)
}

// send runs one outgoing transfer through the configured Transferor.
func (e *Engine) send(ctx context.Context, to types.Address, amount types.Money) error {
	if e.transfer == nil {
		return fmt.Errorf("%w: no transferor configured", ErrTransferFailed)
	}
	if err := e.transfer.Transfer(ctx, to, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return nil
}

// emit persists one notification-feed entry and dispatches it to
// OnEvent plugins. Feed persistence is observational: a failed append
// is logged, never unwound.
func (e *Engine) emit(ctx context.Context, evt *event.Event) {
	if err := e.store.AppendEvent(ctx, evt); err != nil {
		e.logger.Warn("failed to append ledger event",
			"event_id", evt.ID.String(),
			"kind", evt.Kind,
			"error", err,
		)
	}
	e.plugins.EmitEvent(ctx, evt)
}
