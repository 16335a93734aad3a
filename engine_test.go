package recur_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	recur "github.com/xraph/recur"
	"github.com/xraph/recur/event"
	"github.com/xraph/recur/plan"
	"github.com/xraph/recur/store/memory"
	"github.com/xraph/recur/subscription"
	"github.com/xraph/recur/types"
)

var (
	owner   = types.Address("acct_owner")
	alice   = types.Address("acct_alice")
	bob     = types.Address("acct_bob")
	carol   = types.Address("acct_carol")
	baseNow = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
)

// rail is a Transferor that records outgoing transfers and can be told
// to fail.
type rail struct {
	mu        sync.Mutex
	transfers []transfer
	fail      error
}

type transfer struct {
	To     types.Address
	Amount types.Money
}

func (r *rail) Transfer(_ context.Context, to types.Address, amount types.Money) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.transfers = append(r.transfers, transfer{To: to, Amount: amount})
	return nil
}

func (r *rail) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.transfers)
}

func (r *rail) last() transfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transfers[len(r.transfers)-1]
}

// newTestEngine builds an engine on a fresh memory store, started with
// the test owner bootstrapped.
func newTestEngine(t *testing.T, opts ...recur.Option) (*recur.Engine, *rail) {
	t.Helper()

	r := &rail{}
	base := []recur.Option{
		recur.WithOwner(owner),
		recur.WithTransferor(r),
	}
	eng := recur.New(memory.New(), append(base, opts...)...)
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return eng, r
}

func asCaller(account types.Address, now time.Time) context.Context {
	ctx := recur.WithCaller(context.Background(), account)
	return recur.WithNow(ctx, now)
}

func mustCreatePlan(t *testing.T, eng *recur.Engine, name string, price int64, duration time.Duration) *plan.Plan {
	t.Helper()

	p := &plan.Plan{
		Name:     name,
		Price:    types.USD(price),
		Duration: duration,
	}
	if err := eng.CreatePlan(asCaller(owner, baseNow), p); err != nil {
		t.Fatalf("CreatePlan(%s): %v", name, err)
	}
	return p
}

func TestCreatePlan(t *testing.T) {
	t.Run("AssignsSequentialIDs", func(t *testing.T) {
		eng, _ := newTestEngine(t)

		p1 := mustCreatePlan(t, eng, "Basic", 999, 30*24*time.Hour)
		p2 := mustCreatePlan(t, eng, "Pro", 2999, 30*24*time.Hour)

		if p1.ID != 1 || p2.ID != 2 {
			t.Errorf("IDs: got %d, %d, want 1, 2", p1.ID, p2.ID)
		}
		if !p1.Active || !p2.Active {
			t.Error("new plans must start active")
		}
	})

	t.Run("NonOwnerUnauthorized", func(t *testing.T) {
		eng, _ := newTestEngine(t)

		p := &plan.Plan{Name: "Sneaky", Price: types.USD(1), Duration: time.Hour}
		err := eng.CreatePlan(asCaller(alice, baseNow), p)
		if !errors.Is(err, recur.ErrUnauthorized) {
			t.Errorf("got %v, want ErrUnauthorized", err)
		}
	})

	t.Run("Validation", func(t *testing.T) {
		eng, _ := newTestEngine(t)
		ctx := asCaller(owner, baseNow)

		tests := []struct {
			name string
			plan *plan.Plan
		}{
			{"EmptyName", &plan.Plan{Price: types.USD(100), Duration: time.Hour}},
			{"ZeroPrice", &plan.Plan{Name: "Free", Price: types.USD(0), Duration: time.Hour}},
			{"NegativePrice", &plan.Plan{Name: "Neg", Price: types.USD(-1), Duration: time.Hour}},
			{"WrongCurrency", &plan.Plan{Name: "Euro", Price: types.EUR(100), Duration: time.Hour}},
			{"ZeroDuration", &plan.Plan{Name: "Instant", Price: types.USD(100)}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if err := eng.CreatePlan(ctx, tt.plan); !errors.Is(err, recur.ErrInvalidInput) {
					t.Errorf("got %v, want ErrInvalidInput", err)
				}
			})
		}
	})
}

func TestTogglePlan(t *testing.T) {
	eng, _ := newTestEngine(t)
	p := mustCreatePlan(t, eng, "Basic", 999, 30*24*time.Hour)
	ctx := asCaller(owner, baseNow)

	active, err := eng.TogglePlan(ctx, p.ID)
	if err != nil {
		t.Fatalf("TogglePlan: %v", err)
	}
	if active {
		t.Error("first toggle should deactivate")
	}

	active, err = eng.TogglePlan(ctx, p.ID)
	if err != nil {
		t.Fatalf("TogglePlan: %v", err)
	}
	if !active {
		t.Error("second toggle should reactivate")
	}

	// The toggle persists the caller clock as UpdatedAt.
	toggledAt := baseNow.Add(time.Hour)
	if _, err := eng.TogglePlan(asCaller(owner, toggledAt), p.ID); err != nil {
		t.Fatalf("TogglePlan: %v", err)
	}
	stored, err := eng.GetPlan(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if !stored.UpdatedAt.Equal(toggledAt) {
		t.Errorf("UpdatedAt: got %s, want %s", stored.UpdatedAt, toggledAt)
	}

	if _, err := eng.TogglePlan(asCaller(alice, baseNow), p.ID); !errors.Is(err, recur.ErrUnauthorized) {
		t.Errorf("non-owner toggle: got %v, want ErrUnauthorized", err)
	}
	if _, err := eng.TogglePlan(ctx, 42); !errors.Is(err, recur.ErrPlanNotFound) {
		t.Errorf("unknown plan: got %v, want ErrPlanNotFound", err)
	}
}

func TestActivePlans(t *testing.T) {
	eng, _ := newTestEngine(t)
	mustCreatePlan(t, eng, "Basic", 999, 30*24*time.Hour)
	p2 := mustCreatePlan(t, eng, "Pro", 2999, 30*24*time.Hour)
	mustCreatePlan(t, eng, "Max", 9999, 30*24*time.Hour)

	if _, err := eng.TogglePlan(asCaller(owner, baseNow), p2.ID); err != nil {
		t.Fatalf("TogglePlan: %v", err)
	}

	plans, err := eng.ActivePlans(context.Background())
	if err != nil {
		t.Fatalf("ActivePlans: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("got %d active plans, want 2", len(plans))
	}
	if plans[0].ID != 1 || plans[1].ID != 3 {
		t.Errorf("ordering: got IDs %d, %d, want 1, 3", plans[0].ID, plans[1].ID)
	}
}

func TestSubscribe(t *testing.T) {
	const day = 24 * time.Hour

	t.Run("ExactPayment", func(t *testing.T) {
		eng, r := newTestEngine(t)
		p := mustCreatePlan(t, eng, "Basic", 999, 30*day)

		sub, err := eng.Subscribe(asCaller(alice, baseNow), p.ID, types.USD(999))
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		if sub.Account != alice || sub.PlanID != p.ID {
			t.Errorf("record: got account %s plan %d", sub.Account, sub.PlanID)
		}
		if !sub.StartTime.Equal(baseNow) || !sub.EndTime.Equal(baseNow.Add(30*day)) {
			t.Errorf("window: got [%v, %v]", sub.StartTime, sub.EndTime)
		}
		if sub.RenewalCount != 0 {
			t.Errorf("renewal count: got %d, want 0", sub.RenewalCount)
		}
		if r.count() != 0 {
			t.Errorf("exact payment must not trigger a refund, got %d transfers", r.count())
		}

		rev, _ := eng.TotalRevenue(context.Background())
		if !rev.Equal(types.USD(999)) {
			t.Errorf("revenue: got %v, want $9.99", rev)
		}
		bal, _ := eng.Balance(context.Background())
		if !bal.Equal(types.USD(999)) {
			t.Errorf("balance: got %v, want $9.99", bal)
		}

		ok, err := eng.Entitled(asCaller(alice, baseNow.Add(day)), alice)
		if err != nil || !ok {
			t.Errorf("Entitled: got %v, %v, want true", ok, err)
		}
	})

	t.Run("OverpaymentRefunded", func(t *testing.T) {
		eng, r := newTestEngine(t)
		p := mustCreatePlan(t, eng, "Basic", 999, 30*day)

		if _, err := eng.Subscribe(asCaller(alice, baseNow), p.ID, types.USD(1500)); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		if r.count() != 1 {
			t.Fatalf("got %d transfers, want 1 refund", r.count())
		}
		refund := r.last()
		if refund.To != alice || !refund.Amount.Equal(types.USD(501)) {
			t.Errorf("refund: got %v to %s, want $5.01 to alice", refund.Amount, refund.To)
		}

		// Only the plan price accrues.
		rev, _ := eng.TotalRevenue(context.Background())
		if !rev.Equal(types.USD(999)) {
			t.Errorf("revenue: got %v, want $9.99", rev)
		}
	})

	t.Run("RefundFailureAborts", func(t *testing.T) {
		eng, r := newTestEngine(t)
		p := mustCreatePlan(t, eng, "Basic", 999, 30*day)
		r.fail = errors.New("rail offline")

		_, err := eng.Subscribe(asCaller(alice, baseNow), p.ID, types.USD(1500))
		if !errors.Is(err, recur.ErrTransferFailed) {
			t.Fatalf("got %v, want ErrTransferFailed", err)
		}

		// Nothing committed.
		ok, _ := eng.Entitled(asCaller(alice, baseNow), alice)
		if ok {
			t.Error("failed subscribe must not grant entitlement")
		}
		rev, _ := eng.TotalRevenue(context.Background())
		if !rev.IsZero() {
			t.Errorf("revenue after abort: got %v, want zero", rev)
		}
		subs, err := eng.Subscribers(asCaller(owner, baseNow))
		if err != nil {
			t.Fatalf("Subscribers: %v", err)
		}
		if len(subs) != 0 {
			t.Errorf("registry after abort: got %v, want empty", subs)
		}
	})

	t.Run("Rejections", func(t *testing.T) {
		eng, _ := newTestEngine(t)
		p := mustCreatePlan(t, eng, "Basic", 999, 30*day)
		inactive := mustCreatePlan(t, eng, "Retired", 500, 30*day)
		if _, err := eng.TogglePlan(asCaller(owner, baseNow), inactive.ID); err != nil {
			t.Fatalf("TogglePlan: %v", err)
		}

		tests := []struct {
			name    string
			ctx     context.Context
			planID  uint64
			payment types.Money
			want    error
		}{
			{"UnknownPlan", asCaller(alice, baseNow), 42, types.USD(999), recur.ErrPlanNotFound},
			{"InactivePlan", asCaller(alice, baseNow), inactive.ID, types.USD(500), recur.ErrPlanInactive},
			{"Underpayment", asCaller(alice, baseNow), p.ID, types.USD(998), recur.ErrInsufficientPayment},
			{"WrongCurrency", asCaller(alice, baseNow), p.ID, types.EUR(999), recur.ErrInvalidInput},
			{"MissingCaller", recur.WithNow(context.Background(), baseNow), p.ID, types.USD(999), recur.ErrInvalidInput},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := eng.Subscribe(tt.ctx, tt.planID, tt.payment); !errors.Is(err, tt.want) {
					t.Errorf("got %v, want %v", err, tt.want)
				}
			})
		}
	})

	t.Run("AlreadySubscribed", func(t *testing.T) {
		eng, _ := newTestEngine(t)
		p := mustCreatePlan(t, eng, "Basic", 999, 30*day)

		if _, err := eng.Subscribe(asCaller(alice, baseNow), p.ID, types.USD(999)); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		_, err := eng.Subscribe(asCaller(alice, baseNow.Add(day)), p.ID, types.USD(999))
		if !errors.Is(err, recur.ErrAlreadySubscribed) {
			t.Errorf("got %v, want ErrAlreadySubscribed", err)
		}
	})

	t.Run("ResubscribeAfterExpiry", func(t *testing.T) {
		eng, _ := newTestEngine(t)
		p := mustCreatePlan(t, eng, "Basic", 999, 30*day)

		if _, err := eng.Subscribe(asCaller(alice, baseNow), p.ID, types.USD(999)); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		later := baseNow.Add(31 * day)
		sub, err := eng.Subscribe(asCaller(alice, later), p.ID, types.USD(999))
		if err != nil {
			t.Fatalf("re-subscribe after expiry: %v", err)
		}
		if sub.RenewalCount != 0 {
			t.Errorf("fresh purchase must reset renewal count, got %d", sub.RenewalCount)
		}
		if !sub.StartTime.Equal(later) {
			t.Errorf("window must restart at purchase time, got %v", sub.StartTime)
		}
	})

	t.Run("ResubscribeAfterCancel", func(t *testing.T) {
		eng, _ := newTestEngine(t)
		p := mustCreatePlan(t, eng, "Basic", 999, 30*day)

		if _, err := eng.Subscribe(asCaller(alice, baseNow), p.ID, types.USD(999)); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		if err := eng.Cancel(asCaller(alice, baseNow.Add(day))); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		if _, err := eng.Subscribe(asCaller(alice, baseNow.Add(2*day)), p.ID, types.USD(999)); err != nil {
			t.Fatalf("re-subscribe after cancel: %v", err)
		}

		// The registry still lists alice exactly once.
		subs, err := eng.Subscribers(asCaller(owner, baseNow))
		if err != nil {
			t.Fatalf("Subscribers: %v", err)
		}
		if len(subs) != 1 || subs[0] != alice {
			t.Errorf("registry: got %v, want [alice]", subs)
		}
	})
}

func TestRenew(t *testing.T) {
	const day = 24 * time.Hour

	t.Run("StacksWhileLive", func(t *testing.T) {
		eng, _ := newTestEngine(t)
		p := mustCreatePlan(t, eng, "Basic", 999, 30*day)

		first, err := eng.Subscribe(asCaller(alice, baseNow), p.ID, types.USD(999))
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}

		sub, err := eng.Renew(asCaller(alice, baseNow.Add(10*day)), types.USD(999))
		if err != nil {
			t.Fatalf("Renew: %v", err)
		}
		if !sub.EndTime.Equal(first.EndTime.Add(30 * day)) {
			t.Errorf("stacked end: got %v, want %v", sub.EndTime, first.EndTime.Add(30*day))
		}
		if !sub.StartTime.Equal(first.StartTime) {
			t.Errorf("start must not move on a live renewal, got %v", sub.StartTime)
		}
		if sub.RenewalCount != 1 {
			t.Errorf("renewal count: got %d, want 1", sub.RenewalCount)
		}

		rev, _ := eng.TotalRevenue(context.Background())
		if !rev.Equal(types.USD(1998)) {
			t.Errorf("revenue after renew: got %v, want $19.98", rev)
		}
	})

	t.Run("GraceRestartAfterLapse", func(t *testing.T) {
		eng, _ := newTestEngine(t)
		p := mustCreatePlan(t, eng, "Basic", 999, 30*day)

		if _, err := eng.Subscribe(asCaller(alice, baseNow), p.ID, types.USD(999)); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}

		// Lapsed but never canceled: renewal restarts the window.
		later := baseNow.Add(45 * day)
		sub, err := eng.Renew(asCaller(alice, later), types.USD(999))
		if err != nil {
			t.Fatalf("Renew after lapse: %v", err)
		}
		if !sub.StartTime.Equal(later) || !sub.EndTime.Equal(later.Add(30*day)) {
			t.Errorf("restarted window: got [%v, %v]", sub.StartTime, sub.EndTime)
		}
		if sub.RenewalCount != 1 {
			t.Errorf("renewal count: got %d, want 1", sub.RenewalCount)
		}
	})

	t.Run("Rejections", func(t *testing.T) {
		eng, _ := newTestEngine(t)
		p := mustCreatePlan(t, eng, "Basic", 999, 30*day)

		// Never subscribed.
		if _, err := eng.Renew(asCaller(bob, baseNow), types.USD(999)); !errors.Is(err, recur.ErrSubscriptionNotFound) {
			t.Errorf("never subscribed: got %v, want ErrSubscriptionNotFound", err)
		}

		// Canceled records cannot renew.
		if _, err := eng.Subscribe(asCaller(alice, baseNow), p.ID, types.USD(999)); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		if err := eng.Cancel(asCaller(alice, baseNow)); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		if _, err := eng.Renew(asCaller(alice, baseNow), types.USD(999)); !errors.Is(err, recur.ErrSubscriptionNotFound) {
			t.Errorf("canceled: got %v, want ErrSubscriptionNotFound", err)
		}

		// Deactivated plans cannot be renewed onto.
		if _, err := eng.Subscribe(asCaller(bob, baseNow), p.ID, types.USD(999)); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		if _, err := eng.TogglePlan(asCaller(owner, baseNow), p.ID); err != nil {
			t.Fatalf("TogglePlan: %v", err)
		}
		if _, err := eng.Renew(asCaller(bob, baseNow.Add(day)), types.USD(999)); !errors.Is(err, recur.ErrPlanInactive) {
			t.Errorf("inactive plan: got %v, want ErrPlanInactive", err)
		}
	})
}

func TestCancel(t *testing.T) {
	const day = 24 * time.Hour

	eng, _ := newTestEngine(t)
	p := mustCreatePlan(t, eng, "Basic", 999, 30*day)

	sub, err := eng.Subscribe(asCaller(alice, baseNow), p.ID, types.USD(999))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := eng.Cancel(asCaller(alice, baseNow.Add(day))); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	// Entitlement revoked immediately, even though EndTime is in the future.
	ok, _ := eng.Entitled(asCaller(alice, baseNow.Add(2*day)), alice)
	if ok {
		t.Error("canceled account must not be entitled")
	}

	// The record keeps its window.
	rec, err := eng.History(context.Background(), alice)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if rec.Active {
		t.Error("record must be inactive after cancel")
	}
	if !rec.EndTime.Equal(sub.EndTime) {
		t.Errorf("EndTime must survive cancel: got %v, want %v", rec.EndTime, sub.EndTime)
	}

	// No refund on cancel, balance untouched.
	bal, _ := eng.Balance(context.Background())
	if !bal.Equal(types.USD(999)) {
		t.Errorf("balance after cancel: got %v, want $9.99", bal)
	}

	// Cancel twice surfaces the not-found sentinel.
	if err := eng.Cancel(asCaller(alice, baseNow.Add(3*day))); !errors.Is(err, recur.ErrSubscriptionNotFound) {
		t.Errorf("double cancel: got %v, want ErrSubscriptionNotFound", err)
	}

	// Never subscribed.
	if err := eng.Cancel(asCaller(bob, baseNow)); !errors.Is(err, recur.ErrSubscriptionNotFound) {
		t.Errorf("never subscribed: got %v, want ErrSubscriptionNotFound", err)
	}
}

func TestWithdraw(t *testing.T) {
	const day = 24 * time.Hour

	t.Run("HappyPath", func(t *testing.T) {
		eng, r := newTestEngine(t)
		p := mustCreatePlan(t, eng, "Basic", 999, 30*day)
		if _, err := eng.Subscribe(asCaller(alice, baseNow), p.ID, types.USD(999)); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		if _, err := eng.Subscribe(asCaller(bob, baseNow), p.ID, types.USD(999)); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}

		amount, err := eng.Withdraw(asCaller(owner, baseNow.Add(day)))
		if err != nil {
			t.Fatalf("Withdraw: %v", err)
		}
		if !amount.Equal(types.USD(1998)) {
			t.Errorf("withdrawn: got %v, want $19.98", amount)
		}
		got := r.last()
		if got.To != owner || !got.Amount.Equal(types.USD(1998)) {
			t.Errorf("transfer: got %v to %s, want $19.98 to owner", got.Amount, got.To)
		}

		bal, _ := eng.Balance(context.Background())
		if !bal.IsZero() {
			t.Errorf("balance after withdraw: got %v, want zero", bal)
		}
		// Revenue is a history, not a balance.
		rev, _ := eng.TotalRevenue(context.Background())
		if !rev.Equal(types.USD(1998)) {
			t.Errorf("revenue after withdraw: got %v, want $19.98", rev)
		}
	})

	t.Run("Rejections", func(t *testing.T) {
		eng, _ := newTestEngine(t)

		if _, err := eng.Withdraw(asCaller(alice, baseNow)); !errors.Is(err, recur.ErrUnauthorized) {
			t.Errorf("non-owner: got %v, want ErrUnauthorized", err)
		}
		if _, err := eng.Withdraw(asCaller(owner, baseNow)); !errors.Is(err, recur.ErrNothingToWithdraw) {
			t.Errorf("zero balance: got %v, want ErrNothingToWithdraw", err)
		}
	})

	t.Run("TransferFailureKeepsBalance", func(t *testing.T) {
		eng, r := newTestEngine(t)
		p := mustCreatePlan(t, eng, "Basic", 999, 30*day)
		if _, err := eng.Subscribe(asCaller(alice, baseNow), p.ID, types.USD(999)); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}

		r.fail = errors.New("rail offline")
		if _, err := eng.Withdraw(asCaller(owner, baseNow)); !errors.Is(err, recur.ErrTransferFailed) {
			t.Fatalf("got %v, want ErrTransferFailed", err)
		}

		bal, _ := eng.Balance(context.Background())
		if !bal.Equal(types.USD(999)) {
			t.Errorf("balance after failed withdraw: got %v, want $9.99", bal)
		}
	})
}

func TestTransferOwnership(t *testing.T) {
	eng, _ := newTestEngine(t)

	if err := eng.TransferOwnership(asCaller(owner, baseNow), types.ZeroAddress); !errors.Is(err, recur.ErrInvalidInput) {
		t.Errorf("zero address: got %v, want ErrInvalidInput", err)
	}
	if err := eng.TransferOwnership(asCaller(alice, baseNow), bob); !errors.Is(err, recur.ErrUnauthorized) {
		t.Errorf("non-owner: got %v, want ErrUnauthorized", err)
	}

	if err := eng.TransferOwnership(asCaller(owner, baseNow), alice); err != nil {
		t.Fatalf("TransferOwnership: %v", err)
	}

	got, err := eng.Owner(context.Background())
	if err != nil || got != alice {
		t.Errorf("owner: got %s, %v, want alice", got, err)
	}

	// The previous owner lost its privileges; the new one holds them.
	p := &plan.Plan{Name: "After", Price: types.USD(100), Duration: time.Hour}
	if err := eng.CreatePlan(asCaller(owner, baseNow), p); !errors.Is(err, recur.ErrUnauthorized) {
		t.Errorf("old owner: got %v, want ErrUnauthorized", err)
	}
	if err := eng.CreatePlan(asCaller(alice, baseNow), p); err != nil {
		t.Errorf("new owner: %v", err)
	}
}

func TestQueries(t *testing.T) {
	const day = 24 * time.Hour

	eng, _ := newTestEngine(t)
	basic := mustCreatePlan(t, eng, "Basic", 999, 30*day)
	pro := mustCreatePlan(t, eng, "Pro", 2999, 30*day)

	if _, err := eng.Subscribe(asCaller(alice, baseNow), basic.ID, types.USD(999)); err != nil {
		t.Fatalf("Subscribe alice: %v", err)
	}
	if _, err := eng.Subscribe(asCaller(bob, baseNow.Add(time.Hour)), pro.ID, types.USD(2999)); err != nil {
		t.Fatalf("Subscribe bob: %v", err)
	}
	if _, err := eng.Subscribe(asCaller(carol, baseNow.Add(2*time.Hour)), basic.ID, types.USD(999)); err != nil {
		t.Fatalf("Subscribe carol: %v", err)
	}
	if err := eng.Cancel(asCaller(carol, baseNow.Add(3*time.Hour))); err != nil {
		t.Fatalf("Cancel carol: %v", err)
	}

	query := asCaller(owner, baseNow.Add(day))

	t.Run("Status", func(t *testing.T) {
		view, err := eng.Status(query, alice)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if !view.Entitled || view.PlanName != "Basic" || view.PlanID != basic.ID {
			t.Errorf("entitled view: got %+v", view)
		}
		if view.Remaining != 29*day {
			t.Errorf("remaining: got %v, want %v", view.Remaining, 29*day)
		}

		// Canceled and unknown accounts get the sentinel view.
		for _, account := range []types.Address{carol, types.Address("acct_nobody")} {
			view, err := eng.Status(query, account)
			if err != nil {
				t.Fatalf("Status(%s): %v", account, err)
			}
			if view.Entitled || view.PlanName != subscription.NoActivePlan {
				t.Errorf("sentinel view for %s: got %+v", account, view)
			}
		}
	})

	t.Run("PlanName", func(t *testing.T) {
		name, err := eng.PlanName(query, bob)
		if err != nil || name != "Pro" {
			t.Errorf("got %q, %v, want Pro", name, err)
		}
		name, err = eng.PlanName(query, carol)
		if err != nil || name != subscription.NoActivePlan {
			t.Errorf("got %q, %v, want sentinel", name, err)
		}
	})

	t.Run("RemainingTimeClamped", func(t *testing.T) {
		d, err := eng.RemainingTime(asCaller(owner, baseNow.Add(90*day)), alice)
		if err != nil || d != 0 {
			t.Errorf("expired: got %v, %v, want 0", d, err)
		}
		d, err = eng.RemainingTime(query, types.Address("acct_nobody"))
		if err != nil || d != 0 {
			t.Errorf("unknown: got %v, %v, want 0", d, err)
		}
	})

	t.Run("SubscribersOrderAndAuth", func(t *testing.T) {
		subs, err := eng.Subscribers(query)
		if err != nil {
			t.Fatalf("Subscribers: %v", err)
		}
		want := []types.Address{alice, bob, carol}
		if len(subs) != len(want) {
			t.Fatalf("got %v, want %v", subs, want)
		}
		for i := range want {
			if subs[i] != want[i] {
				t.Errorf("position %d: got %s, want %s", i, subs[i], want[i])
			}
		}

		if _, err := eng.Subscribers(asCaller(alice, baseNow)); !errors.Is(err, recur.ErrUnauthorized) {
			t.Errorf("non-owner: got %v, want ErrUnauthorized", err)
		}
	})

	t.Run("ActiveSubscribers", func(t *testing.T) {
		active, err := eng.ActiveSubscribers(query)
		if err != nil {
			t.Fatalf("ActiveSubscribers: %v", err)
		}
		if len(active) != 2 || active[0] != alice || active[1] != bob {
			t.Errorf("got %v, want [alice bob]", active)
		}

		// Everyone expires eventually.
		none, err := eng.ActiveSubscribers(asCaller(owner, baseNow.Add(90*day)))
		if err != nil {
			t.Fatalf("ActiveSubscribers: %v", err)
		}
		if len(none) != 0 {
			t.Errorf("after expiry: got %v, want empty", none)
		}
	})

	t.Run("PlanSubscribers", func(t *testing.T) {
		// Carol canceled but her record still references Basic.
		got, err := eng.PlanSubscribers(query, basic.ID)
		if err != nil {
			t.Fatalf("PlanSubscribers: %v", err)
		}
		if len(got) != 2 || got[0] != alice || got[1] != carol {
			t.Errorf("got %v, want [alice carol]", got)
		}

		if _, err := eng.PlanSubscribers(asCaller(bob, baseNow), basic.ID); !errors.Is(err, recur.ErrUnauthorized) {
			t.Errorf("non-owner: got %v, want ErrUnauthorized", err)
		}

		// Unassigned ids match nobody, and id 0 in particular must not
		// degrade into an unfiltered listing of the registry.
		got, err = eng.PlanSubscribers(query, 42)
		if err != nil {
			t.Fatalf("PlanSubscribers(42): %v", err)
		}
		if len(got) != 0 {
			t.Errorf("unassigned plan: got %v, want empty", got)
		}

		got, err = eng.PlanSubscribers(query, 0)
		if err != nil {
			t.Fatalf("PlanSubscribers(0): %v", err)
		}
		if len(got) != 0 {
			t.Errorf("plan id 0: got %v, want empty", got)
		}
	})

	t.Run("Snapshot", func(t *testing.T) {
		snap, err := eng.Snapshot(query, carol)
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if snap.Subscription == nil || snap.Subscription.Active {
			t.Errorf("snapshot record: got %+v", snap.Subscription)
		}
		if snap.Status.Entitled {
			t.Error("canceled account must not report entitled")
		}

		snap, err = eng.Snapshot(query, types.Address("acct_nobody"))
		if err != nil {
			t.Fatalf("Snapshot unknown: %v", err)
		}
		if snap.Subscription != nil {
			t.Errorf("unknown account record: got %+v, want nil", snap.Subscription)
		}
	})
}

func TestEventFeed(t *testing.T) {
	const day = 24 * time.Hour

	eng, _ := newTestEngine(t)
	p := mustCreatePlan(t, eng, "Basic", 999, 30*day)
	if _, err := eng.Subscribe(asCaller(alice, baseNow), p.ID, types.USD(999)); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := eng.Renew(asCaller(alice, baseNow.Add(day)), types.USD(999)); err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if err := eng.Cancel(asCaller(alice, baseNow.Add(2*day))); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := eng.Withdraw(asCaller(owner, baseNow.Add(3*day))); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}

	evts, err := eng.Events(context.Background(), event.ListOpts{})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}

	wantKinds := []event.Kind{
		event.KindPlanCreated,
		event.KindSubscribed,
		event.KindRenewed,
		event.KindCanceled,
		event.KindWithdrawn,
	}
	if len(evts) != len(wantKinds) {
		t.Fatalf("got %d events, want %d", len(evts), len(wantKinds))
	}
	for i, kind := range wantKinds {
		if evts[i].Kind != kind {
			t.Errorf("event %d: got %s, want %s", i, evts[i].Kind, kind)
		}
	}

	// The purchase event carries the paid price and the new end time.
	purchase := evts[1]
	if purchase.Account != alice || !purchase.Amount.Equal(types.USD(999)) {
		t.Errorf("purchase event: got %+v", purchase)
	}
	if !purchase.EndTime.Equal(baseNow.Add(30 * day)) {
		t.Errorf("purchase end time: got %v", purchase.EndTime)
	}

	// Account filter.
	mine, err := eng.Events(context.Background(), event.ListOpts{Account: alice})
	if err != nil {
		t.Fatalf("Events by account: %v", err)
	}
	if len(mine) != 3 {
		t.Errorf("alice events: got %d, want 3", len(mine))
	}
}

// recorder is a plugin capturing every typed hook invocation.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) Name() string { return "test-recorder" }

func (r *recorder) note(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) OnPlanCreated(_ context.Context, _ *plan.Plan) error {
	r.note("plan_created")
	return nil
}

func (r *recorder) OnSubscribed(_ context.Context, _ *subscription.Subscription) error {
	r.note("subscribed")
	return nil
}

func (r *recorder) OnCanceled(_ context.Context, _ *subscription.Subscription) error {
	r.note("canceled")
	return nil
}

func (r *recorder) OnWithdrawn(_ context.Context, _ types.Address, _ types.Money) error {
	r.note("withdrawn")
	return nil
}

func TestPluginHooks(t *testing.T) {
	const day = 24 * time.Hour

	rec := &recorder{}
	eng, _ := newTestEngine(t, recur.WithPlugin(rec))

	p := mustCreatePlan(t, eng, "Basic", 999, 30*day)
	if _, err := eng.Subscribe(asCaller(alice, baseNow), p.ID, types.USD(999)); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := eng.Cancel(asCaller(alice, baseNow)); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := eng.Withdraw(asCaller(owner, baseNow)); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}

	want := []string{"plan_created", "subscribed", "canceled", "withdrawn"}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.calls) != len(want) {
		t.Fatalf("calls: got %v, want %v", rec.calls, want)
	}
	for i := range want {
		if rec.calls[i] != want[i] {
			t.Errorf("call %d: got %s, want %s", i, rec.calls[i], want[i])
		}
	}
}

func TestOwnerBootstrap(t *testing.T) {
	t.Run("SeedsOnFirstStart", func(t *testing.T) {
		eng, _ := newTestEngine(t)
		got, err := eng.Owner(context.Background())
		if err != nil || got != owner {
			t.Errorf("owner: got %s, %v", got, err)
		}
	})

	t.Run("NeverOverridesPersistedOwner", func(t *testing.T) {
		st := memory.New()
		first := recur.New(st, recur.WithOwner(owner))
		if err := first.Start(context.Background()); err != nil {
			t.Fatalf("Start: %v", err)
		}
		if err := first.TransferOwnership(asCaller(owner, baseNow), alice); err != nil {
			t.Fatalf("TransferOwnership: %v", err)
		}

		// A restart with the old boot owner must not reclaim ownership.
		second := recur.New(st, recur.WithOwner(owner))
		if err := second.Start(context.Background()); err != nil {
			t.Fatalf("restart: %v", err)
		}
		got, err := second.Owner(context.Background())
		if err != nil || got != alice {
			t.Errorf("owner after restart: got %s, %v, want alice", got, err)
		}
	})
}
