// Package recur provides a recurring-billing subscription ledger for Go applications.
//
// Recur is designed as a library, not a service. Import it directly into
// your Go application and route calls to it from whatever transport you
// run. It provides:
//
//   - Operator-defined plans with immutable price/duration and a
//     toggleable active flag
//   - Per-account subscriptions with payment-gated access windows,
//     stacking renewals and a grace-renewal path for lapsed windows
//   - Lazy expiry: entitlement is a pure function of stored timestamps
//     and the caller-supplied clock; no background sweep ever mutates
//     state
//   - Exact monetary accounting in integer minimum units: revenue
//     accrual, balance custody, overpayment refunds, owner withdrawal
//   - A structured notification feed plus a plugin hook surface for
//     audit and metrics consumers
//
// # Quick Start
//
// Create an engine instance with your preferred store:
//
//	import (
//	    "github.com/xraph/recur"
//	    "github.com/xraph/recur/store/memory"
//	)
//
//	eng := recur.New(memory.New(),
//	    recur.WithOwner("op_7f3a"),
//	    recur.WithTransferor(payouts),
//	)
//
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Core Concepts
//
// Plans define what an operator sells: a price in the smallest currency
// unit and a duration of access per payment. Plan IDs are sequential
// 1-based integers, never reused; attributes other than the active flag
// are immutable after creation.
//
//	p := &plan.Plan{
//	    Name:     "Pro",
//	    Price:    recur.USD(100),
//	    Duration: 1000 * time.Second,
//	}
//	err := eng.CreatePlan(recur.WithCaller(ctx, owner), p)
//
// Subscriptions connect accounts to plans. The caller identity and the
// current time travel in the context; the attached payment is explicit:
//
//	ctx = recur.WithCaller(ctx, "acct_9b21")
//	sub, err := eng.Subscribe(ctx, p.ID, recur.USD(150)) // 50 refunded
//
// Entitlement is the conjunction "active flag set AND now before
// EndTime"; cancellation revokes immediately, expiry is computed on
// demand:
//
//	ok, err := eng.Entitled(ctx, "acct_9b21")
//
// # Atomicity
//
// Every mutating operation either fully commits or fully aborts. The
// engine serializes mutations into a single global order and sequences
// outgoing transfers (refunds, withdrawals) before any state commit, so
// a failed transfer rejects the call with prior state untouched.
//
// All monetary calculations use integer arithmetic to avoid
// floating-point precision issues. The Money type represents amounts in
// the smallest currency unit (cents for USD, pence for GBP, etc).
//
// # Stores
//
// State lives behind the store.Store interface: store/memory for tests
// and single-process use, store/sqlite and store/postgres via the Grove
// ORM, store/mongo via the official MongoDB driver. Subscription records
// and feed events use TypeID identifiers:
//
//	sub_01h2xcejqtf2nbrexx3vqjhp41  // Subscription record
//	evt_01h455vb4pex5vsknk084sn02q  // Feed event
//
// TypeIDs are K-sortable, so the event feed's ID order is its emission
// order.
package recur
