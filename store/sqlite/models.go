package sqlite

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/recur/event"
	"github.com/xraph/recur/id"
	"github.com/xraph/recur/plan"
	"github.com/xraph/recur/subscription"
	"github.com/xraph/recur/types"
)

// ==================== Plan models ====================

type planModel struct {
	grove.BaseModel `grove:"table:recur_plans"`

	ID            uint64    `grove:"id,pk"`
	Name          string    `grove:"name"`
	Description   string    `grove:"description"`
	PriceAmount   int64     `grove:"price_amount"`
	PriceCurrency string    `grove:"price_currency"`
	DurationSecs  int64     `grove:"duration_secs"`
	Active        bool      `grove:"active"`
	CreatedAt     time.Time `grove:"created_at"`
	UpdatedAt     time.Time `grove:"updated_at"`
}

func toPlanModel(p *plan.Plan) *planModel {
	return &planModel{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		PriceAmount:   p.Price.Amount,
		PriceCurrency: p.Price.Currency,
		DurationSecs:  int64(p.Duration / time.Second),
		Active:        p.Active,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func fromPlanModel(m *planModel) *plan.Plan {
	return &plan.Plan{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Price:       types.Money{Amount: m.PriceAmount, Currency: m.PriceCurrency},
		Duration:    time.Duration(m.DurationSecs) * time.Second,
		Active:      m.Active,
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
	}
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:recur_subscriptions"`

	Account      string    `grove:"account,pk"`
	ID           string    `grove:"id"`
	PlanID       uint64    `grove:"plan_id"`
	StartTime    time.Time `grove:"start_time"`
	EndTime      time.Time `grove:"end_time"`
	Active       bool      `grove:"active"`
	RenewalCount uint64    `grove:"renewal_count"`
	CreatedAt    time.Time `grove:"created_at"`
	UpdatedAt    time.Time `grove:"updated_at"`
}

func toSubscriptionModel(sub *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		Account:      sub.Account.String(),
		ID:           sub.ID.String(),
		PlanID:       sub.PlanID,
		StartTime:    sub.StartTime,
		EndTime:      sub.EndTime,
		Active:       sub.Active,
		RenewalCount: sub.RenewalCount,
		CreatedAt:    sub.CreatedAt,
		UpdatedAt:    sub.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}
	return &subscription.Subscription{
		ID:           subID,
		Account:      types.Address(m.Account),
		PlanID:       m.PlanID,
		StartTime:    m.StartTime,
		EndTime:      m.EndTime,
		Active:       m.Active,
		RenewalCount: m.RenewalCount,
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
	}, nil
}

// ==================== Registry models ====================

type registryModel struct {
	grove.BaseModel `grove:"table:recur_registry"`

	Seq     int64  `grove:"seq,pk,autoincrement"`
	Account string `grove:"account"`
}

// registryInsert carries only the account column so inserts leave seq
// to the table's AUTOINCREMENT.
type registryInsert struct {
	grove.BaseModel `grove:"table:recur_registry"`

	Account string `grove:"account"`
}

// ==================== Ledger globals ====================

// ledgerModel is the single-row table holding the ledger globals. The
// migration seeds row id=1 so reads never miss.
type ledgerModel struct {
	grove.BaseModel `grove:"table:recur_ledger"`

	ID           int64  `grove:"id,pk"`
	Owner        string `grove:"owner"`
	TotalRevenue int64  `grove:"total_revenue"`
	Balance      int64  `grove:"balance"`
}

// ==================== Event models ====================

type eventModel struct {
	grove.BaseModel `grove:"table:recur_events"`

	ID             string    `grove:"id,pk"`
	Kind           string    `grove:"kind"`
	Account        string    `grove:"account"`
	PlanID         uint64    `grove:"plan_id"`
	AmountValue    int64     `grove:"amount_value"`
	AmountCurrency string    `grove:"amount_currency"`
	EndTime        time.Time `grove:"end_time"`
	Timestamp      time.Time `grove:"timestamp"`
}

func toEventModel(e *event.Event) *eventModel {
	return &eventModel{
		ID:             e.ID.String(),
		Kind:           string(e.Kind),
		Account:        e.Account.String(),
		PlanID:         e.PlanID,
		AmountValue:    e.Amount.Amount,
		AmountCurrency: e.Amount.Currency,
		EndTime:        e.EndTime,
		Timestamp:      e.Timestamp,
	}
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	evtID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, err
	}
	return &event.Event{
		ID:        evtID,
		Kind:      event.Kind(m.Kind),
		Account:   types.Address(m.Account),
		PlanID:    m.PlanID,
		Amount:    types.Money{Amount: m.AmountValue, Currency: m.AmountCurrency},
		EndTime:   m.EndTime,
		Timestamp: m.Timestamp,
	}, nil
}
