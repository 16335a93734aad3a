package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	recur "github.com/xraph/recur"
	"github.com/xraph/recur/event"
	"github.com/xraph/recur/plan"
	recurstore "github.com/xraph/recur/store"
	"github.com/xraph/recur/subscription"
	"github.com/xraph/recur/types"
)

// Collection name constants.
const (
	colPlans         = "recur_plans"
	colSubscriptions = "recur_subscriptions"
	colRegistry      = "recur_registry"
	colLedger        = "recur_ledger"
	colEvents        = "recur_events"
)

// ledgerDocID is the fixed _id of the single globals document.
const ledgerDocID = "ledger"

// compile-time interface check
var _ recurstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all collections and seeds the globals
// document.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("recur/mongo: migrate %s indexes: %w", col, err)
		}
	}

	_, err := s.mdb.NewUpdate((*ledgerModel)(nil)).
		Filter(bson.M{"_id": ledgerDocID}).
		SetUpdate(bson.M{"$setOnInsert": bson.M{
			"_id":           ledgerDocID,
			"owner":         "",
			"total_revenue": int64(0),
			"balance":       int64(0),
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("recur/mongo: seed ledger document: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	// Plans are never deleted, so the highest _id plus one is the next
	// sequential ID. The engine holds its operation lock across this
	// read and insert.
	var last planModel
	err := s.mdb.NewFind(&last).
		Sort(bson.D{{Key: "_id", Value: -1}}).
		Limit(1).
		Scan(ctx)
	switch {
	case err == nil:
		p.ID = last.ID + 1
	case isNoDocuments(err):
		p.ID = 1
	default:
		return fmt.Errorf("recur/mongo: next plan id: %w", err)
	}

	m := toPlanModel(p)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("recur/mongo: create plan: %w", err)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, planID uint64) (*plan.Plan, error) {
	var m planModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": planID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, recur.ErrPlanNotFound
		}
		return nil, fmt.Errorf("recur/mongo: get plan: %w", err)
	}
	return fromPlanModel(&m), nil
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	var models []planModel
	q := s.mdb.NewFind(&models).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.ActiveOnly {
		q = q.Filter(bson.M{"active": true})
	}
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("recur/mongo: list plans: %w", err)
	}

	result := make([]*plan.Plan, len(models))
	for i := range models {
		result[i] = fromPlanModel(&models[i])
	}
	return result, nil
}

func (s *Store) SetPlanActive(ctx context.Context, planID uint64, active bool, at time.Time) error {
	res, err := s.mdb.NewUpdate((*planModel)(nil)).
		Filter(bson.M{"_id": planID}).
		Set("active", active).
		Set("updated_at", at).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("recur/mongo: set plan active: %w", err)
	}
	if res.MatchedCount() == 0 {
		return recur.ErrPlanNotFound
	}
	return nil
}

// ==================== Subscription Store ====================

func (s *Store) GetSubscription(ctx context.Context, account types.Address) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": account.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, recur.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("recur/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) PutSubscription(ctx context.Context, sub *subscription.Subscription) error {
	if err := s.upsertSubscription(ctx, sub); err != nil {
		return fmt.Errorf("recur/mongo: put subscription: %w", err)
	}
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	// Enumeration follows the registry's insertion order, same as the
	// memory store.
	accounts, err := s.ListSubscribers(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*subscription.Subscription, 0, len(accounts))
	for _, account := range accounts {
		sub, err := s.GetSubscription(ctx, account)
		if err != nil {
			if errors.Is(err, recur.ErrSubscriptionNotFound) {
				continue
			}
			return nil, err
		}
		if opts.PlanID != 0 && sub.PlanID != opts.PlanID {
			continue
		}
		result = append(result, sub)
	}
	return result, nil
}

func (s *Store) CommitPurchase(ctx context.Context, sub *subscription.Subscription, price int64) error {
	if err := s.upsertSubscription(ctx, sub); err != nil {
		return fmt.Errorf("recur/mongo: commit purchase: %w", err)
	}

	_, err := s.mdb.NewUpdate((*ledgerModel)(nil)).
		Filter(bson.M{"_id": ledgerDocID}).
		SetUpdate(bson.M{"$inc": bson.M{
			"total_revenue": price,
			"balance":       price,
		}}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("recur/mongo: commit purchase: accrue: %w", err)
	}

	if err := s.addToRegistry(ctx, sub.Account); err != nil {
		return fmt.Errorf("recur/mongo: commit purchase: register: %w", err)
	}
	return nil
}

func (s *Store) upsertSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.Account}).
		SetUpdate(bson.M{"$set": bson.M{
			"_id":           m.Account,
			"id":            m.ID,
			"plan_id":       m.PlanID,
			"start_time":    m.StartTime,
			"end_time":      m.EndTime,
			"active":        m.Active,
			"renewal_count": m.RenewalCount,
			"created_at":    m.CreatedAt,
			"updated_at":    m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	return err
}

// ==================== Subscriber registry ====================

// addToRegistry records a first-time subscriber. The seq field carries
// the insertion order; $setOnInsert leaves existing entries untouched
// so re-subscribing never reorders the registry.
func (s *Store) addToRegistry(ctx context.Context, account types.Address) error {
	_, err := s.mdb.NewUpdate((*registryModel)(nil)).
		Filter(bson.M{"_id": account.String()}).
		SetUpdate(bson.M{"$setOnInsert": bson.M{
			"_id": account.String(),
			"seq": time.Now().UTC().UnixNano(),
		}}).
		Upsert().
		Exec(ctx)
	return err
}

func (s *Store) ListSubscribers(ctx context.Context) ([]types.Address, error) {
	var models []registryModel
	err := s.mdb.NewFind(&models).
		Sort(bson.D{{Key: "seq", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("recur/mongo: list subscribers: %w", err)
	}

	result := make([]types.Address, len(models))
	for i := range models {
		result[i] = types.Address(models[i].Account)
	}
	return result, nil
}

// ==================== Ledger globals ====================

func (s *Store) Owner(ctx context.Context) (types.Address, error) {
	m, err := s.ledgerDoc(ctx)
	if err != nil {
		return types.ZeroAddress, err
	}
	return types.Address(m.Owner), nil
}

func (s *Store) SetOwner(ctx context.Context, owner types.Address) error {
	_, err := s.mdb.NewUpdate((*ledgerModel)(nil)).
		Filter(bson.M{"_id": ledgerDocID}).
		Set("owner", owner.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("recur/mongo: set owner: %w", err)
	}
	return nil
}

func (s *Store) TotalRevenue(ctx context.Context) (int64, error) {
	m, err := s.ledgerDoc(ctx)
	if err != nil {
		return 0, err
	}
	return m.TotalRevenue, nil
}

func (s *Store) Balance(ctx context.Context) (int64, error) {
	m, err := s.ledgerDoc(ctx)
	if err != nil {
		return 0, err
	}
	return m.Balance, nil
}

func (s *Store) SettleWithdrawal(ctx context.Context, amount int64) error {
	res, err := s.mdb.NewUpdate((*ledgerModel)(nil)).
		Filter(bson.M{
			"_id":     ledgerDocID,
			"balance": bson.M{"$gte": amount},
		}).
		SetUpdate(bson.M{"$inc": bson.M{"balance": -amount}}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("recur/mongo: settle withdrawal: %w", err)
	}
	if res.MatchedCount() == 0 {
		return recur.ErrNothingToWithdraw
	}
	return nil
}

func (s *Store) ledgerDoc(ctx context.Context) (*ledgerModel, error) {
	var m ledgerModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": ledgerDocID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, recur.ErrStoreNotReady
		}
		return nil, fmt.Errorf("recur/mongo: read ledger document: %w", err)
	}
	return &m, nil
}

// ==================== Event Store ====================

func (s *Store) AppendEvent(ctx context.Context, evt *event.Event) error {
	m := toEventModel(evt)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("recur/mongo: append event: %w", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	filter := bson.M{}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}
	if !opts.Account.IsZero() {
		filter["account"] = opts.Account.String()
	}

	var models []eventModel
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("recur/mongo: list events: %w", err)
	}

	result := make([]*event.Event, len(models))
	for i := range models {
		evt, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = evt
	}
	return result, nil
}

// ==================== helpers ====================

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}


// migrationIndexes returns the index definitions for all collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colPlans: {
			{Keys: bson.D{{Key: "active", Value: 1}}},
		},
		colSubscriptions: {
			{Keys: bson.D{{Key: "plan_id", Value: 1}}},
			{Keys: bson.D{{Key: "end_time", Value: 1}}},
		},
		colRegistry: {
			{
				Keys:    bson.D{{Key: "seq", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colLedger: {},
		colEvents: {
			{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "timestamp", Value: 1}}},
			{Keys: bson.D{{Key: "account", Value: 1}, {Key: "timestamp", Value: 1}}},
			{Keys: bson.D{{Key: "timestamp", Value: 1}}},
		},
	}
}
