package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	recur "github.com/xraph/recur"
	"github.com/xraph/recur/event"
	"github.com/xraph/recur/plan"
	recurstore "github.com/xraph/recur/store"
	"github.com/xraph/recur/subscription"
	"github.com/xraph/recur/types"
)

// compile-time interface check
var _ recurstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("recur/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("recur/postgres: migration failed: %w", err)
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
	// Plans are never deleted, so MAX(id)+1 is the next sequential ID.
	// The engine holds its operation lock across this read and insert.
	var next uint64
	err := s.pg.NewRaw(`SELECT COALESCE(MAX(id), 0) + 1 FROM recur_plans`).Scan(ctx, &next)
	if err != nil {
		return fmt.Errorf("recur/postgres: next plan id: %w", err)
	}
	p.ID = next

	m := toPlanModel(p)
	if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("recur/postgres: create plan: %w", err)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, planID uint64) (*plan.Plan, error) {
	m := new(planModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", planID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, recur.ErrPlanNotFound
		}
		return nil, fmt.Errorf("recur/postgres: get plan: %w", err)
	}
	return fromPlanModel(m), nil
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	var models []planModel
	q := s.pg.NewSelect(&models)

	if opts.ActiveOnly {
		q = q.Where("active = $1", true)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("recur/postgres: list plans: %w", err)
	}

	result := make([]*plan.Plan, len(models))
	for i := range models {
		result[i] = fromPlanModel(&models[i])
	}
	return result, nil
}

func (s *Store) SetPlanActive(ctx context.Context, planID uint64, active bool, at time.Time) error {
	res, err := s.pg.NewUpdate((*planModel)(nil)).
		Set("active = $1", active).
		Set("updated_at = $2", at).
		Where("id = $3", planID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("recur/postgres: set plan active: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("recur/postgres: set plan active: %w", err)
	}
	if rows == 0 {
		return recur.ErrPlanNotFound
	}
	return nil
}

// ==================== Subscription Store ====================

func (s *Store) GetSubscription(ctx context.Context, account types.Address) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.pg.NewSelect(m).
		Where("account = $1", account.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, recur.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("recur/postgres: get subscription: %w", err)
	}
	return fromSubscriptionModel(m)
}

func (s *Store) PutSubscription(ctx context.Context, sub *subscription.Subscription) error {
	if err := s.upsertSubscription(ctx, sub); err != nil {
		return fmt.Errorf("recur/postgres: put subscription: %w", err)
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
		return fmt.Errorf("recur/postgres: commit purchase: %w", err)
	}

	_, err := s.pg.NewUpdate((*ledgerModel)(nil)).
		Set("total_revenue = total_revenue + $1", price).
		Set("balance = balance + $2", price).
		Where("id = $3", 1).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("recur/postgres: commit purchase: accrue: %w", err)
	}

	_, err = s.pg.NewInsert(&registryInsert{Account: sub.Account.String()}).
		OnConflict("(account) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("recur/postgres: commit purchase: register: %w", err)
	}
	return nil
}

func (s *Store) upsertSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	_, err := s.pg.NewInsert(m).
		OnConflict("(account) DO UPDATE").
		Set("id = EXCLUDED.id").
		Set("plan_id = EXCLUDED.plan_id").
		Set("start_time = EXCLUDED.start_time").
		Set("end_time = EXCLUDED.end_time").
		Set("active = EXCLUDED.active").
		Set("renewal_count = EXCLUDED.renewal_count").
		Set("created_at = EXCLUDED.created_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// ==================== Subscriber registry ====================

func (s *Store) ListSubscribers(ctx context.Context) ([]types.Address, error) {
	var models []registryModel
	err := s.pg.NewSelect(&models).
		OrderExpr("seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("recur/postgres: list subscribers: %w", err)
	}

	result := make([]types.Address, len(models))
	for i := range models {
		result[i] = types.Address(models[i].Account)
	}
	return result, nil
}

// ==================== Ledger globals ====================

func (s *Store) Owner(ctx context.Context) (types.Address, error) {
	m, err := s.ledgerRow(ctx)
	if err != nil {
		return types.ZeroAddress, err
	}
	return types.Address(m.Owner), nil
}

func (s *Store) SetOwner(ctx context.Context, owner types.Address) error {
	_, err := s.pg.NewUpdate((*ledgerModel)(nil)).
		Set("owner = $1", owner.String()).
		Where("id = $2", 1).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("recur/postgres: set owner: %w", err)
	}
	return nil
}

func (s *Store) TotalRevenue(ctx context.Context) (int64, error) {
	m, err := s.ledgerRow(ctx)
	if err != nil {
		return 0, err
	}
	return m.TotalRevenue, nil
}

func (s *Store) Balance(ctx context.Context) (int64, error) {
	m, err := s.ledgerRow(ctx)
	if err != nil {
		return 0, err
	}
	return m.Balance, nil
}

func (s *Store) SettleWithdrawal(ctx context.Context, amount int64) error {
	res, err := s.pg.NewUpdate((*ledgerModel)(nil)).
		Set("balance = balance - $1", amount).
		Where("id = $2", 1).
		Where("balance >= $3", amount).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("recur/postgres: settle withdrawal: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("recur/postgres: settle withdrawal: %w", err)
	}
	if rows == 0 {
		return recur.ErrNothingToWithdraw
	}
	return nil
}

func (s *Store) ledgerRow(ctx context.Context) (*ledgerModel, error) {
	m := new(ledgerModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", 1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, recur.ErrStoreNotReady
		}
		return nil, fmt.Errorf("recur/postgres: read ledger row: %w", err)
	}
	return m, nil
}

// ==================== Event Store ====================

func (s *Store) AppendEvent(ctx context.Context, evt *event.Event) error {
	m := toEventModel(evt)
	if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("recur/postgres: append event: %w", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Kind != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("kind = $%d", argIdx), string(opts.Kind))
	}
	if !opts.Account.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("account = $%d", argIdx), opts.Account.String())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("timestamp ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("recur/postgres: list events: %w", err)
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

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

