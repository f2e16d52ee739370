// Package service orchestrates the bid and trade lifecycles: validation,
// locking, the store transaction, index maintenance and match scheduling.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xtrntr/resale/internal/clock"
	"github.com/xtrntr/resale/internal/lock"
	"github.com/xtrntr/resale/internal/models"
	"github.com/xtrntr/resale/internal/orderbook"
	"github.com/xtrntr/resale/internal/txn"
)

// Store is the persistence both services need
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	GetUser(ctx context.Context, id int64) (models.User, error)
	SuspendUser(ctx context.Context, id int64, until time.Time) error
	GetProductOption(ctx context.Context, id int64) (models.ProductOption, error)

	CreateBid(ctx context.Context, bid models.Bid) (models.Bid, error)
	GetBid(ctx context.Context, id int64) (models.Bid, error)
	GetBidForUpdate(ctx context.Context, id int64) (models.Bid, error)
	LockBids(ctx context.Context, ids ...int64) (map[int64]models.Bid, error)
	UpdateBidTerms(ctx context.Context, bid models.Bid) (models.Bid, error)
	SetBidStatus(ctx context.Context, id, version int64, status models.BidStatus, at time.Time) (models.Bid, error)
	AdminCancelBid(ctx context.Context, id, version, adminID int64, reason models.CancelReason, comment string, at time.Time) (models.Bid, error)
	ListBids(ctx context.Context, f models.BidFilter) (models.Page[models.BidView], error)

	GetTrade(ctx context.Context, id int64) (models.Trade, error)
	GetTradeForUpdate(ctx context.Context, id int64) (models.Trade, error)
	UpdateTradeStatus(ctx context.Context, id int64, from, to models.TradeStatus, at time.Time) (models.Trade, error)
	ListTrades(ctx context.Context, f models.TradeFilter) (models.Page[models.TradeView], error)

	EnqueueEvent(ctx context.Context, e models.Event) error
}

// Scheduler queues a bid for matching once its transaction has committed
type Scheduler interface {
	Schedule(bidID int64)
}

// LockPolicy holds the wait and hold budgets of each workflow
type LockPolicy struct {
	Register    lock.Options
	Update      lock.Options
	Cancel      lock.Options
	TradeCancel lock.Options
}

// DefaultLockPolicy is the policy used when none is configured
var DefaultLockPolicy = LockPolicy{
	Register:    lock.RegisterOptions,
	Update:      lock.UpdateOptions,
	Cancel:      lock.CancelOptions,
	TradeCancel: lock.TradeCancelOptions,
}

// DefaultPenalty is how long a trade canceller may not register bids
const DefaultPenalty = 72 * time.Hour

type deps struct {
	store     Store
	index     orderbook.Index
	locks     *lock.Manager
	scheduler Scheduler
	clock     clock.Clock
	log       *zap.Logger
	policy    LockPolicy
	bidTTL    time.Duration
	penalty   time.Duration
}

// Option configures a service
type Option func(*deps)

// WithClock sets the time source
func WithClock(c clock.Clock) Option { return func(d *deps) { d.clock = c } }

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option { return func(d *deps) { d.log = l } }

// WithLockPolicy overrides the lock budgets
func WithLockPolicy(p LockPolicy) Option { return func(d *deps) { d.policy = p } }

// WithBidTTL sets how long new bids rest before they expire
func WithBidTTL(ttl time.Duration) Option {
	return func(d *deps) {
		if ttl > 0 {
			d.bidTTL = ttl
		}
	}
}

// WithPenalty sets the bidding suspension applied to trade cancellers
func WithPenalty(p time.Duration) Option {
	return func(d *deps) {
		if p > 0 {
			d.penalty = p
		}
	}
}

func newDeps(store Store, index orderbook.Index, locks *lock.Manager, scheduler Scheduler, opts []Option) deps {
	d := deps{
		store:     store,
		index:     index,
		locks:     locks,
		scheduler: scheduler,
		clock:     clock.NewSystem(),
		log:       zap.NewNop(),
		policy:    DefaultLockPolicy,
		bidTTL:    models.DefaultBidTTL,
		penalty:   DefaultPenalty,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// indexInsert adds an entry and undoes it if the transaction rolls back
func (d *deps) indexInsert(ctx context.Context, b models.Bid) error {
	if err := d.index.Insert(ctx, b.ProductOptionID, b.Side, orderbook.EntryOf(b)); err != nil {
		return err
	}
	txn.OnRollback(ctx, func(ctx context.Context) {
		if err := d.index.Remove(ctx, b.ProductOptionID, b.Side, b.ID); err != nil {
			d.log.Error("failed to undo index insert", zap.Int64("bid_id", b.ID), zap.Error(err))
		}
	})
	return nil
}

// indexRemove drops an entry and restores it if the transaction rolls back
func (d *deps) indexRemove(ctx context.Context, b models.Bid) error {
	if err := d.index.Remove(ctx, b.ProductOptionID, b.Side, b.ID); err != nil {
		return err
	}
	txn.OnRollback(ctx, func(ctx context.Context) {
		if err := d.index.Insert(ctx, b.ProductOptionID, b.Side, orderbook.EntryOf(b)); err != nil {
			d.log.Error("failed to undo index removal", zap.Int64("bid_id", b.ID), zap.Error(err))
		}
	})
	return nil
}

func (d *deps) scheduleAfterCommit(ctx context.Context, bidIDs ...int64) {
	txn.AfterCommit(ctx, func(context.Context) {
		for _, id := range bidIDs {
			d.scheduler.Schedule(id)
		}
	})
}
