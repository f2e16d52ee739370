// Package exchange is the matching engine: it walks the price-time index for
// a bid's opposite book and turns the first crossing pair into a trade.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xtrntr/resale/internal/clock"
	"github.com/xtrntr/resale/internal/lock"
	"github.com/xtrntr/resale/internal/models"
	"github.com/xtrntr/resale/internal/orderbook"
	"github.com/xtrntr/resale/internal/txn"
)

// Store is the persistence the matcher needs
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetBid(ctx context.Context, id int64) (models.Bid, error)
	GetProductOption(ctx context.Context, id int64) (models.ProductOption, error)
	LockBids(ctx context.Context, ids ...int64) (map[int64]models.Bid, error)
	SetBidStatus(ctx context.Context, id, version int64, status models.BidStatus, at time.Time) (models.Bid, error)
	CreateTrade(ctx context.Context, trade models.Trade) (models.Trade, error)
	HasCancelledTrade(ctx context.Context, purchaseBidID, saleBidID int64) (bool, error)
	EnqueueEvent(ctx context.Context, e models.Event) error
	ListPendingBids(ctx context.Context, now time.Time) ([]models.Bid, error)
}

// StaleBidError reports a bid whose stored state no longer supports a match
type StaleBidError struct {
	BidID int64
}

func (e *StaleBidError) Error() string {
	return fmt.Sprintf("bid %d is no longer matchable", e.BidID)
}

// repricedError reports a candidate whose index entry lags its stored terms
type repricedError struct {
	bid models.Bid
}

func (e *repricedError) Error() string {
	return fmt.Sprintf("bid %d index entry is out of date", e.bid.ID)
}

var errExcludedPair = errors.New("pair already traded and cancelled")

const defaultMaxAttempts = 64

// Matcher pairs bids under the per-option lock
type Matcher struct {
	store       Store
	index       orderbook.Index
	locks       *lock.Manager
	clock       clock.Clock
	log         *zap.Logger
	matchLock   lock.Options
	sweepLock   lock.Options
	maxAttempts int
}

// Option configures a Matcher
type Option func(*Matcher)

// WithClock sets the time source used for expiry and timestamps
func WithClock(c clock.Clock) Option {
	return func(m *Matcher) { m.clock = c }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(m *Matcher) { m.log = l }
}

// WithLockOptions overrides the match and sweep lock budgets
func WithLockOptions(match, sweep lock.Options) Option {
	return func(m *Matcher) {
		m.matchLock = match
		m.sweepLock = sweep
	}
}

// WithMaxAttempts caps the index entries one match walks before giving up
func WithMaxAttempts(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// NewMatcher creates a matcher
func NewMatcher(store Store, index orderbook.Index, locks *lock.Manager, opts ...Option) *Matcher {
	m := &Matcher{
		store:       store,
		index:       index,
		locks:       locks,
		clock:       clock.NewSystem(),
		log:         zap.NewNop(),
		matchLock:   lock.MatchOptions,
		sweepLock:   lock.SweepOptions,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match tries to pair bidID with the best eligible resting bid on the
// opposite side. It returns the trade, or nil when the bid rests or is no
// longer matchable. At most one trade is created per call.
func (m *Matcher) Match(ctx context.Context, bidID int64) (*models.Trade, error) {
	bid, err := m.store.GetBid(ctx, bidID)
	if err != nil {
		if errors.Is(err, models.ErrBidNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load bid %d: %w", bidID, err)
	}
	if !bid.Matchable(m.clock.Now()) {
		return nil, nil
	}

	var trade *models.Trade
	err = m.locks.WithLock(ctx, lock.OptionKey(bid.ProductOptionID), m.matchLock, func(ctx context.Context) error {
		var err error
		trade, err = m.matchLocked(ctx, bid.ProductOptionID, bidID)
		return err
	})
	return trade, err
}

// matchLocked runs with the option lock held
func (m *Matcher) matchLocked(ctx context.Context, optionID, bidID int64) (*models.Trade, error) {
	bid, err := m.store.GetBid(ctx, bidID)
	if err != nil {
		if errors.Is(err, models.ErrBidNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to reload bid %d: %w", bidID, err)
	}
	if !bid.Matchable(m.clock.Now()) || bid.ProductOptionID != optionID {
		return nil, nil
	}

	opposite := bid.Side.Opposite()
	skip := 0
	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		entry, ok, err := m.index.PeekAt(ctx, optionID, opposite, skip)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s book of option %d: %w", opposite, optionID, err)
		}
		if !ok || !crosses(bid, entry.Price) {
			return nil, nil
		}

		trade, err := m.execute(ctx, bid, entry)
		if err == nil {
			return &trade, nil
		}

		var (
			stale    *StaleBidError
			repriced *repricedError
		)
		switch {
		case errors.As(err, &stale) && stale.BidID == bid.ID:
			m.log.Debug("aggressor changed during match", zap.Int64("bid_id", bid.ID))
			return nil, nil
		case errors.As(err, &stale):
			m.log.Debug("dropped stale entry", zap.Int64("bid_id", stale.BidID))
		case errors.As(err, &repriced):
			m.log.Debug("resynced repriced entry", zap.Int64("bid_id", repriced.bid.ID))
		case errors.Is(err, errExcludedPair):
			skip++
		default:
			return nil, err
		}
	}

	m.log.Warn("match attempts exhausted", zap.Int64("bid_id", bid.ID), zap.Int("attempts", m.maxAttempts))
	return nil, nil
}

// crosses reports whether bid is willing to trade at the resting price
func crosses(bid models.Bid, resting int64) bool {
	if bid.Side == models.SideBuy {
		return bid.Price >= resting
	}
	return bid.Price <= resting
}

// execute re-checks both bids under row locks and records the trade at the
// resting bid's price
func (m *Matcher) execute(ctx context.Context, aggressor models.Bid, entry orderbook.Entry) (models.Trade, error) {
	var trade models.Trade
	optionID := aggressor.ProductOptionID
	opposite := aggressor.Side.Opposite()

	err := m.store.WithTx(ctx, func(ctx context.Context) error {
		now := m.clock.Now()
		bids, err := m.store.LockBids(ctx, aggressor.ID, entry.BidID)
		if err != nil {
			return err
		}

		a, ok := bids[aggressor.ID]
		if !ok || !a.Matchable(now) || a.Version != aggressor.Version {
			return &StaleBidError{BidID: aggressor.ID}
		}
		c, ok := bids[entry.BidID]
		if !ok || !c.Matchable(now) || c.ProductOptionID != optionID || c.Side != opposite {
			if err := m.index.Remove(ctx, optionID, opposite, entry.BidID); err != nil {
				return fmt.Errorf("failed to drop stale bid %d: %w", entry.BidID, err)
			}
			return &StaleBidError{BidID: entry.BidID}
		}
		if c.Price != entry.Price || c.Seq != entry.Seq {
			if err := m.index.Insert(ctx, optionID, opposite, orderbook.EntryOf(c)); err != nil {
				return fmt.Errorf("failed to resync bid %d: %w", c.ID, err)
			}
			return &repricedError{bid: c}
		}

		buy, sell := a, c
		if a.Side == models.SideSell {
			buy, sell = c, a
		}
		excluded, err := m.store.HasCancelledTrade(ctx, buy.ID, sell.ID)
		if err != nil {
			return err
		}
		if excluded {
			return errExcludedPair
		}

		if _, err := m.store.SetBidStatus(ctx, a.ID, a.Version, models.BidMatched, now); err != nil {
			return err
		}
		if _, err := m.store.SetBidStatus(ctx, c.ID, c.Version, models.BidMatched, now); err != nil {
			return err
		}

		trade, err = m.store.CreateTrade(ctx, models.Trade{
			PurchaseBidID: buy.ID,
			SaleBidID:     sell.ID,
			Price:         c.Price,
			Status:        models.TradeWaitingPayment,
			CreatedAt:     now,
		})
		if err != nil {
			return err
		}

		option, err := m.store.GetProductOption(ctx, optionID)
		if err != nil {
			return err
		}
		event, err := models.NewEvent(models.EventTradeMatched, trade.ID, models.TradeMatched{
			TradeID:         trade.ID,
			BuyerID:         buy.UserID,
			SellerID:        sell.UserID,
			SettlementPrice: trade.Price,
			ProductOption:   option.Descriptor(),
		}, now)
		if err != nil {
			return err
		}
		if err := m.store.EnqueueEvent(ctx, event); err != nil {
			return err
		}

		if err := m.unindex(ctx, a); err != nil {
			return err
		}
		return m.unindex(ctx, c)
	})
	if err != nil {
		return models.Trade{}, err
	}

	m.log.Info("trade created",
		zap.Int64("trade_id", trade.ID),
		zap.Int64("purchase_bid_id", trade.PurchaseBidID),
		zap.Int64("sale_bid_id", trade.SaleBidID),
		zap.Int64("price", trade.Price))
	return trade, nil
}

// unindex drops a matched bid's entry inside the transaction and restores it
// if the transaction does not commit
func (m *Matcher) unindex(ctx context.Context, b models.Bid) error {
	if err := m.index.Remove(ctx, b.ProductOptionID, b.Side, b.ID); err != nil {
		return fmt.Errorf("failed to remove bid %d from index: %w", b.ID, err)
	}
	txn.OnRollback(ctx, func(ctx context.Context) {
		if err := m.index.Insert(ctx, b.ProductOptionID, b.Side, orderbook.EntryOf(b)); err != nil {
			m.log.Error("failed to restore index entry", zap.Int64("bid_id", b.ID), zap.Error(err))
		}
	})
	return nil
}
