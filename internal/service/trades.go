package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/xtrntr/resale/internal/lock"
	"github.com/xtrntr/resale/internal/models"
	"github.com/xtrntr/resale/internal/orderbook"
)

// TradeService runs the post-match trade lifecycle
type TradeService struct {
	deps
}

// NewTradeService creates a trade service
func NewTradeService(store Store, index orderbook.Index, locks *lock.Manager, scheduler Scheduler, opts ...Option) *TradeService {
	return &TradeService{deps: newDeps(store, index, locks, scheduler, opts)}
}

// Cancel undoes a trade that is still awaiting payment. Both bids return to
// PENDING with their original time priority, the canceller is suspended from
// bidding for the penalty period and both bids are queued for matching.
//
// The bids re-enter their option's books, so the work runs under that
// option's lock as well as the trade's. Locks are always taken trade first.
func (s *TradeService) Cancel(ctx context.Context, userID, tradeID int64) (models.Trade, error) {
	var (
		trade        models.Trade
		counterparty int64
	)
	err := s.locks.WithLock(ctx, lock.TradeKey(tradeID), s.policy.TradeCancel, func(ctx context.Context) error {
		optionID, err := s.tradeOption(ctx, tradeID)
		if err != nil {
			return err
		}
		return s.locks.WithLock(ctx, lock.OptionKey(optionID), s.policy.TradeCancel, func(ctx context.Context) error {
			return s.store.WithTx(ctx, func(ctx context.Context) error {
				now := s.clock.Now()
				cur, err := s.store.GetTradeForUpdate(ctx, tradeID)
				if err != nil {
					return err
				}
				bids, err := s.store.LockBids(ctx, cur.PurchaseBidID, cur.SaleBidID)
				if err != nil {
					return err
				}
				buy, okBuy := bids[cur.PurchaseBidID]
				sell, okSell := bids[cur.SaleBidID]
				if !okBuy || !okSell {
					return models.ErrBidNotFound
				}

				switch userID {
				case buy.UserID:
					counterparty = sell.UserID
				case sell.UserID:
					counterparty = buy.UserID
				default:
					return models.ErrNotYourTrade
				}
				if cur.Status != models.TradeWaitingPayment {
					return models.ErrTradeNotCancellable
				}
				if buy.Status != models.BidMatched || sell.Status != models.BidMatched {
					return models.ErrBidNotMatched
				}

				for _, b := range []models.Bid{buy, sell} {
					reverted, err := s.store.SetBidStatus(ctx, b.ID, b.Version, models.BidPending, now)
					if err != nil {
						return err
					}
					if err := s.indexInsert(ctx, reverted); err != nil {
						return err
					}
				}

				trade, err = s.store.UpdateTradeStatus(ctx, cur.ID, models.TradeWaitingPayment, models.TradePaymentCanceled, now)
				if err != nil {
					return err
				}
				if err := s.store.SuspendUser(ctx, userID, now.Add(s.penalty)); err != nil {
					return err
				}

				event, err := models.NewEvent(models.EventTradeCancelled, trade.ID, models.TradeCancelled{
					TradeID:            trade.ID,
					CancellingUserID:   userID,
					CounterpartyUserID: counterparty,
				}, now)
				if err != nil {
					return err
				}
				if err := s.store.EnqueueEvent(ctx, event); err != nil {
					return err
				}
				s.scheduleAfterCommit(ctx, buy.ID, sell.ID)
				return nil
			})
		})
	})
	if err != nil {
		return models.Trade{}, err
	}

	s.log.Info("trade cancelled",
		zap.Int64("trade_id", trade.ID),
		zap.Int64("cancelled_by", userID),
		zap.Int64("counterparty", counterparty))
	return trade, nil
}

// tradeOption returns the product option a trade's bids rest in. Matched bids
// cannot change option, so the answer holds until the trade is cancelled.
func (s *TradeService) tradeOption(ctx context.Context, tradeID int64) (int64, error) {
	t, err := s.store.GetTrade(ctx, tradeID)
	if err != nil {
		return 0, err
	}
	buy, err := s.store.GetBid(ctx, t.PurchaseBidID)
	if err != nil {
		return 0, err
	}
	return buy.ProductOptionID, nil
}

// CompletePayment settles a trade awaiting payment
func (s *TradeService) CompletePayment(ctx context.Context, tradeID int64) (models.Trade, error) {
	var trade models.Trade
	err := s.locks.WithLock(ctx, lock.TradeKey(tradeID), s.policy.TradeCancel, func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(ctx context.Context) error {
			cur, err := s.store.GetTradeForUpdate(ctx, tradeID)
			if err != nil {
				return err
			}
			if cur.Status != models.TradeWaitingPayment {
				return models.ErrTradeNotCancellable
			}
			trade, err = s.store.UpdateTradeStatus(ctx, cur.ID, models.TradeWaitingPayment, models.TradePaymentCompleted, s.clock.Now())
			return err
		})
	})
	if err != nil {
		return models.Trade{}, err
	}

	s.log.Info("trade payment completed", zap.Int64("trade_id", trade.ID))
	return trade, nil
}

// Get returns a trade visible to the actor: either counterparty or an admin
func (s *TradeService) Get(ctx context.Context, actorID, tradeID int64) (models.Trade, error) {
	trade, err := s.store.GetTrade(ctx, tradeID)
	if err != nil {
		return models.Trade{}, err
	}
	for _, id := range []int64{trade.PurchaseBidID, trade.SaleBidID} {
		b, err := s.store.GetBid(ctx, id)
		if err != nil {
			return models.Trade{}, err
		}
		if b.UserID == actorID {
			return trade, nil
		}
	}
	actor, err := s.store.GetUser(ctx, actorID)
	if err != nil {
		return models.Trade{}, err
	}
	if actor.Role != models.RoleAdmin {
		return models.Trade{}, models.ErrNotYourTrade
	}
	return trade, nil
}

// List returns one page of trades matching f
func (s *TradeService) List(ctx context.Context, f models.TradeFilter) (models.Page[models.TradeView], error) {
	if err := f.Validate(); err != nil {
		return models.Page[models.TradeView]{}, err
	}
	return s.store.ListTrades(ctx, f)
}
