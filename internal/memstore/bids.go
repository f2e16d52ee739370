package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/xtrntr/resale/internal/models"
)

// CreateBid inserts a pending bid and assigns its id, registration sequence and version
func (s *Store) CreateBid(ctx context.Context, bid models.Bid) (models.Bid, error) {
	err := s.do(ctx, func(tx *memTx) error {
		bid.ID = s.nextID()
		s.seq++
		bid.Seq = s.seq
		bid.Version = 1
		bid.Status = models.BidPending
		bid.UpdatedAt = bid.CreatedAt
		remember(tx, s.bids, bid.ID)
		s.bids[bid.ID] = bid
		return nil
	})
	if err != nil {
		return models.Bid{}, err
	}
	return bid, nil
}

// GetBid retrieves a bid by id
func (s *Store) GetBid(ctx context.Context, id int64) (models.Bid, error) {
	var b models.Bid
	err := s.do(ctx, func(*memTx) error {
		found, ok := s.bids[id]
		if !ok {
			return models.ErrBidNotFound
		}
		b = found
		return nil
	})
	return b, err
}

// GetBidForUpdate retrieves a bid; transactions are already exclusive
func (s *Store) GetBidForUpdate(ctx context.Context, id int64) (models.Bid, error) {
	return s.GetBid(ctx, id)
}

// LockBids returns the given bids that exist
func (s *Store) LockBids(ctx context.Context, ids ...int64) (map[int64]models.Bid, error) {
	out := make(map[int64]models.Bid, len(ids))
	err := s.do(ctx, func(*memTx) error {
		for _, id := range ids {
			if b, ok := s.bids[id]; ok {
				out[id] = b
			}
		}
		return nil
	})
	return out, err
}

// UpdateBidTerms replaces the terms of a pending bid at bid.Version and draws a fresh sequence
func (s *Store) UpdateBidTerms(ctx context.Context, bid models.Bid) (models.Bid, error) {
	var updated models.Bid
	err := s.do(ctx, func(tx *memTx) error {
		cur, ok := s.bids[bid.ID]
		if !ok || cur.Version != bid.Version || cur.Status != models.BidPending {
			return models.ErrConcurrentUpdate
		}
		remember(tx, s.bids, bid.ID)
		s.seq++
		cur.ProductOptionID = bid.ProductOptionID
		cur.Price = bid.Price
		cur.Side = bid.Side
		cur.Seq = s.seq
		cur.Version++
		cur.UpdatedAt = bid.UpdatedAt
		s.bids[bid.ID] = cur
		updated = cur
		return nil
	})
	return updated, err
}

// SetBidStatus moves a bid to status at version, keeping its sequence
func (s *Store) SetBidStatus(ctx context.Context, id, version int64, status models.BidStatus, at time.Time) (models.Bid, error) {
	var updated models.Bid
	err := s.do(ctx, func(tx *memTx) error {
		cur, ok := s.bids[id]
		if !ok || cur.Version != version {
			return models.ErrConcurrentUpdate
		}
		remember(tx, s.bids, id)
		cur.Status = status
		cur.Version++
		cur.UpdatedAt = at
		s.bids[id] = cur
		updated = cur
		return nil
	})
	return updated, err
}

// AdminCancelBid force-cancels a bid and records the audit fields
func (s *Store) AdminCancelBid(ctx context.Context, id, version, adminID int64, reason models.CancelReason, comment string, at time.Time) (models.Bid, error) {
	var updated models.Bid
	err := s.do(ctx, func(tx *memTx) error {
		cur, ok := s.bids[id]
		if !ok || cur.Version != version {
			return models.ErrConcurrentUpdate
		}
		remember(tx, s.bids, id)
		cur.Status = models.BidAdminCanceled
		cur.Version++
		cur.UpdatedAt = at
		cur.CanceledBy = &adminID
		cur.CancelReason = reason
		cur.CancelComment = comment
		s.bids[id] = cur
		updated = cur
		return nil
	})
	return updated, err
}

// ListPendingBids returns every pending, unexpired bid in registration order
func (s *Store) ListPendingBids(ctx context.Context, now time.Time) ([]models.Bid, error) {
	var out []models.Bid
	err := s.do(ctx, func(*memTx) error {
		for _, b := range s.bids {
			if b.Pending() && b.ExpiresAt.After(now) {
				out = append(out, b)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, err
}

// CreateTrade records a match. A bid already in an open trade is rejected.
func (s *Store) CreateTrade(ctx context.Context, trade models.Trade) (models.Trade, error) {
	err := s.do(ctx, func(tx *memTx) error {
		for _, t := range s.trades {
			if t.Status == models.TradePaymentCanceled {
				continue
			}
			if t.PurchaseBidID == trade.PurchaseBidID || t.SaleBidID == trade.SaleBidID {
				return models.ErrTradeAlreadyRecorded
			}
		}
		trade.ID = s.nextID()
		remember(tx, s.trades, trade.ID)
		s.trades[trade.ID] = trade
		return nil
	})
	if err != nil {
		return models.Trade{}, err
	}
	return trade, nil
}

// GetTrade retrieves a trade by id
func (s *Store) GetTrade(ctx context.Context, id int64) (models.Trade, error) {
	var t models.Trade
	err := s.do(ctx, func(*memTx) error {
		found, ok := s.trades[id]
		if !ok {
			return models.ErrTradeNotFound
		}
		t = found
		return nil
	})
	return t, err
}

// GetTradeForUpdate retrieves a trade; transactions are already exclusive
func (s *Store) GetTradeForUpdate(ctx context.Context, id int64) (models.Trade, error) {
	return s.GetTrade(ctx, id)
}

// UpdateTradeStatus moves a trade from one status to another
func (s *Store) UpdateTradeStatus(ctx context.Context, id int64, from, to models.TradeStatus, at time.Time) (models.Trade, error) {
	var updated models.Trade
	err := s.do(ctx, func(tx *memTx) error {
		cur, ok := s.trades[id]
		if !ok || cur.Status != from {
			return models.ErrConcurrentUpdate
		}
		remember(tx, s.trades, id)
		cur.Status = to
		if to == models.TradePaymentCompleted {
			cur.CompletedAt = &at
		}
		s.trades[id] = cur
		updated = cur
		return nil
	})
	return updated, err
}

// HasCancelledTrade reports whether the pair was once in a cancelled trade
func (s *Store) HasCancelledTrade(ctx context.Context, purchaseBidID, saleBidID int64) (bool, error) {
	var found bool
	err := s.do(ctx, func(*memTx) error {
		for _, t := range s.trades {
			if t.PurchaseBidID == purchaseBidID && t.SaleBidID == saleBidID && t.Status == models.TradePaymentCanceled {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}
