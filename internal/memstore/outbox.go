package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/xtrntr/resale/internal/models"
)

// EnqueueEvent appends an event to the outbox
func (s *Store) EnqueueEvent(ctx context.Context, e models.Event) error {
	return s.do(ctx, func(tx *memTx) error {
		s.events++
		e.ID = s.events
		e.PublishedAt = nil
		remember(tx, s.outbox, e.ID)
		s.outbox[e.ID] = e
		return nil
	})
}

// FetchUnpublished returns up to limit unpublished events in id order
func (s *Store) FetchUnpublished(ctx context.Context, limit int) ([]models.Event, error) {
	var out []models.Event
	err := s.do(ctx, func(*memTx) error {
		for _, e := range s.outbox {
			if e.PublishedAt == nil {
				out = append(out, e)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

// MarkPublished stamps the given events as delivered
func (s *Store) MarkPublished(ctx context.Context, ids []int64, at time.Time) error {
	return s.do(ctx, func(tx *memTx) error {
		for _, id := range ids {
			e, ok := s.outbox[id]
			if !ok {
				continue
			}
			remember(tx, s.outbox, id)
			stamp := at
			e.PublishedAt = &stamp
			s.outbox[id] = e
		}
		return nil
	})
}

// Events returns every outbox record in id order
func (s *Store) Events(ctx context.Context) ([]models.Event, error) {
	var out []models.Event
	err := s.do(ctx, func(*memTx) error {
		for _, e := range s.outbox {
			out = append(out, e)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// ListBids returns one page of bids with their closure, newest first
func (s *Store) ListBids(ctx context.Context, f models.BidFilter) (models.Page[models.BidView], error) {
	page, size := models.Normalize(f.Page, f.Size)

	var all []models.BidView
	err := s.do(ctx, func(*memTx) error {
		for _, b := range s.bids {
			o, _ := s.optionView(b.ProductOptionID)
			v := models.BidView{
				Bid:          b,
				UserName:     s.users[b.UserID].Name,
				ProductID:    o.ProductID,
				ProductName:  o.ProductName,
				CategoryID:   o.CategoryID,
				CategoryName: o.CategoryName,
				Size:         o.Size,
			}
			if matchesBid(f, v) {
				all = append(all, v)
			}
		}
		return nil
	})
	if err != nil {
		return models.Page[models.BidView]{}, err
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	return models.NewPage(slice(all, page, size), page, size, int64(len(all))), nil
}

func matchesBid(f models.BidFilter, v models.BidView) bool {
	switch {
	case f.ProductID != nil && *f.ProductID != v.ProductID:
		return false
	case f.CategoryID != nil && *f.CategoryID != v.CategoryID:
		return false
	case f.ProductOptionID != nil && *f.ProductOptionID != v.ProductOptionID:
		return false
	case f.Status != nil && *f.Status != v.Status:
		return false
	case f.Side != nil && *f.Side != v.Side:
		return false
	case f.UserID != nil && *f.UserID != v.UserID:
		return false
	}
	return true
}

// ListTrades returns one page of trades with both counterparties, newest first
func (s *Store) ListTrades(ctx context.Context, f models.TradeFilter) (models.Page[models.TradeView], error) {
	page, size := models.Normalize(f.Page, f.Size)

	var all []models.TradeView
	err := s.do(ctx, func(*memTx) error {
		for _, t := range s.trades {
			buy, sell := s.bids[t.PurchaseBidID], s.bids[t.SaleBidID]
			if f.Status != nil && *f.Status != t.Status {
				continue
			}
			if f.UserID != nil && *f.UserID != buy.UserID && *f.UserID != sell.UserID {
				continue
			}
			o, _ := s.optionView(buy.ProductOptionID)
			all = append(all, models.TradeView{
				Trade:           t,
				ProductOptionID: o.ID,
				ProductName:     o.ProductName,
				Size:            o.Size,
				BuyerID:         buy.UserID,
				BuyerName:       s.users[buy.UserID].Name,
				SellerID:        sell.UserID,
				SellerName:      s.users[sell.UserID].Name,
			})
		}
		return nil
	})
	if err != nil {
		return models.Page[models.TradeView]{}, err
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	return models.NewPage(slice(all, page, size), page, size, int64(len(all))), nil
}

func slice[T any](all []T, page, size int) []T {
	start := page * size
	if start >= len(all) {
		return nil
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}
