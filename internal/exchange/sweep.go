package exchange

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/xtrntr/resale/internal/lock"
	"github.com/xtrntr/resale/internal/models"
	"github.com/xtrntr/resale/internal/orderbook"
)

// Sweep retries matching for every pending, unexpired BUY bid, one option at
// a time under that option's lock. Every crossing pair contains a BUY bid,
// so sweeping one side is enough. It returns the number of trades created.
func (m *Matcher) Sweep(ctx context.Context) (int, error) {
	pending, err := m.store.ListPendingBids(ctx, m.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to list pending bids: %w", err)
	}

	byOption := make(map[int64][]int64)
	for _, b := range pending {
		if b.Side == models.SideBuy {
			byOption[b.ProductOptionID] = append(byOption[b.ProductOptionID], b.ID)
		}
	}
	options := make([]int64, 0, len(byOption))
	for id := range byOption {
		options = append(options, id)
	}
	sort.Slice(options, func(i, j int) bool { return options[i] < options[j] })

	trades := 0
	for _, optionID := range options {
		if err := ctx.Err(); err != nil {
			return trades, err
		}
		bids := byOption[optionID]
		err := m.locks.WithLock(ctx, lock.OptionKey(optionID), m.sweepLock, func(ctx context.Context) error {
			for _, bidID := range bids {
				trade, err := m.matchLocked(ctx, optionID, bidID)
				if err != nil {
					return err
				}
				if trade != nil {
					trades++
				}
			}
			return nil
		})
		switch {
		case err == nil:
		case errors.Is(err, models.ErrLockAcquisition):
			m.log.Warn("sweep skipped busy option", zap.Int64("product_option_id", optionID))
		default:
			m.log.Error("sweep failed for option", zap.Int64("product_option_id", optionID), zap.Error(err))
		}
	}
	return trades, nil
}

// RunSweeper calls Sweep every interval until ctx is cancelled
func (m *Matcher) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				m.log.Error("sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				m.log.Info("sweep matched bids", zap.Int("trades", n))
			}
		}
	}
}

// PendingLister lists the bids an index rebuild restores
type PendingLister interface {
	ListPendingBids(ctx context.Context, now time.Time) ([]models.Bid, error)
}

// RebuildIndex inserts every pending, unexpired bid into index. Entries for
// bids that are no longer pending are left for the matcher to drop lazily.
func RebuildIndex(ctx context.Context, store PendingLister, index orderbook.Index, now time.Time) (int, error) {
	pending, err := store.ListPendingBids(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending bids: %w", err)
	}
	for _, b := range pending {
		if err := index.Insert(ctx, b.ProductOptionID, b.Side, orderbook.EntryOf(b)); err != nil {
			return 0, fmt.Errorf("failed to index bid %d: %w", b.ID, err)
		}
	}
	return len(pending), nil
}
