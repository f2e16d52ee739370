package db

import (
	"context"
	"fmt"
	"time"

	"github.com/xtrntr/resale/internal/models"
)

const tradeColumns = "t.id, t.purchase_bid_id, t.sale_bid_id, t.price, t.status, t.created_at, t.completed_at"

func scanTrade(row rowScanner, extra ...any) (models.Trade, error) {
	var (
		t      models.Trade
		status string
	)
	dest := []any{&t.ID, &t.PurchaseBidID, &t.SaleBidID, &t.Price, &status, &t.CreatedAt, &t.CompletedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return models.Trade{}, err
	}
	t.Status = models.TradeStatus(status)
	return t, nil
}

// CreateTrade records a match. A bid already in an open trade is rejected.
func (db *DB) CreateTrade(ctx context.Context, trade models.Trade) (models.Trade, error) {
	row := db.queryRow(ctx, `
INSERT INTO trades AS t (purchase_bid_id, sale_bid_id, price, status, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+tradeColumns,
		trade.PurchaseBidID, trade.SaleBidID, trade.Price, string(trade.Status), trade.CreatedAt)
	created, err := scanTrade(row)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Trade{}, models.ErrTradeAlreadyRecorded
		}
		return models.Trade{}, fmt.Errorf("failed to create trade: %w", err)
	}
	return created, nil
}

// GetTrade retrieves a trade by id
func (db *DB) GetTrade(ctx context.Context, id int64) (models.Trade, error) {
	return db.getTrade(ctx, "SELECT "+tradeColumns+" FROM trades t WHERE t.id = $1", id)
}

// GetTradeForUpdate retrieves a trade and row-locks it
func (db *DB) GetTradeForUpdate(ctx context.Context, id int64) (models.Trade, error) {
	return db.getTrade(ctx, "SELECT "+tradeColumns+" FROM trades t WHERE t.id = $1 FOR UPDATE", id)
}

func (db *DB) getTrade(ctx context.Context, sql string, id int64) (models.Trade, error) {
	t, err := scanTrade(db.queryRow(ctx, sql, id))
	if err != nil {
		if isNoRows(err) {
			return models.Trade{}, models.ErrTradeNotFound
		}
		return models.Trade{}, fmt.Errorf("failed to get trade: %w", err)
	}
	return t, nil
}

// UpdateTradeStatus moves a trade from one status to another. Completing
// payment stamps the completion time.
func (db *DB) UpdateTradeStatus(ctx context.Context, id int64, from, to models.TradeStatus, at time.Time) (models.Trade, error) {
	var completedAt *time.Time
	if to == models.TradePaymentCompleted {
		completedAt = &at
	}
	row := db.queryRow(ctx, `
UPDATE trades AS t SET status = $3, completed_at = COALESCE($4, t.completed_at)
WHERE t.id = $1 AND t.status = $2
RETURNING `+tradeColumns,
		id, string(from), string(to), completedAt)
	updated, err := scanTrade(row)
	if err != nil {
		if isNoRows(err) {
			return models.Trade{}, models.ErrConcurrentUpdate
		}
		return models.Trade{}, fmt.Errorf("failed to update trade status: %w", err)
	}
	return updated, nil
}

// HasCancelledTrade reports whether the two bids were once paired in a trade
// that was later cancelled
func (db *DB) HasCancelledTrade(ctx context.Context, purchaseBidID, saleBidID int64) (bool, error) {
	var exists bool
	err := db.queryRow(ctx, `
SELECT EXISTS (
	SELECT 1 FROM trades WHERE purchase_bid_id = $1 AND sale_bid_id = $2 AND status = 'PAYMENT_CANCELED'
)`, purchaseBidID, saleBidID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check cancelled trades: %w", err)
	}
	return exists, nil
}
