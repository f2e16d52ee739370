package db

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xtrntr/resale/internal/models"
)

const bidColumns = `b.id, b.user_id, b.product_option_id, b.price, b.side, b.status, b.version,
b.registered_seq, b.created_at, b.updated_at, b.expires_at, b.canceled_by,
COALESCE(b.cancel_reason, ''), COALESCE(b.cancel_comment, '')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBid(row rowScanner, extra ...any) (models.Bid, error) {
	var (
		b                    models.Bid
		side, status, reason string
	)
	dest := []any{
		&b.ID, &b.UserID, &b.ProductOptionID, &b.Price, &side, &status, &b.Version,
		&b.Seq, &b.CreatedAt, &b.UpdatedAt, &b.ExpiresAt, &b.CanceledBy,
		&reason, &b.CancelComment,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return models.Bid{}, err
	}
	b.Side = models.Side(side)
	b.Status = models.BidStatus(status)
	b.CancelReason = models.CancelReason(reason)
	return b, nil
}

// CreateBid inserts a pending bid and assigns its id, registration sequence and version
func (db *DB) CreateBid(ctx context.Context, bid models.Bid) (models.Bid, error) {
	row := db.queryRow(ctx, `
INSERT INTO bids AS b (user_id, product_option_id, price, side, status, version, registered_seq, created_at, updated_at, expires_at)
VALUES ($1, $2, $3, $4, $5, 1, nextval('bid_registration_seq'), $6, $6, $7)
RETURNING `+bidColumns,
		bid.UserID, bid.ProductOptionID, bid.Price, string(bid.Side), string(models.BidPending), bid.CreatedAt, bid.ExpiresAt)
	created, err := scanBid(row)
	if err != nil {
		return models.Bid{}, fmt.Errorf("failed to create bid: %w", err)
	}
	return created, nil
}

// GetBid retrieves a bid by id
func (db *DB) GetBid(ctx context.Context, id int64) (models.Bid, error) {
	return db.getBid(ctx, "SELECT "+bidColumns+" FROM bids b WHERE b.id = $1", id)
}

// GetBidForUpdate retrieves a bid and row-locks it for the enclosing transaction
func (db *DB) GetBidForUpdate(ctx context.Context, id int64) (models.Bid, error) {
	return db.getBid(ctx, "SELECT "+bidColumns+" FROM bids b WHERE b.id = $1 FOR UPDATE", id)
}

func (db *DB) getBid(ctx context.Context, sql string, id int64) (models.Bid, error) {
	b, err := scanBid(db.queryRow(ctx, sql, id))
	if err != nil {
		if isNoRows(err) {
			return models.Bid{}, models.ErrBidNotFound
		}
		return models.Bid{}, fmt.Errorf("failed to get bid: %w", err)
	}
	return b, nil
}

// LockBids row-locks the given bids in id order and returns those that exist
func (db *DB) LockBids(ctx context.Context, ids ...int64) (map[int64]models.Bid, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rows, err := db.query(ctx,
		"SELECT "+bidColumns+" FROM bids b WHERE b.id = ANY($1) ORDER BY b.id FOR UPDATE", sorted)
	if err != nil {
		return nil, fmt.Errorf("failed to lock bids: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]models.Bid, len(sorted))
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		out[b.ID] = b
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to lock bids: %w", err)
	}
	return out, nil
}

// UpdateBidTerms replaces the option, price and side of a pending bid if its
// version is still bid.Version. The bid takes a fresh registration sequence.
func (db *DB) UpdateBidTerms(ctx context.Context, bid models.Bid) (models.Bid, error) {
	row := db.queryRow(ctx, `
UPDATE bids AS b SET product_option_id = $3, price = $4, side = $5,
	registered_seq = nextval('bid_registration_seq'), version = b.version + 1, updated_at = $6
WHERE b.id = $1 AND b.version = $2 AND b.status = 'PENDING'
RETURNING `+bidColumns,
		bid.ID, bid.Version, bid.ProductOptionID, bid.Price, string(bid.Side), bid.UpdatedAt)
	updated, err := scanBid(row)
	if err != nil {
		if isNoRows(err) {
			return models.Bid{}, models.ErrConcurrentUpdate
		}
		return models.Bid{}, fmt.Errorf("failed to update bid: %w", err)
	}
	return updated, nil
}

// SetBidStatus moves a bid to status if its version is still version.
// The registration sequence is kept.
func (db *DB) SetBidStatus(ctx context.Context, id, version int64, status models.BidStatus, at time.Time) (models.Bid, error) {
	row := db.queryRow(ctx, `
UPDATE bids AS b SET status = $3, version = b.version + 1, updated_at = $4
WHERE b.id = $1 AND b.version = $2
RETURNING `+bidColumns,
		id, version, string(status), at)
	updated, err := scanBid(row)
	if err != nil {
		if isNoRows(err) {
			return models.Bid{}, models.ErrConcurrentUpdate
		}
		return models.Bid{}, fmt.Errorf("failed to update bid status: %w", err)
	}
	return updated, nil
}

// AdminCancelBid force-cancels a bid and records the acting admin, reason and comment
func (db *DB) AdminCancelBid(ctx context.Context, id, version, adminID int64, reason models.CancelReason, comment string, at time.Time) (models.Bid, error) {
	row := db.queryRow(ctx, `
UPDATE bids AS b SET status = 'ADMIN_CANCELED', version = b.version + 1, updated_at = $6,
	canceled_by = $3, cancel_reason = $4, cancel_comment = NULLIF($5, '')
WHERE b.id = $1 AND b.version = $2
RETURNING `+bidColumns,
		id, version, adminID, string(reason), comment, at)
	updated, err := scanBid(row)
	if err != nil {
		if isNoRows(err) {
			return models.Bid{}, models.ErrConcurrentUpdate
		}
		return models.Bid{}, fmt.Errorf("failed to cancel bid: %w", err)
	}
	return updated, nil
}

// ListPendingBids returns every pending, unexpired bid in registration order
func (db *DB) ListPendingBids(ctx context.Context, now time.Time) ([]models.Bid, error) {
	rows, err := db.query(ctx,
		"SELECT "+bidColumns+" FROM bids b WHERE b.status = 'PENDING' AND b.expires_at > $1 ORDER BY b.registered_seq",
		now)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending bids: %w", err)
	}
	defer rows.Close()

	var bids []models.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list pending bids: %w", err)
	}
	return bids, nil
}
