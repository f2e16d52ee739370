package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/xtrntr/resale/internal/models"
)

// where accumulates AND-ed predicates with positional arguments
type where struct {
	clauses []string
	args    []any
}

// add appends a predicate; each %d in clause is replaced by the argument's position
func (w *where) add(clause string, arg any) {
	w.args = append(w.args, arg)
	n := len(w.args)
	w.clauses = append(w.clauses, strings.ReplaceAll(clause, "%d", fmt.Sprint(n)))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// page appends LIMIT and OFFSET arguments and returns their clause
func (w *where) page(page, size int) (string, []any) {
	args := append(append([]any(nil), w.args...), size, page*size)
	n := len(w.args)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2), args
}

const bidViewFrom = `
FROM bids b
JOIN users u ON u.id = b.user_id
JOIN product_options o ON o.id = b.product_option_id
JOIN products p ON p.id = o.product_id
JOIN product_categories c ON c.id = p.category_id`

// ListBids returns one page of bids with their product and owner closure,
// newest first
func (db *DB) ListBids(ctx context.Context, f models.BidFilter) (models.Page[models.BidView], error) {
	page, size := models.Normalize(f.Page, f.Size)

	var w where
	if f.ProductID != nil {
		w.add("p.id = $%d", *f.ProductID)
	}
	if f.CategoryID != nil {
		w.add("c.id = $%d", *f.CategoryID)
	}
	if f.ProductOptionID != nil {
		w.add("o.id = $%d", *f.ProductOptionID)
	}
	if f.Status != nil {
		w.add("b.status = $%d", string(*f.Status))
	}
	if f.Side != nil {
		w.add("b.side = $%d", string(*f.Side))
	}
	if f.UserID != nil {
		w.add("b.user_id = $%d", *f.UserID)
	}

	var total int64
	if err := db.queryRow(ctx, "SELECT COUNT(*)"+bidViewFrom+w.String(), w.args...).Scan(&total); err != nil {
		return models.Page[models.BidView]{}, fmt.Errorf("failed to count bids: %w", err)
	}

	limit, args := w.page(page, size)
	rows, err := db.query(ctx,
		"SELECT "+bidColumns+", u.name, p.id, p.name, c.id, c.name, o.size"+bidViewFrom+w.String()+
			" ORDER BY b.created_at DESC, b.id DESC"+limit, args...)
	if err != nil {
		return models.Page[models.BidView]{}, fmt.Errorf("failed to list bids: %w", err)
	}
	defer rows.Close()

	var items []models.BidView
	for rows.Next() {
		var v models.BidView
		bid, err := scanBid(rows, &v.UserName, &v.ProductID, &v.ProductName, &v.CategoryID, &v.CategoryName, &v.Size)
		if err != nil {
			return models.Page[models.BidView]{}, fmt.Errorf("failed to scan bid: %w", err)
		}
		v.Bid = bid
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return models.Page[models.BidView]{}, fmt.Errorf("failed to list bids: %w", err)
	}
	return models.NewPage(items, page, size, total), nil
}

const tradeViewFrom = `
FROM trades t
JOIN bids pb ON pb.id = t.purchase_bid_id
JOIN bids sb ON sb.id = t.sale_bid_id
JOIN users buyer ON buyer.id = pb.user_id
JOIN users seller ON seller.id = sb.user_id
JOIN product_options o ON o.id = pb.product_option_id
JOIN products p ON p.id = o.product_id`

// ListTrades returns one page of trades with both counterparties, newest first
func (db *DB) ListTrades(ctx context.Context, f models.TradeFilter) (models.Page[models.TradeView], error) {
	page, size := models.Normalize(f.Page, f.Size)

	var w where
	if f.Status != nil {
		w.add("t.status = $%d", string(*f.Status))
	}
	if f.UserID != nil {
		w.add("(pb.user_id = $%d OR sb.user_id = $%d)", *f.UserID)
	}

	var total int64
	if err := db.queryRow(ctx, "SELECT COUNT(*)"+tradeViewFrom+w.String(), w.args...).Scan(&total); err != nil {
		return models.Page[models.TradeView]{}, fmt.Errorf("failed to count trades: %w", err)
	}

	limit, args := w.page(page, size)
	rows, err := db.query(ctx,
		"SELECT "+tradeColumns+", o.id, p.name, o.size, buyer.id, buyer.name, seller.id, seller.name"+
			tradeViewFrom+w.String()+" ORDER BY t.created_at DESC, t.id DESC"+limit, args...)
	if err != nil {
		return models.Page[models.TradeView]{}, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	var items []models.TradeView
	for rows.Next() {
		var v models.TradeView
		trade, err := scanTrade(rows, &v.ProductOptionID, &v.ProductName, &v.Size, &v.BuyerID, &v.BuyerName, &v.SellerID, &v.SellerName)
		if err != nil {
			return models.Page[models.TradeView]{}, fmt.Errorf("failed to scan trade: %w", err)
		}
		v.Trade = trade
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return models.Page[models.TradeView]{}, fmt.Errorf("failed to list trades: %w", err)
	}
	return models.NewPage(items, page, size, total), nil
}
