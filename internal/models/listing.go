package models

import "time"

// DefaultPageSize is the page size of monitoring listings
const DefaultPageSize = 10

// MaxPageSize caps caller supplied page sizes
const MaxPageSize = 100

// BidView is a bid with its product, category and owner closure
type BidView struct {
	Bid
	UserName     string `json:"user_name"`
	ProductID    int64  `json:"product_id"`
	ProductName  string `json:"product_name"`
	CategoryID   int64  `json:"category_id"`
	CategoryName string `json:"category_name"`
	Size         string `json:"size"`
}

// TradeView is a trade with both counterparties and the product it settled
type TradeView struct {
	Trade
	ProductOptionID int64  `json:"product_option_id"`
	ProductName     string `json:"product_name"`
	Size            string `json:"size"`
	BuyerID         int64  `json:"buyer_id"`
	BuyerName       string `json:"buyer_name"`
	SellerID        int64  `json:"seller_id"`
	SellerName      string `json:"seller_name"`
}

// BidFilter selects bids for listings; nil fields do not filter
type BidFilter struct {
	ProductID       *int64
	CategoryID      *int64
	ProductOptionID *int64
	Status          *BidStatus
	Side            *Side
	UserID          *int64
	Page            int
	Size            int
}

// TradeFilter selects trades for listings; nil fields do not filter
type TradeFilter struct {
	Status *TradeStatus
	UserID *int64
	Page   int
	Size   int
}

// Page is one page of a listing
type Page[T any] struct {
	Items   []T   `json:"items"`
	Page    int   `json:"page"`
	Total   int64 `json:"total"`
	HasNext bool  `json:"has_next"`
}

// Normalize clamps page and size into range
func Normalize(page, size int) (int, int) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// NewPage assembles a page from one slice of results and the total count
func NewPage[T any](items []T, page, size int, total int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:   items,
		Page:    page,
		Total:   total,
		HasNext: int64((page+1)*size) < total,
	}
}

// Validate rejects filter values outside the known enumerations
func (f BidFilter) Validate() error {
	if f.Status != nil && !f.Status.Valid() {
		return ErrInvalidFilter
	}
	if f.Side != nil && !f.Side.Valid() {
		return ErrInvalidFilter
	}
	return nil
}

// Validate rejects filter values outside the known enumerations
func (f TradeFilter) Validate() error {
	if f.Status != nil && !f.Status.Valid() {
		return ErrInvalidFilter
	}
	return nil
}

// AdminCancellation is the audit record returned by an admin force-cancel
type AdminCancellation struct {
	BidID      int64        `json:"bid_id"`
	Status     BidStatus    `json:"status"`
	AdminID    int64        `json:"admin_id"`
	AdminName  string       `json:"admin_name"`
	Reason     CancelReason `json:"reason"`
	Comment    string       `json:"comment"`
	CanceledAt time.Time    `json:"canceled_at"`
}
