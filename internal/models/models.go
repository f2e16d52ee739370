package models

import (
	"fmt"
	"time"
)

// MaxPrice bounds bid prices so that signed scores stay exact in every index backend.
const MaxPrice int64 = 1_000_000_000_000

// DefaultBidTTL is how long a bid rests before it expires.
const DefaultBidTTL = 7 * 24 * time.Hour

// Side is the direction of a bid
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s is BUY or SELL
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the side a bid of side s matches against
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// BidStatus is the lifecycle state of a bid
type BidStatus string

const (
	BidPending       BidStatus = "PENDING"
	BidMatched       BidStatus = "MATCHED"
	BidCanceled      BidStatus = "CANCELED"
	BidAdminCanceled BidStatus = "ADMIN_CANCELED"
)

// Valid reports whether s is a known bid status
func (s BidStatus) Valid() bool {
	switch s {
	case BidPending, BidMatched, BidCanceled, BidAdminCanceled:
		return true
	}
	return false
}

// TradeStatus is the settlement state of a trade
type TradeStatus string

const (
	TradeWaitingPayment   TradeStatus = "WAITING_PAYMENT"
	TradePaymentCompleted TradeStatus = "PAYMENT_COMPLETED"
	TradePaymentCanceled  TradeStatus = "PAYMENT_CANCELED"
)

// Valid reports whether s is a known trade status
func (s TradeStatus) Valid() bool {
	switch s {
	case TradeWaitingPayment, TradePaymentCompleted, TradePaymentCanceled:
		return true
	}
	return false
}

// Role is a user's permission level
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// CancelReason is the audit code recorded when an admin force-cancels a bid
type CancelReason string

const (
	ReasonFraud           CancelReason = "FRAUD"
	ReasonOutOfStock      CancelReason = "OUT_OF_STOCK"
	ReasonMistake         CancelReason = "MISTAKE"
	ReasonPolicyViolation CancelReason = "POLICY_VIOLATION"
)

// Valid reports whether r is a known reason code
func (r CancelReason) Valid() bool {
	switch r {
	case ReasonFraud, ReasonOutOfStock, ReasonMistake, ReasonPolicyViolation:
		return true
	}
	return false
}

// User is the account view the matching core needs
type User struct {
	ID                    int64      `json:"id"`
	Name                  string     `json:"name"`
	Role                  Role       `json:"role"`
	BiddingSuspendedUntil *time.Time `json:"bidding_suspended_until,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

// SuspendedAt reports whether the user may not register bids at now
func (u User) SuspendedAt(now time.Time) bool {
	return u.BiddingSuspendedUntil != nil && u.BiddingSuspendedUntil.After(now)
}

// ProductOption is a purchasable variant with its product and category closure
type ProductOption struct {
	ID           int64  `json:"id"`
	ProductID    int64  `json:"product_id"`
	ProductName  string `json:"product_name"`
	CategoryID   int64  `json:"category_id"`
	CategoryName string `json:"category_name"`
	Size         string `json:"size"`
}

// Descriptor is the human readable label carried in trade events
func (o ProductOption) Descriptor() string {
	return fmt.Sprintf("%s (%s)", o.ProductName, o.Size)
}

// Bid is a one-sided order for one unit of a product option
type Bid struct {
	ID              int64        `json:"id"`
	UserID          int64        `json:"user_id"`
	ProductOptionID int64        `json:"product_option_id"`
	Price           int64        `json:"price"`
	Side            Side         `json:"side"`
	Status          BidStatus    `json:"status"`
	Version         int64        `json:"version"`
	Seq             int64        `json:"seq"` // registration sequence, breaks price ties
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	ExpiresAt       time.Time    `json:"expires_at"`
	CanceledBy      *int64       `json:"canceled_by,omitempty"`
	CancelReason    CancelReason `json:"cancel_reason,omitempty"`
	CancelComment   string       `json:"cancel_comment,omitempty"`
}

// Pending reports whether the bid is still resting
func (b Bid) Pending() bool {
	return b.Status == BidPending
}

// Expired reports whether the bid's expiry has passed at now
func (b Bid) Expired(now time.Time) bool {
	return !b.ExpiresAt.IsZero() && !now.Before(b.ExpiresAt)
}

// Matchable reports whether the bid can take part in a trade at now
func (b Bid) Matchable(now time.Time) bool {
	return b.Pending() && !b.Expired(now)
}

// Trade is one completed match between a purchase bid and a sale bid
type Trade struct {
	ID            int64       `json:"id"`
	PurchaseBidID int64       `json:"purchase_bid_id"`
	SaleBidID     int64       `json:"sale_bid_id"`
	Price         int64       `json:"price"`
	Status        TradeStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
}
