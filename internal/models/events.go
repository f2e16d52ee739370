package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a domain event published through the outbox
type EventType string

const (
	EventBidRegistered  EventType = "BidRegistered"
	EventBidUpdated     EventType = "BidUpdated"
	EventBidCancelled   EventType = "BidCancelled"
	EventTradeMatched   EventType = "TradeMatched"
	EventTradeCancelled EventType = "TradeCancelled"
)

// Event is an outbox record. Consumers must be idempotent; delivery is at-least-once.
type Event struct {
	ID          int64           `json:"id"`
	Type        EventType       `json:"type"`
	AggregateID int64           `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
}

// BidChanged is the payload of BidRegistered, BidUpdated and BidCancelled
type BidChanged struct {
	BidID           int64        `json:"bid_id"`
	UserID          int64        `json:"user_id"`
	ProductOptionID int64        `json:"product_option_id"`
	Price           int64        `json:"price"`
	Side            Side         `json:"side"`
	Status          BidStatus    `json:"status"`
	CanceledBy      *int64       `json:"canceled_by,omitempty"`
	Reason          CancelReason `json:"reason,omitempty"`
}

// TradeMatched is emitted once per created trade
type TradeMatched struct {
	TradeID         int64  `json:"trade_id"`
	BuyerID         int64  `json:"buyer_id"`
	SellerID        int64  `json:"seller_id"`
	SettlementPrice int64  `json:"settlement_price"`
	ProductOption   string `json:"product_option"`
}

// TradeCancelled distinguishes the penalised canceller from the restored counterparty
type TradeCancelled struct {
	TradeID            int64 `json:"trade_id"`
	CancellingUserID   int64 `json:"cancelling_user_id"`
	CounterpartyUserID int64 `json:"counterparty_user_id"`
}

// NewEvent encodes payload into an unsaved outbox record
func NewEvent(typ EventType, aggregateID int64, payload any, now time.Time) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to encode %s payload: %w", typ, err)
	}
	return Event{
		Type:        typ,
		AggregateID: aggregateID,
		Payload:     raw,
		CreatedAt:   now,
	}, nil
}

// BidEvent builds a bid lifecycle event from the bid's current state
func BidEvent(typ EventType, b Bid, now time.Time) (Event, error) {
	return NewEvent(typ, b.ID, BidChanged{
		BidID:           b.ID,
		UserID:          b.UserID,
		ProductOptionID: b.ProductOptionID,
		Price:           b.Price,
		Side:            b.Side,
		Status:          b.Status,
		CanceledBy:      b.CanceledBy,
		Reason:          b.CancelReason,
	}, now)
}
