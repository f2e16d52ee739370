package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xtrntr/resale/internal/auth"
	"github.com/xtrntr/resale/internal/models"
	"github.com/xtrntr/resale/internal/service"
)

// BidService is the bid lifecycle the handlers drive
type BidService interface {
	Register(ctx context.Context, userID int64, in service.BidInput) (models.Bid, error)
	Update(ctx context.Context, userID, bidID int64, in service.BidInput) (models.Bid, error)
	Cancel(ctx context.Context, userID, bidID int64) (models.Bid, error)
	AdminCancel(ctx context.Context, adminID, bidID int64, reason models.CancelReason, comment string) (models.AdminCancellation, error)
	Get(ctx context.Context, actorID, bidID int64) (models.Bid, error)
	List(ctx context.Context, f models.BidFilter) (models.Page[models.BidView], error)
}

// TradeService is the trade lifecycle the handlers drive
type TradeService interface {
	Cancel(ctx context.Context, userID, tradeID int64) (models.Trade, error)
	CompletePayment(ctx context.Context, tradeID int64) (models.Trade, error)
	Get(ctx context.Context, actorID, tradeID int64) (models.Trade, error)
	List(ctx context.Context, f models.TradeFilter) (models.Page[models.TradeView], error)
}

// TokenParser verifies bearer tokens
type TokenParser interface {
	Parse(tokenString string) (auth.Claims, error)
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	bids   BidService
	trades TradeService
	tokens TokenParser
	log    *zap.Logger
}

// NewHandler creates a new handler
func NewHandler(bids BidService, trades TradeService, tokens TokenParser, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{bids: bids, trades: trades, tokens: tokens, log: log}
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// PlaceBid registers a bid for the caller
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	var in service.BidInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	bid, err := h.bids.Register(r.Context(), claims.UserID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, bid)
}

// ListBids pages through the caller's own bids
func (h *Handler) ListBids(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	f, err := bidFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	f.UserID = &claims.UserID

	page, err := h.bids.List(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetBid returns one bid owned by the caller
func (h *Handler) GetBid(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	bid, err := h.bids.Get(r.Context(), claims.UserID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bid)
}

// UpdateBid replaces the terms of the caller's pending bid
func (h *Handler) UpdateBid(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var in service.BidInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	bid, err := h.bids.Update(r.Context(), claims.UserID, id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bid)
}

// CancelBid withdraws the caller's pending bid
func (h *Handler) CancelBid(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	bid, err := h.bids.Cancel(r.Context(), claims.UserID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bid)
}

// OptionBids lists the pending bids of one product option
func (h *Handler) OptionBids(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	f, err := bidFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pending := models.BidPending
	f.ProductOptionID = &id
	f.Status = &pending
	f.UserID = nil

	page, err := h.bids.List(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetTrade returns a trade the caller is party to
func (h *Handler) GetTrade(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	trade, err := h.trades.Get(r.Context(), claims.UserID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

// CancelTrade undoes a trade awaiting payment; the caller is penalised
func (h *Handler) CancelTrade(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	trade, err := h.trades.Cancel(r.Context(), claims.UserID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

// AdminCancelBid force-cancels any pending bid with an audit reason
func (h *Handler) AdminCancelBid(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Reason  models.CancelReason `json:"reason"`
		Comment string              `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	record, err := h.bids.AdminCancel(r.Context(), claims.UserID, id, req.Reason, req.Comment)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// AdminListBids pages through all bids with monitoring filters
func (h *Handler) AdminListBids(w http.ResponseWriter, r *http.Request) {
	f, err := bidFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, err := h.bids.List(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// AdminListTrades pages through all trades
func (h *Handler) AdminListTrades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f models.TradeFilter
	var err error
	if s := q.Get("status"); s != "" {
		status := models.TradeStatus(s)
		f.Status = &status
	}
	if f.UserID, err = queryInt64(q.Get("user_id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	if f.Page, f.Size, err = paging(q.Get("page"), q.Get("size")); err != nil {
		h.writeError(w, r, err)
		return
	}

	page, err := h.trades.List(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// CompleteTrade records payment for a trade
func (h *Handler) CompleteTrade(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	trade, err := h.trades.CompletePayment(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeErrorMessage(w, http.StatusBadRequest, "validation_error", "Invalid ID")
		return 0, false
	}
	return id, true
}

func bidFilter(r *http.Request) (models.BidFilter, error) {
	q := r.URL.Query()
	var f models.BidFilter
	var err error
	if f.ProductID, err = queryInt64(q.Get("product_id")); err != nil {
		return f, err
	}
	if f.CategoryID, err = queryInt64(q.Get("category_id")); err != nil {
		return f, err
	}
	if f.UserID, err = queryInt64(q.Get("user_id")); err != nil {
		return f, err
	}
	if s := q.Get("status"); s != "" {
		status := models.BidStatus(s)
		f.Status = &status
	}
	if s := q.Get("side"); s != "" {
		side := models.Side(s)
		f.Side = &side
	}
	f.Page, f.Size, err = paging(q.Get("page"), q.Get("size"))
	return f, err
}

func queryInt64(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, models.ErrInvalidFilter
	}
	return &v, nil
}

func paging(page, size string) (int, int, error) {
	p, s := 0, 0
	var err error
	if page != "" {
		if p, err = strconv.Atoi(page); err != nil || p < 0 {
			return 0, 0, models.ErrInvalidFilter
		}
	}
	if size != "" {
		if s, err = strconv.Atoi(size); err != nil || s < 0 {
			return 0, 0, models.ErrInvalidFilter
		}
	}
	p, s = models.Normalize(p, s)
	return p, s, nil
}
