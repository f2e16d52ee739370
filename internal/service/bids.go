package service

import (
	"context"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/xtrntr/resale/internal/lock"
	"github.com/xtrntr/resale/internal/models"
	"github.com/xtrntr/resale/internal/orderbook"
)

// MaxCommentLength bounds admin cancellation comments, in characters
const MaxCommentLength = 255

// BidInput carries the caller supplied terms of a bid
type BidInput struct {
	ProductOptionID int64       `json:"product_option_id"`
	Price           int64       `json:"price"`
	Side            models.Side `json:"side"`
}

// Validate checks the terms without touching the store
func (in BidInput) Validate() error {
	if in.ProductOptionID <= 0 {
		return models.ErrInvalidProductOption
	}
	if in.Price <= 0 || in.Price > models.MaxPrice {
		return models.ErrInvalidPrice
	}
	if !in.Side.Valid() {
		return models.ErrInvalidSide
	}
	return nil
}

// BidService runs the bid lifecycle
type BidService struct {
	deps
}

// NewBidService creates a bid service
func NewBidService(store Store, index orderbook.Index, locks *lock.Manager, scheduler Scheduler, opts ...Option) *BidService {
	return &BidService{deps: newDeps(store, index, locks, scheduler, opts)}
}

// Register places a new pending bid and queues it for matching once stored
func (s *BidService) Register(ctx context.Context, userID int64, in BidInput) (models.Bid, error) {
	if err := in.Validate(); err != nil {
		return models.Bid{}, err
	}

	var bid models.Bid
	err := s.locks.WithLock(ctx, lock.OptionKey(in.ProductOptionID), s.policy.Register, func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(ctx context.Context) error {
			now := s.clock.Now()
			user, err := s.store.GetUser(ctx, userID)
			if err != nil {
				return err
			}
			if user.SuspendedAt(now) {
				return models.ErrBiddingSuspended
			}
			if _, err := s.store.GetProductOption(ctx, in.ProductOptionID); err != nil {
				return err
			}

			bid, err = s.store.CreateBid(ctx, models.Bid{
				UserID:          userID,
				ProductOptionID: in.ProductOptionID,
				Price:           in.Price,
				Side:            in.Side,
				Status:          models.BidPending,
				CreatedAt:       now,
				UpdatedAt:       now,
				ExpiresAt:       now.Add(s.bidTTL),
			})
			if err != nil {
				return err
			}
			if err := s.indexInsert(ctx, bid); err != nil {
				return err
			}
			if err := s.enqueueBidEvent(ctx, models.EventBidRegistered, bid); err != nil {
				return err
			}
			s.scheduleAfterCommit(ctx, bid.ID)
			return nil
		})
	})
	if err != nil {
		return models.Bid{}, err
	}

	s.log.Info("bid registered",
		zap.Int64("bid_id", bid.ID),
		zap.Int64("user_id", userID),
		zap.String("side", string(bid.Side)),
		zap.Int64("price", bid.Price))
	return bid, nil
}

// Update replaces the terms of the caller's pending bid. The bid loses its
// time priority and is queued for matching again.
func (s *BidService) Update(ctx context.Context, userID, bidID int64, in BidInput) (models.Bid, error) {
	if err := in.Validate(); err != nil {
		return models.Bid{}, err
	}

	var bid models.Bid
	err := s.locks.WithLock(ctx, lock.BidKey(bidID), s.policy.Update, func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(ctx context.Context) error {
			cur, err := s.store.GetBidForUpdate(ctx, bidID)
			if err != nil {
				return err
			}
			if cur.UserID != userID {
				return models.ErrNotYourBid
			}
			if !cur.Pending() {
				return models.ErrBidNotPending
			}
			if _, err := s.store.GetProductOption(ctx, in.ProductOptionID); err != nil {
				return err
			}

			if err := s.indexRemove(ctx, cur); err != nil {
				return err
			}
			next := cur
			next.ProductOptionID = in.ProductOptionID
			next.Price = in.Price
			next.Side = in.Side
			next.UpdatedAt = s.clock.Now()
			bid, err = s.store.UpdateBidTerms(ctx, next)
			if err != nil {
				return err
			}
			if err := s.indexInsert(ctx, bid); err != nil {
				return err
			}
			if err := s.enqueueBidEvent(ctx, models.EventBidUpdated, bid); err != nil {
				return err
			}
			s.scheduleAfterCommit(ctx, bid.ID)
			return nil
		})
	})
	if err != nil {
		return models.Bid{}, err
	}

	s.log.Info("bid updated", zap.Int64("bid_id", bid.ID), zap.Int64("price", bid.Price))
	return bid, nil
}

// Cancel withdraws the caller's pending bid
func (s *BidService) Cancel(ctx context.Context, userID, bidID int64) (models.Bid, error) {
	var bid models.Bid
	err := s.locks.WithLock(ctx, lock.BidKey(bidID), s.policy.Cancel, func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(ctx context.Context) error {
			cur, err := s.store.GetBidForUpdate(ctx, bidID)
			if err != nil {
				return err
			}
			if cur.UserID != userID {
				return models.ErrNotYourBid
			}
			if err := cancellable(cur); err != nil {
				return err
			}

			bid, err = s.store.SetBidStatus(ctx, cur.ID, cur.Version, models.BidCanceled, s.clock.Now())
			if err != nil {
				return err
			}
			if err := s.indexRemove(ctx, cur); err != nil {
				return err
			}
			return s.enqueueBidEvent(ctx, models.EventBidCancelled, bid)
		})
	})
	if err != nil {
		return models.Bid{}, err
	}

	s.log.Info("bid cancelled", zap.Int64("bid_id", bid.ID), zap.Int64("user_id", userID))
	return bid, nil
}

// AdminCancel force-cancels any pending bid and records the audit trail
func (s *BidService) AdminCancel(ctx context.Context, adminID, bidID int64, reason models.CancelReason, comment string) (models.AdminCancellation, error) {
	if !reason.Valid() {
		return models.AdminCancellation{}, models.ErrInvalidReason
	}
	if utf8.RuneCountInString(comment) > MaxCommentLength {
		return models.AdminCancellation{}, models.ErrCommentTooLong
	}
	admin, err := s.store.GetUser(ctx, adminID)
	if err != nil {
		return models.AdminCancellation{}, err
	}
	if admin.Role != models.RoleAdmin {
		return models.AdminCancellation{}, models.ErrAdminOnly
	}

	var bid models.Bid
	err = s.locks.WithLock(ctx, lock.BidKey(bidID), s.policy.Cancel, func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(ctx context.Context) error {
			cur, err := s.store.GetBidForUpdate(ctx, bidID)
			if err != nil {
				return err
			}
			if err := cancellable(cur); err != nil {
				return err
			}

			bid, err = s.store.AdminCancelBid(ctx, cur.ID, cur.Version, adminID, reason, comment, s.clock.Now())
			if err != nil {
				return err
			}
			if err := s.indexRemove(ctx, cur); err != nil {
				return err
			}
			return s.enqueueBidEvent(ctx, models.EventBidCancelled, bid)
		})
	})
	if err != nil {
		return models.AdminCancellation{}, err
	}

	s.log.Info("bid force-cancelled",
		zap.Int64("bid_id", bid.ID),
		zap.Int64("admin_id", adminID),
		zap.String("reason", string(reason)))
	return models.AdminCancellation{
		BidID:      bid.ID,
		Status:     bid.Status,
		AdminID:    admin.ID,
		AdminName:  admin.Name,
		Reason:     reason,
		Comment:    comment,
		CanceledAt: bid.UpdatedAt,
	}, nil
}

// Get returns a bid visible to the actor: its owner or an admin
func (s *BidService) Get(ctx context.Context, actorID, bidID int64) (models.Bid, error) {
	bid, err := s.store.GetBid(ctx, bidID)
	if err != nil {
		return models.Bid{}, err
	}
	if bid.UserID == actorID {
		return bid, nil
	}
	actor, err := s.store.GetUser(ctx, actorID)
	if err != nil {
		return models.Bid{}, err
	}
	if actor.Role != models.RoleAdmin {
		return models.Bid{}, models.ErrNotYourBid
	}
	return bid, nil
}

// List returns one page of bids matching f
func (s *BidService) List(ctx context.Context, f models.BidFilter) (models.Page[models.BidView], error) {
	if err := f.Validate(); err != nil {
		return models.Page[models.BidView]{}, err
	}
	return s.store.ListBids(ctx, f)
}

func cancellable(b models.Bid) error {
	switch b.Status {
	case models.BidPending:
		return nil
	case models.BidCanceled, models.BidAdminCanceled:
		return models.ErrBidAlreadyCanceled
	default:
		return models.ErrBidNotPending
	}
}

func (s *BidService) enqueueBidEvent(ctx context.Context, typ models.EventType, b models.Bid) error {
	e, err := models.BidEvent(typ, b, s.clock.Now())
	if err != nil {
		return err
	}
	return s.store.EnqueueEvent(ctx, e)
}
