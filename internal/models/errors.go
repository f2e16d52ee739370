package models

import (
	"errors"
	"fmt"
)

// Error taxonomy. Callers classify with errors.Is against these sentinels.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrOwnership       = errors.New("resource not owned by actor")
	ErrForbidden       = errors.New("forbidden")
	ErrStateConflict   = errors.New("state conflict")
	ErrLockAcquisition = errors.New("lock acquisition failed")
)

var (
	ErrInvalidPrice         = fmt.Errorf("%w: price must be between 1 and %d", ErrValidation, MaxPrice)
	ErrInvalidSide          = fmt.Errorf("%w: side must be BUY or SELL", ErrValidation)
	ErrInvalidProductOption = fmt.Errorf("%w: product option id required", ErrValidation)
	ErrInvalidReason        = fmt.Errorf("%w: unknown cancel reason", ErrValidation)
	ErrCommentTooLong       = fmt.Errorf("%w: comment too long (max 255 characters)", ErrValidation)
	ErrInvalidFilter        = fmt.Errorf("%w: invalid filter", ErrValidation)
	ErrBiddingSuspended     = fmt.Errorf("%w: bidding suspended", ErrValidation)

	ErrUserNotFound          = fmt.Errorf("user %w", ErrNotFound)
	ErrBidNotFound           = fmt.Errorf("bid %w", ErrNotFound)
	ErrTradeNotFound         = fmt.Errorf("trade %w", ErrNotFound)
	ErrProductOptionNotFound = fmt.Errorf("product option %w", ErrNotFound)

	ErrNotYourBid   = fmt.Errorf("bid %w", ErrOwnership)
	ErrNotYourTrade = fmt.Errorf("trade %w", ErrOwnership)
	ErrAdminOnly    = fmt.Errorf("%w: admin role required", ErrForbidden)

	ErrBidNotPending        = fmt.Errorf("%w: bid is not pending", ErrStateConflict)
	ErrBidAlreadyCanceled   = fmt.Errorf("%w: bid already canceled", ErrStateConflict)
	ErrBidNotMatched        = fmt.Errorf("%w: bid is not matched", ErrStateConflict)
	ErrTradeNotCancellable  = fmt.Errorf("%w: trade is not awaiting payment", ErrStateConflict)
	ErrConcurrentUpdate     = fmt.Errorf("%w: concurrently modified", ErrStateConflict)
	ErrTradeAlreadyRecorded = fmt.Errorf("%w: bid already in an open trade", ErrStateConflict)
)
