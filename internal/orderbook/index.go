// Package orderbook holds the price-time index: one ordered book per
// (product option, side) keyed by bid id. The index is a projection of the
// bid store and is only ever used as a hint by the matcher.
package orderbook

import (
	"context"
	"fmt"

	"github.com/xtrntr/resale/internal/models"
)

// Entry is one resting bid in a book
type Entry struct {
	BidID int64
	Price int64
	Seq   int64
}

// Index is the price-time ordered view of resting bids.
//
// Lower scores sort first. BUY books score by -price so the highest bid
// leads; SELL books score by price so the lowest ask leads. Equal prices are
// ordered by registration sequence, then bid id.
type Index interface {
	// Insert adds the entry for e.BidID, replacing any previous entry.
	Insert(ctx context.Context, optionID int64, side models.Side, e Entry) error
	// Remove deletes the entry for bidID. Removing an absent id is not an error.
	Remove(ctx context.Context, optionID int64, side models.Side, bidID int64) error
	// PeekBest returns the leading entry of the book, if any.
	PeekBest(ctx context.Context, optionID int64, side models.Side) (Entry, bool, error)
	// PeekAt returns the entry at zero-based rank, if the book is that deep.
	PeekAt(ctx context.Context, optionID int64, side models.Side, rank int) (Entry, bool, error)
	// Entries returns the whole book in priority order.
	Entries(ctx context.Context, optionID int64, side models.Side) ([]Entry, error)
}

// Score is the dominant ordering term of an entry
func Score(side models.Side, price int64) int64 {
	if side == models.SideBuy {
		return -price
	}
	return price
}

// Key names the book for a product option and side
func Key(optionID int64, side models.Side) string {
	if side == models.SideBuy {
		return fmt.Sprintf("bids:buy:%d", optionID)
	}
	return fmt.Sprintf("bids:sell:%d", optionID)
}

// EntryOf projects a bid into its index entry
func EntryOf(b models.Bid) Entry {
	return Entry{BidID: b.ID, Price: b.Price, Seq: b.Seq}
}

func less(side models.Side, a, b Entry) bool {
	sa, sb := Score(side, a.Price), Score(side, b.Price)
	if sa != sb {
		return sa < sb
	}
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.BidID < b.BidID
}
