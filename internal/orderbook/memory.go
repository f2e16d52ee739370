package orderbook

import (
	"context"
	"sync"

	"github.com/google/btree"

	"github.com/xtrntr/resale/internal/models"
)

const btreeDegree = 32

type bookKey struct {
	optionID int64
	side     models.Side
}

type memoryBook struct {
	tree *btree.BTreeG[Entry]
	byID map[int64]Entry
}

// MemoryIndex keeps every book in process, for single-node deployments and tests
type MemoryIndex struct {
	mu    sync.RWMutex
	books map[bookKey]*memoryBook
}

// NewMemoryIndex creates an empty in-process index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{books: make(map[bookKey]*memoryBook)}
}

func (m *MemoryIndex) book(optionID int64, side models.Side, create bool) *memoryBook {
	k := bookKey{optionID: optionID, side: side}
	b, ok := m.books[k]
	if !ok && create {
		b = &memoryBook{
			tree: btree.NewG(btreeDegree, func(a, b Entry) bool { return less(side, a, b) }),
			byID: make(map[int64]Entry),
		}
		m.books[k] = b
	}
	return b
}

// Insert adds or replaces the entry for e.BidID
func (m *MemoryIndex) Insert(_ context.Context, optionID int64, side models.Side, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.book(optionID, side, true)
	if old, ok := b.byID[e.BidID]; ok {
		b.tree.Delete(old)
	}
	b.tree.ReplaceOrInsert(e)
	b.byID[e.BidID] = e
	return nil
}

// Remove deletes the entry for bidID if present
func (m *MemoryIndex) Remove(_ context.Context, optionID int64, side models.Side, bidID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.book(optionID, side, false)
	if b == nil {
		return nil
	}
	if old, ok := b.byID[bidID]; ok {
		b.tree.Delete(old)
		delete(b.byID, bidID)
	}
	return nil
}

// PeekBest returns the leading entry
func (m *MemoryIndex) PeekBest(ctx context.Context, optionID int64, side models.Side) (Entry, bool, error) {
	return m.PeekAt(ctx, optionID, side, 0)
}

// PeekAt returns the entry at rank
func (m *MemoryIndex) PeekAt(_ context.Context, optionID int64, side models.Side, rank int) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b := m.book(optionID, side, false)
	if b == nil || rank < 0 || rank >= b.tree.Len() {
		return Entry{}, false, nil
	}
	var (
		found Entry
		i     int
	)
	b.tree.Ascend(func(e Entry) bool {
		if i == rank {
			found = e
			return false
		}
		i++
		return true
	})
	return found, true, nil
}

// Entries returns the book in priority order
func (m *MemoryIndex) Entries(_ context.Context, optionID int64, side models.Side) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b := m.book(optionID, side, false)
	if b == nil {
		return nil, nil
	}
	out := make([]Entry, 0, b.tree.Len())
	b.tree.Ascend(func(e Entry) bool {
		out = append(out, e)
		return true
	})
	return out, nil
}
