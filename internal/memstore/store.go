// Package memstore is an in-process bid store with the same surface as the
// Postgres store. Transactions are serialised by a single mutex and undone
// from a log on failure.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xtrntr/resale/internal/models"
	"github.com/xtrntr/resale/internal/txn"
)

type product struct {
	categoryID int64
	name       string
}

type option struct {
	productID int64
	size      string
}

// Store holds every table in maps guarded by one transaction mutex
type Store struct {
	mu sync.Mutex

	ids    int64
	seq    int64
	events int64

	users      map[int64]models.User
	categories map[int64]string
	products   map[int64]product
	options    map[int64]option
	bids       map[int64]models.Bid
	trades     map[int64]models.Trade
	outbox     map[int64]models.Event
}

// New creates an empty store
func New() *Store {
	return &Store{
		users:      make(map[int64]models.User),
		categories: make(map[int64]string),
		products:   make(map[int64]product),
		options:    make(map[int64]option),
		bids:       make(map[int64]models.Bid),
		trades:     make(map[int64]models.Trade),
		outbox:     make(map[int64]models.Event),
	}
}

type txKey struct{}

type memTx struct {
	store *Store
	undo  []func()
}

func (tx *memTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

// remember logs the current value of m[k] so a rollback restores it
func remember[K comparable, V any](tx *memTx, m map[K]V, k K) {
	old, ok := m[k]
	tx.undo = append(tx.undo, func() {
		if ok {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
}

func (s *Store) txFrom(ctx context.Context) *memTx {
	tx, _ := ctx.Value(txKey{}).(*memTx)
	if tx == nil || tx.store != s {
		return nil
	}
	return tx
}

// WithTx runs fn as one serialisable transaction. Nested calls join the
// enclosing transaction. Commit callbacks run after the store is unlocked;
// rollback compensation runs before, so it must not call back into the store.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txFrom(ctx) != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	s.mu.Lock()
	tx := &memTx{store: s}
	hookCtx, hooks := txn.Begin(ctx)
	txCtx := context.WithValue(hookCtx, txKey{}, tx)

	done := false
	defer func() {
		if done {
			return
		}
		tx.rollback()
		hooks.RolledBack(hookCtx)
		s.mu.Unlock()
	}()

	if err := fn(txCtx); err != nil {
		return err
	}
	done = true
	s.mu.Unlock()
	hooks.Committed(hookCtx)
	return nil
}

// do runs fn against the enclosing transaction, or a single statement one
func (s *Store) do(ctx context.Context, fn func(tx *memTx) error) error {
	if tx := s.txFrom(ctx); tx != nil {
		return fn(tx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *Store) nextID() int64 {
	s.ids++
	return s.ids
}

// CreateUser inserts a new user
func (s *Store) CreateUser(ctx context.Context, name string, role models.Role) (models.User, error) {
	var u models.User
	err := s.do(ctx, func(tx *memTx) error {
		for _, existing := range s.users {
			if existing.Name == name {
				return fmt.Errorf("failed to create user: name %q taken", name)
			}
		}
		u = models.User{ID: s.nextID(), Name: name, Role: role, CreatedAt: time.Now().UTC()}
		remember(tx, s.users, u.ID)
		s.users[u.ID] = u
		return nil
	})
	return u, err
}

// GetUser retrieves a user by id
func (s *Store) GetUser(ctx context.Context, id int64) (models.User, error) {
	var u models.User
	err := s.do(ctx, func(*memTx) error {
		found, ok := s.users[id]
		if !ok {
			return models.ErrUserNotFound
		}
		u = found
		return nil
	})
	return u, err
}

// SuspendUser blocks bid registration until the given time, keeping a longer suspension
func (s *Store) SuspendUser(ctx context.Context, id int64, until time.Time) error {
	return s.do(ctx, func(tx *memTx) error {
		u, ok := s.users[id]
		if !ok {
			return models.ErrUserNotFound
		}
		if u.BiddingSuspendedUntil != nil && u.BiddingSuspendedUntil.After(until) {
			return nil
		}
		remember(tx, s.users, id)
		u.BiddingSuspendedUntil = &until
		s.users[id] = u
		return nil
	})
}

// CreateCategory inserts a product category
func (s *Store) CreateCategory(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.do(ctx, func(tx *memTx) error {
		id = s.nextID()
		remember(tx, s.categories, id)
		s.categories[id] = name
		return nil
	})
	return id, err
}

// CreateProduct inserts a product under a category
func (s *Store) CreateProduct(ctx context.Context, categoryID int64, name string) (int64, error) {
	var id int64
	err := s.do(ctx, func(tx *memTx) error {
		if _, ok := s.categories[categoryID]; !ok {
			return fmt.Errorf("failed to create product: category %d does not exist", categoryID)
		}
		id = s.nextID()
		remember(tx, s.products, id)
		s.products[id] = product{categoryID: categoryID, name: name}
		return nil
	})
	return id, err
}

// CreateProductOption inserts a size variant of a product
func (s *Store) CreateProductOption(ctx context.Context, productID int64, size string) (int64, error) {
	var id int64
	err := s.do(ctx, func(tx *memTx) error {
		if _, ok := s.products[productID]; !ok {
			return fmt.Errorf("failed to create product option: product %d does not exist", productID)
		}
		id = s.nextID()
		remember(tx, s.options, id)
		s.options[id] = option{productID: productID, size: size}
		return nil
	})
	return id, err
}

// GetProductOption retrieves an option with its product and category
func (s *Store) GetProductOption(ctx context.Context, id int64) (models.ProductOption, error) {
	var o models.ProductOption
	err := s.do(ctx, func(*memTx) error {
		found, ok := s.optionView(id)
		if !ok {
			return models.ErrProductOptionNotFound
		}
		o = found
		return nil
	})
	return o, err
}

func (s *Store) optionView(id int64) (models.ProductOption, bool) {
	o, ok := s.options[id]
	if !ok {
		return models.ProductOption{}, false
	}
	p := s.products[o.productID]
	return models.ProductOption{
		ID:           id,
		ProductID:    o.productID,
		ProductName:  p.name,
		CategoryID:   p.categoryID,
		CategoryName: s.categories[p.categoryID],
		Size:         o.size,
	}, true
}
