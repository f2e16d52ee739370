package db

import (
	"context"
	"fmt"
	"time"

	"github.com/xtrntr/resale/internal/models"
)

// CreateUser inserts a new user
func (db *DB) CreateUser(ctx context.Context, name string, role models.Role) (models.User, error) {
	var (
		u    models.User
		r    string
		susp *time.Time
	)
	err := db.queryRow(ctx,
		"INSERT INTO users (name, role) VALUES ($1, $2) RETURNING id, name, role, bidding_suspended_until, created_at",
		name, string(role)).Scan(&u.ID, &u.Name, &r, &susp, &u.CreatedAt)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	u.Role = models.Role(r)
	u.BiddingSuspendedUntil = susp
	return u, nil
}

// GetUser retrieves a user by id
func (db *DB) GetUser(ctx context.Context, id int64) (models.User, error) {
	var (
		u models.User
		r string
	)
	err := db.queryRow(ctx,
		"SELECT id, name, role, bidding_suspended_until, created_at FROM users WHERE id = $1",
		id).Scan(&u.ID, &u.Name, &r, &u.BiddingSuspendedUntil, &u.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return models.User{}, models.ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	u.Role = models.Role(r)
	return u, nil
}

// SuspendUser blocks bid registration for the user until the given time.
// An existing longer suspension is kept.
func (db *DB) SuspendUser(ctx context.Context, id int64, until time.Time) error {
	tag, err := db.exec(ctx,
		`UPDATE users SET bidding_suspended_until = GREATEST(COALESCE(bidding_suspended_until, $2), $2) WHERE id = $1`,
		id, until)
	if err != nil {
		return fmt.Errorf("failed to suspend user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

// CreateCategory inserts a product category
func (db *DB) CreateCategory(ctx context.Context, name string) (int64, error) {
	var id int64
	err := db.queryRow(ctx, "INSERT INTO product_categories (name) VALUES ($1) RETURNING id", name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create category: %w", err)
	}
	return id, nil
}

// CreateProduct inserts a product under a category
func (db *DB) CreateProduct(ctx context.Context, categoryID int64, name string) (int64, error) {
	var id int64
	err := db.queryRow(ctx,
		"INSERT INTO products (category_id, name) VALUES ($1, $2) RETURNING id",
		categoryID, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create product: %w", err)
	}
	return id, nil
}

// CreateProductOption inserts a size variant of a product
func (db *DB) CreateProductOption(ctx context.Context, productID int64, size string) (int64, error) {
	var id int64
	err := db.queryRow(ctx,
		"INSERT INTO product_options (product_id, size) VALUES ($1, $2) RETURNING id",
		productID, size).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create product option: %w", err)
	}
	return id, nil
}

// GetProductOption retrieves an option with its product and category
func (db *DB) GetProductOption(ctx context.Context, id int64) (models.ProductOption, error) {
	var o models.ProductOption
	err := db.queryRow(ctx, `
SELECT o.id, p.id, p.name, c.id, c.name, o.size
FROM product_options o
JOIN products p ON p.id = o.product_id
JOIN product_categories c ON c.id = p.category_id
WHERE o.id = $1`, id).Scan(&o.ID, &o.ProductID, &o.ProductName, &o.CategoryID, &o.CategoryName, &o.Size)
	if err != nil {
		if isNoRows(err) {
			return models.ProductOption{}, models.ErrProductOptionNotFound
		}
		return models.ProductOption{}, fmt.Errorf("failed to get product option: %w", err)
	}
	return o, nil
}
