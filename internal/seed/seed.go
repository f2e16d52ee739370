// Package seed loads a small catalogue and a few accounts for development.
package seed

import (
	"context"
	"fmt"

	"github.com/xtrntr/resale/internal/models"
)

// Store is the catalogue and account surface seeding writes to
type Store interface {
	CreateUser(ctx context.Context, name string, role models.Role) (models.User, error)
	CreateCategory(ctx context.Context, name string) (int64, error)
	CreateProduct(ctx context.Context, categoryID int64, name string) (int64, error)
	CreateProductOption(ctx context.Context, productID int64, size string) (int64, error)
}

type product struct {
	name  string
	sizes []string
}

var catalogue = []struct {
	category string
	products []product
}{
	{
		category: "Sneakers",
		products: []product{
			{name: "Nike Dunk Low Panda", sizes: []string{"250", "260", "270", "280"}},
			{name: "Adidas Samba OG", sizes: []string{"255", "265", "275"}},
		},
	},
	{
		category: "Outerwear",
		products: []product{
			{name: "Arc'teryx Beta LT", sizes: []string{"S", "M", "L"}},
		},
	},
}

var accounts = []struct {
	name string
	role models.Role
}{
	{name: "trader1", role: models.RoleUser},
	{name: "trader2", role: models.RoleUser},
	{name: "admin", role: models.RoleAdmin},
}

// Result lists what Run created
type Result struct {
	Users   []models.User
	Options []int64
}

// Run creates the demo catalogue and accounts
func Run(ctx context.Context, store Store) (Result, error) {
	var res Result
	for _, c := range catalogue {
		categoryID, err := store.CreateCategory(ctx, c.category)
		if err != nil {
			return res, fmt.Errorf("failed to create category %s: %w", c.category, err)
		}
		for _, p := range c.products {
			productID, err := store.CreateProduct(ctx, categoryID, p.name)
			if err != nil {
				return res, fmt.Errorf("failed to create product %s: %w", p.name, err)
			}
			for _, size := range p.sizes {
				optionID, err := store.CreateProductOption(ctx, productID, size)
				if err != nil {
					return res, fmt.Errorf("failed to create option %s/%s: %w", p.name, size, err)
				}
				res.Options = append(res.Options, optionID)
			}
		}
	}

	for _, a := range accounts {
		u, err := store.CreateUser(ctx, a.name, a.role)
		if err != nil {
			return res, fmt.Errorf("failed to create user %s: %w", a.name, err)
		}
		res.Users = append(res.Users, u)
	}
	return res, nil
}
