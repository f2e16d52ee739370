package main

import (
	"context"
	"fmt"
	"log"

	"github.com/xtrntr/resale/internal/auth"
	"github.com/xtrntr/resale/internal/config"
	"github.com/xtrntr/resale/internal/db"
	"github.com/xtrntr/resale/internal/seed"
	"github.com/xtrntr/resale/migrations"
)

// Seed the database with a demo catalogue and print development tokens
func main() {
	ctx := context.Background()

	cfg, err := config.Load(".", "/etc/resale")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.NewDB(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := migrations.Apply(ctx, database.Pool); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	res, err := seed.Run(ctx, database)
	if err != nil {
		log.Fatalf("Failed to seed: %v", err)
	}
	fmt.Printf("Seeded %d product options\n", len(res.Options))

	tokens := auth.NewTokenService(cfg.Auth.Secret, cfg.Auth.TokenTTL, nil)
	for _, u := range res.Users {
		token, err := tokens.Issue(u)
		if err != nil {
			log.Fatalf("Failed to issue token for %s: %v", u.Name, err)
		}
		fmt.Printf("%-8s %-5s id=%d token=%s\n", u.Name, u.Role, u.ID, token)
	}
}
