// Command seed loads demo data into a dev or test database: an admin, a
// customer, a handful of customizable products and one API key. It refuses to
// run against any other environment.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/SupragyaBasnet/StepStunner-sub001/internal/config"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/security"
	"github.com/SupragyaBasnet/StepStunner-sub001/libs/apikey"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("STEPSTUNNER_CONFIG"))
	if err != nil {
		return err
	}
	if cfg.App.Env != "dev" && cfg.App.Env != "test" {
		return fmt.Errorf("refusing to seed env %q", cfg.App.Env)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DB.ConnString())
	if err != nil {
		return err
	}
	defer pool.Close()

	params := security.DefaultArgon2Params()

	users := []struct {
		email    string
		password string
		role     string
	}{
		{"admin@stepstunner.local", "admin-pass-1234", "admin"},
		{"customer@stepstunner.local", "customer-pass-1234", "customer"},
	}
	for _, u := range users {
		hash, err := security.HashPassword(u.password, params)
		if err != nil {
			return err
		}
		_, err = pool.Exec(ctx, `
			INSERT INTO users (email, password_hash, role, is_active, created_at)
			VALUES ($1, $2, $3, true, now())
			ON CONFLICT (email) DO NOTHING
		`, u.email, hash, u.role)
		if err != nil {
			return fmt.Errorf("seed user %s: %w", u.email, err)
		}
		fmt.Printf("user %s (%s)\n", u.email, u.role)
	}

	products := []struct {
		name        string
		description string
		category    string
		basePrice   string
		deltas      string
	}{
		{"Aurora Runner", "Lightweight daily trainer", "sneakers", "89.99",
			`{"gold-laces": "4.50", "gel-insole": "12.00", "monogram": "8.00"}`},
		{"Stiletto Nova", "Evening heel, 90mm", "heels", "129.99",
			`{"ankle-strap": "9.50", "crystal-buckle": "24.00"}`},
		{"Trail Forge", "Waterproof hiking boot", "boots", "149.99",
			`{"vibram-sole": "30.00", "wide-fit": "0.00"}`},
	}
	for _, p := range products {
		_, err := pool.Exec(ctx, `
			INSERT INTO products (name, description, category, base_price, option_deltas, created_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (name) DO NOTHING
		`, p.name, p.description, p.category, p.basePrice, []byte(p.deltas))
		if err != nil {
			return fmt.Errorf("seed product %s: %w", p.name, err)
		}
		fmt.Printf("product %s (%s)\n", p.name, p.basePrice)
	}

	key, prefix, hash, err := apikey.Generate(cfg.App.Env)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO api_keys (label, prefix, key_hash, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (prefix) DO NOTHING
	`, "seeded demo key", prefix, hash)
	if err != nil {
		return fmt.Errorf("seed api key: %w", err)
	}
	fmt.Printf("api key (store this, it is not shown again): %s\n", key)

	return nil
}
