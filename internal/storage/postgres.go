package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const userColumns = `id, email, password_hash, role, is_active, locked_until, failed_login_attempts, password_expires_at, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive,
		&u.LockedUntil, &u.FailedLoginAttempts, &u.PasswordExpiresAt, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1
	`, email)
	return scanUser(row)
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (s *Store) CreateUser(ctx context.Context, email, passwordHash, role string) (*User, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, role, is_active, created_at)
		VALUES ($1, $2, $3, true, now())
		RETURNING `+userColumns+`
	`, email, passwordHash, role)
	user, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return user, nil
}

func (s *Store) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET password_hash = $2, password_expires_at = NULL
		WHERE id = $1
	`, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetLock writes the lock fields in one statement; last write wins, which is
// acceptable for low-frequency administrative transitions.
func (s *Store) SetLock(ctx context.Context, id uuid.UUID, lockedUntil *time.Time, isActive bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET locked_until = $2, is_active = $3
		WHERE id = $1
	`, id, lockedUntil, isActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ResetFailedAttempts(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users
		SET failed_login_attempts = 0
		WHERE id = $1
	`, id)
	return err
}

func (s *Store) IncrementFailedAttempts(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1
		WHERE id = $1
	`, id)
	return err
}

func (s *Store) ExpirePassword(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET password_expires_at = $2
		WHERE id = $1
	`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CountUsers(ctx context.Context) (UserCounts, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE is_active AND (locked_until IS NULL OR locked_until <= now())),
			count(*) FILTER (WHERE locked_until > now())
		FROM users
	`)
	var c UserCounts
	if err := row.Scan(&c.Total, &c.Active, &c.Locked); err != nil {
		return UserCounts{}, err
	}
	return c, nil
}

func (s *Store) ListProducts(ctx context.Context, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, category, base_price, option_deltas, created_at
		FROM products
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, description, category, base_price, option_deltas, created_at
		FROM products
		WHERE id = $1
	`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	var price string
	var deltas []byte
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &price, &deltas, &p.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	p.BasePrice, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse base price: %w", err)
	}
	if len(deltas) > 0 {
		raw := map[string]string{}
		if err := json.Unmarshal(deltas, &raw); err != nil {
			return nil, fmt.Errorf("parse option deltas: %w", err)
		}
		p.OptionDeltas = make(map[string]decimal.Decimal, len(raw))
		for opt, v := range raw {
			d, err := decimal.NewFromString(v)
			if err != nil {
				return nil, fmt.Errorf("parse option delta %q: %w", opt, err)
			}
			p.OptionDeltas[opt] = d
		}
	}
	return &p, nil
}

func (s *Store) CreateOrder(ctx context.Context, userID uuid.UUID, items []OrderItem, total decimal.Decimal) (*Order, error) {
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal order items: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO orders (user_id, items, total, status, created_at)
		VALUES ($1, $2, $3, 'pending', now())
		RETURNING id, created_at
	`, userID, payload, total.String())

	order := Order{UserID: userID, Items: items, Total: total, Status: "pending"}
	if err := row.Scan(&order.ID, &order.CreatedAt); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) MarkOrderPaid(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = 'paid'
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetAPIKeyByPrefix(ctx context.Context, prefix string) (*APIKey, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, label, prefix, key_hash, revoked_at, created_at
		FROM api_keys
		WHERE prefix = $1
	`, prefix)

	var k APIKey
	if err := row.Scan(&k.ID, &k.Label, &k.Prefix, &k.KeyHash, &k.RevokedAt, &k.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &k, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
