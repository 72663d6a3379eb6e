package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	ID                  uuid.UUID
	Email               string
	PasswordHash        string
	Role                string
	IsActive            bool
	LockedUntil         *time.Time
	FailedLoginAttempts int
	PasswordExpiresAt   *time.Time
	CreatedAt           time.Time
}

// EffectivelyLocked recomputes lock status from lockedUntil on every read;
// an expired lock means unlocked without anyone having to clear it.
func (u *User) EffectivelyLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// PasswordExpired reports whether the next authentication must rotate the
// credential.
func (u *User) PasswordExpired(now time.Time) bool {
	return u.PasswordExpiresAt != nil && !u.PasswordExpiresAt.After(now)
}

// UserCounts backs the admin system-stats view. Locked is computed against
// now() in SQL, so an expired lock never counts.
type UserCounts struct {
	Total  int
	Active int
	Locked int
}

type Product struct {
	ID           uuid.UUID
	Name         string
	Description  string
	Category     string
	BasePrice    decimal.Decimal
	OptionDeltas map[string]decimal.Decimal
	CreatedAt    time.Time
}

type OrderItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Options   []string  `json:"options,omitempty"`
	UnitPrice string    `json:"unit_price"`
}

type Order struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Items     []OrderItem
	Total     decimal.Decimal
	Status    string
	CreatedAt time.Time
}

type APIKey struct {
	ID        uuid.UUID
	Label     string
	Prefix    string
	KeyHash   string
	RevokedAt *time.Time
	CreatedAt time.Time
}
