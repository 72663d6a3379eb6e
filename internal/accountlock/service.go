package accountlock

import (
	"context"
	"time"

	"github.com/SupragyaBasnet/StepStunner-sub001/internal/audit"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/storage"
	"github.com/google/uuid"
)

// UserStore is the slice of user persistence the state machine touches.
type UserStore interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*storage.User, error)
	SetLock(ctx context.Context, id uuid.UUID, lockedUntil *time.Time, isActive bool) error
	ResetFailedAttempts(ctx context.Context, id uuid.UUID) error
	ExpirePassword(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Emitter receives the admin_action record every administrative transition
// produces. Satisfied by *audit.Recorder.
type Emitter interface {
	Record(rec audit.Record)
}

type Status struct {
	UserID          uuid.UUID  `json:"user_id"`
	IsActive        bool       `json:"is_active"`
	Locked          bool       `json:"locked"`
	LockedUntil     *time.Time `json:"locked_until,omitempty"`
	FailedAttempts  int        `json:"failed_attempts"`
	PasswordExpired bool       `json:"password_expired"`
}

// Service owns the account lock transitions. All states are revisitable and
// lock expiry is evaluated lazily by readers, never by a sweep.
type Service struct {
	users   UserStore
	emitter Emitter
	clock   func() time.Time
}

func New(users UserStore, emitter Emitter) *Service {
	return &Service{users: users, emitter: emitter, clock: time.Now}
}

// NewWithClock pins time for tests.
func NewWithClock(users UserStore, emitter Emitter, clock func() time.Time) *Service {
	s := New(users, emitter)
	s.clock = clock
	return s
}

// Lock suspends the account until the given time.
func (s *Service) Lock(ctx context.Context, actor, target uuid.UUID, until time.Time) error {
	if _, err := s.users.GetUserByID(ctx, target); err != nil {
		return err
	}
	if err := s.users.SetLock(ctx, target, &until, false); err != nil {
		return err
	}
	s.emitAdminAction(actor, target, "account_lock", map[string]any{
		"locked_until": until.UTC().Format(time.RFC3339),
	})
	return nil
}

// Unlock clears the lock and resets the failed-attempt counter.
func (s *Service) Unlock(ctx context.Context, actor, target uuid.UUID) error {
	if _, err := s.users.GetUserByID(ctx, target); err != nil {
		return err
	}
	if err := s.users.SetLock(ctx, target, nil, true); err != nil {
		return err
	}
	if err := s.users.ResetFailedAttempts(ctx, target); err != nil {
		return err
	}
	s.emitAdminAction(actor, target, "account_unlock", nil)
	return nil
}

// ForcePasswordReset expires the credential now; the next authentication must
// rotate it. Enforcement lives in the authentication flow, which reads the
// expiry field.
func (s *Service) ForcePasswordReset(ctx context.Context, actor, target uuid.UUID) error {
	if _, err := s.users.GetUserByID(ctx, target); err != nil {
		return err
	}
	now := s.clock()
	if err := s.users.ExpirePassword(ctx, target, now); err != nil {
		return err
	}
	s.emitAdminAction(actor, target, "force_password_reset", map[string]any{
		"expired_at": now.UTC().Format(time.RFC3339),
	})
	return nil
}

// Status reports the effective state at call time. A lock whose deadline has
// passed reads as unlocked without any explicit unlock having happened.
func (s *Service) Status(ctx context.Context, target uuid.UUID) (Status, error) {
	user, err := s.users.GetUserByID(ctx, target)
	if err != nil {
		return Status{}, err
	}
	now := s.clock()
	return Status{
		UserID:          user.ID,
		IsActive:        user.IsActive,
		Locked:          user.EffectivelyLocked(now),
		LockedUntil:     user.LockedUntil,
		FailedAttempts:  user.FailedLoginAttempts,
		PasswordExpired: user.PasswordExpired(now),
	}, nil
}

func (s *Service) emitAdminAction(actor, target uuid.UUID, subAction string, extra map[string]any) {
	if s.emitter == nil {
		return
	}
	details := map[string]any{
		"sub_action":  subAction,
		"target_user": target.String(),
	}
	for k, v := range extra {
		details[k] = v
	}
	s.emitter.Record(audit.Record{
		Actor:   &actor,
		Action:  audit.ActionAdminAction,
		Details: details,
		Outcome: audit.OutcomeSuccess,
	})
}
