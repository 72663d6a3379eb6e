package accountlock

import (
	"context"
	"testing"
	"time"

	"github.com/SupragyaBasnet/StepStunner-sub001/internal/audit"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/storage"
	"github.com/google/uuid"
)

type fakeUserStore struct {
	users map[uuid.UUID]*storage.User
}

func newFakeUserStore(users ...*storage.User) *fakeUserStore {
	s := &fakeUserStore{users: map[uuid.UUID]*storage.User{}}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeUserStore) GetUserByID(_ context.Context, id uuid.UUID) (*storage.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *fakeUserStore) SetLock(_ context.Context, id uuid.UUID, lockedUntil *time.Time, isActive bool) error {
	u, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.LockedUntil = lockedUntil
	u.IsActive = isActive
	return nil
}

func (s *fakeUserStore) ResetFailedAttempts(_ context.Context, id uuid.UUID) error {
	u, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.FailedLoginAttempts = 0
	return nil
}

func (s *fakeUserStore) ExpirePassword(_ context.Context, id uuid.UUID, at time.Time) error {
	u, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.PasswordExpiresAt = &at
	return nil
}

type captureEmitter struct {
	records []audit.Record
}

func (e *captureEmitter) Record(rec audit.Record) {
	e.records = append(e.records, rec)
}

func (e *captureEmitter) lastDetail(t *testing.T, key string) string {
	t.Helper()
	if len(e.records) == 0 {
		t.Fatal("no records emitted")
	}
	v, ok := e.records[len(e.records)-1].Details[key]
	if !ok {
		t.Fatalf("detail %q missing", key)
	}
	s, _ := v.(string)
	return s
}

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newService(users *fakeUserStore, emitter *captureEmitter) *Service {
	return NewWithClock(users, emitter, func() time.Time { return testNow })
}

func TestLockThenStatus(t *testing.T) {
	target := &storage.User{ID: uuid.New(), IsActive: true}
	users := newFakeUserStore(target)
	emitter := &captureEmitter{}
	svc := newService(users, emitter)
	admin := uuid.New()

	until := testNow.Add(30 * time.Minute)
	if err := svc.Lock(context.Background(), admin, target.ID, until); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	status, err := svc.Status(context.Background(), target.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Locked {
		t.Fatal("status not locked after Lock")
	}
	if status.IsActive {
		t.Fatal("account still active after Lock")
	}

	if got := emitter.lastDetail(t, "sub_action"); got != "account_lock" {
		t.Fatalf("sub_action = %q, want account_lock", got)
	}
	if got := emitter.lastDetail(t, "target_user"); got != target.ID.String() {
		t.Fatalf("target_user = %q, want %s", got, target.ID)
	}
	if rec := emitter.records[0]; rec.Actor == nil || *rec.Actor != admin {
		t.Fatal("record actor is not the administrator")
	}
	if rec := emitter.records[0]; rec.Action != audit.ActionAdminAction {
		t.Fatalf("record action = %q, want admin_action", rec.Action)
	}
}

func TestUnlockClearsLockAndCounter(t *testing.T) {
	until := testNow.Add(time.Hour)
	target := &storage.User{ID: uuid.New(), IsActive: false, LockedUntil: &until, FailedLoginAttempts: 7}
	users := newFakeUserStore(target)
	emitter := &captureEmitter{}
	svc := newService(users, emitter)

	if err := svc.Unlock(context.Background(), uuid.New(), target.ID); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	status, err := svc.Status(context.Background(), target.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Locked {
		t.Fatal("status still locked after Unlock")
	}
	if !status.IsActive {
		t.Fatal("account inactive after Unlock")
	}
	if status.FailedAttempts != 0 {
		t.Fatalf("FailedAttempts = %d, want 0", status.FailedAttempts)
	}
	if got := emitter.lastDetail(t, "sub_action"); got != "account_unlock" {
		t.Fatalf("sub_action = %q, want account_unlock", got)
	}
}

func TestExpiredLockReadsAsUnlocked(t *testing.T) {
	// No explicit unlock ever happened; expiry is observed lazily at read time.
	past := testNow.Add(-time.Minute)
	target := &storage.User{ID: uuid.New(), IsActive: true, LockedUntil: &past}
	svc := newService(newFakeUserStore(target), &captureEmitter{})

	status, err := svc.Status(context.Background(), target.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Locked {
		t.Fatal("expired lock still reads as locked")
	}
}

func TestForcePasswordReset(t *testing.T) {
	target := &storage.User{ID: uuid.New(), IsActive: true}
	users := newFakeUserStore(target)
	emitter := &captureEmitter{}
	svc := newService(users, emitter)

	if err := svc.ForcePasswordReset(context.Background(), uuid.New(), target.ID); err != nil {
		t.Fatalf("ForcePasswordReset: %v", err)
	}

	status, err := svc.Status(context.Background(), target.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.PasswordExpired {
		t.Fatal("password not expired after force reset")
	}
	if got := emitter.lastDetail(t, "sub_action"); got != "force_password_reset" {
		t.Fatalf("sub_action = %q, want force_password_reset", got)
	}
}

func TestTransitionsAreRevisitable(t *testing.T) {
	target := &storage.User{ID: uuid.New(), IsActive: true}
	users := newFakeUserStore(target)
	emitter := &captureEmitter{}
	svc := newService(users, emitter)
	admin := uuid.New()

	until := testNow.Add(time.Hour)
	for i := 0; i < 2; i++ {
		if err := svc.Lock(context.Background(), admin, target.ID, until); err != nil {
			t.Fatalf("Lock #%d: %v", i+1, err)
		}
		if err := svc.Unlock(context.Background(), admin, target.ID); err != nil {
			t.Fatalf("Unlock #%d: %v", i+1, err)
		}
	}

	// Every transition leaves a record, repeated or not.
	if len(emitter.records) != 4 {
		t.Fatalf("emitted %d records, want 4", len(emitter.records))
	}
}

func TestUnknownUserErrors(t *testing.T) {
	svc := newService(newFakeUserStore(), &captureEmitter{})
	missing := uuid.New()

	if err := svc.Lock(context.Background(), uuid.New(), missing, testNow.Add(time.Hour)); err != storage.ErrNotFound {
		t.Fatalf("Lock err = %v, want ErrNotFound", err)
	}
	if err := svc.Unlock(context.Background(), uuid.New(), missing); err != storage.ErrNotFound {
		t.Fatalf("Unlock err = %v, want ErrNotFound", err)
	}
	if err := svc.ForcePasswordReset(context.Background(), uuid.New(), missing); err != storage.ErrNotFound {
		t.Fatalf("ForcePasswordReset err = %v, want ErrNotFound", err)
	}
	if _, err := svc.Status(context.Background(), missing); err != storage.ErrNotFound {
		t.Fatalf("Status err = %v, want ErrNotFound", err)
	}
}
