package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"log/slog"

	"github.com/SupragyaBasnet/StepStunner-sub001/internal/csrf"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/security"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/storage"
	"github.com/SupragyaBasnet/StepStunner-sub001/libs/auth"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// testArgon2 keeps hashing cheap in tests.
var testArgon2 = security.Argon2Params{
	Memory:      8 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

var frozenNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

type frozenClock struct{}

func (frozenClock) Now() time.Time { return frozenNow }

type memUserStore struct {
	byEmail map[string]*storage.User
	byID    map[uuid.UUID]*storage.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{
		byEmail: map[string]*storage.User{},
		byID:    map[uuid.UUID]*storage.User{},
	}
}

func (s *memUserStore) add(u *storage.User) *storage.User {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	s.byEmail[u.Email] = u
	s.byID[u.ID] = u
	return u
}

func (s *memUserStore) GetUserByEmail(_ context.Context, email string) (*storage.User, error) {
	u, ok := s.byEmail[email]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *memUserStore) GetUserByID(_ context.Context, id uuid.UUID) (*storage.User, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *memUserStore) CreateUser(_ context.Context, email, passwordHash, role string) (*storage.User, error) {
	if _, exists := s.byEmail[email]; exists {
		return nil, storage.ErrDuplicate
	}
	u := s.add(&storage.User{Email: email, PasswordHash: passwordHash, Role: role, IsActive: true})
	copied := *u
	return &copied, nil
}

func (s *memUserStore) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	u, ok := s.byID[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.PasswordExpiresAt = nil
	return nil
}

func (s *memUserStore) ResetFailedAttempts(_ context.Context, id uuid.UUID) error {
	if u, ok := s.byID[id]; ok {
		u.FailedLoginAttempts = 0
	}
	return nil
}

func (s *memUserStore) IncrementFailedAttempts(_ context.Context, id uuid.UUID) error {
	if u, ok := s.byID[id]; ok {
		u.FailedLoginAttempts++
	}
	return nil
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := security.HashPassword(password, testArgon2)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return hash
}

func newAuthHandler(store *memUserStore) *AuthHandler {
	h := NewAuthHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)),
		"test-secret", "stepstunner", 30*time.Minute, testArgon2,
		csrf.NewService(csrf.NewMemoryStore(), time.Hour))
	h.Clock = frozenClock{}
	return h
}

func loginRouter(h *AuthHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/login", h.Login)
	r.POST("/register", h.Register)
	return r
}

func postJSON(t *testing.T, r http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestLoginSuccess(t *testing.T) {
	store := newMemUserStore()
	store.add(&storage.User{
		Email:               "a@b.c",
		PasswordHash:        mustHash(t, "correct-horse"),
		Role:                auth.RoleCustomer,
		IsActive:            true,
		FailedLoginAttempts: 3,
	})
	h := newAuthHandler(store)

	w := postJSON(t, loginRouter(h), "/login", gin.H{"email": "a@b.c", "password": "correct-horse"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body)
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		Role        string `json:"role"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// The handler signs with the frozen clock, so validate at that instant.
	var claims auth.Claims
	_, err := jwt.ParseWithClaims(resp.AccessToken, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	}, jwt.WithTimeFunc(func() time.Time { return frozenNow }))
	if err != nil {
		t.Fatalf("token does not parse: %v", err)
	}
	if claims.Role != auth.RoleCustomer {
		t.Fatalf("claims role = %q", claims.Role)
	}
	if !claims.ExpiresAt.After(frozenNow) {
		t.Fatalf("token expiry %v not after issue time %v", claims.ExpiresAt, frozenNow)
	}

	if store.byEmail["a@b.c"].FailedLoginAttempts != 0 {
		t.Fatal("successful login did not reset the failed-attempt counter")
	}
}

func TestLoginWrongPasswordIncrementsCounter(t *testing.T) {
	store := newMemUserStore()
	store.add(&storage.User{
		Email:        "a@b.c",
		PasswordHash: mustHash(t, "correct-horse"),
		IsActive:     true,
	})
	h := newAuthHandler(store)

	w := postJSON(t, loginRouter(h), "/login", gin.H{"email": "a@b.c", "password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if store.byEmail["a@b.c"].FailedLoginAttempts != 1 {
		t.Fatalf("failed attempts = %d, want 1", store.byEmail["a@b.c"].FailedLoginAttempts)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	h := newAuthHandler(newMemUserStore())

	w := postJSON(t, loginRouter(h), "/login", gin.H{"email": "ghost@b.c", "password": "whatever"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestLoginLockedAccount(t *testing.T) {
	until := frozenNow.Add(time.Hour)
	store := newMemUserStore()
	store.add(&storage.User{
		Email:        "a@b.c",
		PasswordHash: mustHash(t, "correct-horse"),
		IsActive:     false,
		LockedUntil:  &until,
	})
	h := newAuthHandler(store)

	w := postJSON(t, loginRouter(h), "/login", gin.H{"email": "a@b.c", "password": "correct-horse"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}

	var resp errorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != "ACCOUNT_LOCKED" {
		t.Fatalf("code = %q, want ACCOUNT_LOCKED", resp.Code)
	}
}

func TestLoginExpiredLockAdmits(t *testing.T) {
	past := frozenNow.Add(-time.Minute)
	store := newMemUserStore()
	store.add(&storage.User{
		Email:        "a@b.c",
		PasswordHash: mustHash(t, "correct-horse"),
		IsActive:     true,
		LockedUntil:  &past,
	})
	h := newAuthHandler(store)

	w := postJSON(t, loginRouter(h), "/login", gin.H{"email": "a@b.c", "password": "correct-horse"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: expired lock must admit", w.Code)
	}
}

func TestLoginExpiredPassword(t *testing.T) {
	expired := frozenNow.Add(-time.Minute)
	store := newMemUserStore()
	store.add(&storage.User{
		Email:             "a@b.c",
		PasswordHash:      mustHash(t, "correct-horse"),
		IsActive:          true,
		PasswordExpiresAt: &expired,
	})
	h := newAuthHandler(store)

	w := postJSON(t, loginRouter(h), "/login", gin.H{"email": "a@b.c", "password": "correct-horse"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}

	var resp errorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != "PASSWORD_EXPIRED" {
		t.Fatalf("code = %q, want PASSWORD_EXPIRED", resp.Code)
	}
}

func TestRegister(t *testing.T) {
	store := newMemUserStore()
	h := newAuthHandler(store)
	router := loginRouter(h)

	w := postJSON(t, router, "/register", gin.H{"email": "New@B.C", "password": "long-enough-pass"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", w.Code, w.Body)
	}
	if _, ok := store.byEmail["new@b.c"]; !ok {
		t.Fatal("email not lowercased on registration")
	}

	// Same email again conflicts.
	w = postJSON(t, router, "/register", gin.H{"email": "new@b.c", "password": "long-enough-pass"})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", w.Code)
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	h := newAuthHandler(newMemUserStore())

	w := postJSON(t, loginRouter(h), "/register", gin.H{"email": "a@b.c", "password": "short"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestChangePassword(t *testing.T) {
	store := newMemUserStore()
	expiry := frozenNow.Add(-time.Hour)
	user := store.add(&storage.User{
		Email:             "a@b.c",
		PasswordHash:      mustHash(t, "old-password-1"),
		IsActive:          true,
		PasswordExpiresAt: &expiry,
	})
	h := newAuthHandler(store)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/password", func(c *gin.Context) {
		c.Set(auth.ContextUserIDKey, user.ID.String())
	}, h.ChangePassword)

	w := postJSON(t, r, "/password", gin.H{
		"current_password": "old-password-1",
		"new_password":     "brand-new-pass-2",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body)
	}

	ok, err := security.VerifyPassword("brand-new-pass-2", store.byID[user.ID].PasswordHash)
	if err != nil || !ok {
		t.Fatal("new password does not verify after change")
	}
	if store.byID[user.ID].PasswordExpiresAt != nil {
		t.Fatal("password change did not clear the forced expiry")
	}
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	store := newMemUserStore()
	user := store.add(&storage.User{
		Email:        "a@b.c",
		PasswordHash: mustHash(t, "old-password-1"),
		IsActive:     true,
	})
	h := newAuthHandler(store)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/password", func(c *gin.Context) {
		c.Set(auth.ContextUserIDKey, user.ID.String())
	}, h.ChangePassword)

	w := postJSON(t, r, "/password", gin.H{
		"current_password": "not-the-password",
		"new_password":     "brand-new-pass-2",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
