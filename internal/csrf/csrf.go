package csrf

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"
)

// Service issues and validates per-session anti-forgery tokens. One token per
// session, generated on first need, never rotated mid-session.
type Service struct {
	store TokenStore
	ttl   time.Duration
}

func NewService(store TokenStore, ttl time.Duration) *Service {
	return &Service{store: store, ttl: ttl}
}

// Issue returns the session's token, minting one on first call.
func (s *Service) Issue(ctx context.Context, sid string) (string, error) {
	if sid == "" {
		return "", fmt.Errorf("missing session")
	}
	if token, ok, err := s.store.Get(ctx, sid); err != nil {
		return "", err
	} else if ok {
		return token, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	return s.store.SetIfAbsent(ctx, sid, token, s.ttl)
}

// Validate requires an exact match between the session-bound token and the
// supplied value. Missing session, missing token, or mismatch all reject.
func (s *Service) Validate(ctx context.Context, sid, supplied string) bool {
	if sid == "" || supplied == "" {
		return false
	}
	token, ok, err := s.store.Get(ctx, sid)
	if err != nil || !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(supplied)) == 1
}

// Drop discards the session's token, e.g. on logout.
func (s *Service) Drop(ctx context.Context, sid string) error {
	return s.store.Delete(ctx, sid)
}
