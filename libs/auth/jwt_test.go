package auth

import (
	"testing"
	"time"
)

var secret = []byte("unit-test-secret")

func TestSignAndParse(t *testing.T) {
	now := time.Now()
	token, err := SignJWT("user-123", RoleCustomer, secret, "stepstunner", time.Hour, now)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}

	claims, err := ParseJWT(token, secret)
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.Subject != "user-123" {
		t.Fatalf("subject = %q", claims.Subject)
	}
	if claims.Role != RoleCustomer {
		t.Fatalf("role = %q", claims.Role)
	}
	if claims.Issuer != "stepstunner" {
		t.Fatalf("issuer = %q", claims.Issuer)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, _ := SignJWT("user-123", RoleCustomer, secret, "stepstunner", time.Hour, time.Now())
	if _, err := ParseJWT(token, []byte("other-secret")); err == nil {
		t.Fatal("token parsed with the wrong secret")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	token, _ := SignJWT("user-123", RoleCustomer, secret, "stepstunner", time.Hour, time.Now().Add(-2*time.Hour))
	if _, err := ParseJWT(token, secret); err == nil {
		t.Fatal("expired token parsed")
	}
}

func TestExtractBearer(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Bearer  abc ", "abc"},
		{"Basic abc", ""},
		{"abc", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := ExtractBearer(tc.header); got != tc.want {
			t.Errorf("ExtractBearer(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}
