package apikey

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateParseRoundTrip(t *testing.T) {
	key, prefix, hash, err := Generate("dev")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(key, "sk_dev_"+prefix+".") {
		t.Fatalf("key %q does not carry its prefix", key)
	}

	env, parsedPrefix, secret, err := Parse(key)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if env != "dev" || parsedPrefix != prefix {
		t.Fatalf("parsed env %q prefix %q", env, parsedPrefix)
	}
	if Hash(parsedPrefix, secret) != hash {
		t.Fatal("parsed parts do not reproduce the stored hash")
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, key := range []string{
		"",
		"sk_dev_abc",
		"nodots_here",
		"pk_dev_abc.secret",
		"sk_.secret",
		"sk_dev_.secret",
	} {
		if _, _, _, err := Parse(key); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", key)
		}
	}
}

func TestVerify(t *testing.T) {
	key, _, hash, err := Generate("test")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	record := Record{ID: "id", KeyHash: hash}

	if err := Verify(key, record); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if err := Verify(key+"x", record); err == nil {
		t.Fatal("tampered secret verified")
	}

	revoked := record
	at := time.Now()
	revoked.RevokedAt = &at
	if err := Verify(key, revoked); err != ErrRevokedKey {
		t.Fatalf("revoked key err = %v, want ErrRevokedKey", err)
	}
}

func TestGeneratedKeysUnique(t *testing.T) {
	a, _, _, _ := Generate("dev")
	b, _, _, _ := Generate("dev")
	if a == b {
		t.Fatal("two generated keys collided")
	}
}
