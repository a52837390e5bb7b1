package hashing

import (
	"strings"
	"testing"

	"safarapi-auth/internal/config"
)

func testHasher() *Hasher {
	return NewHasher(&config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  8192,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
	})
}

func TestPasswordRoundTrip(t *testing.T) {
	h := testHasher()

	encoded, err := h.HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("unexpected encoding: %q", encoded)
	}

	match, err := h.VerifyPassword("correct horse battery", encoded)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if !match {
		t.Error("expected matching password to verify")
	}

	match, err = h.VerifyPassword("wrong password", encoded)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if match {
		t.Error("expected mismatching password to fail")
	}
}

func TestOtpRoundTrip(t *testing.T) {
	h := testHasher()

	encoded, err := h.HashOTP("4521")
	if err != nil {
		t.Fatalf("HashOTP: %v", err)
	}

	match, err := h.VerifyOTP("4521", encoded)
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if !match {
		t.Error("expected matching code to verify")
	}

	match, err = h.VerifyOTP("4522", encoded)
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if match {
		t.Error("expected mismatching code to fail")
	}
}

func TestHashesAreSalted(t *testing.T) {
	h := testHasher()

	a, err := h.HashOTP("4521")
	if err != nil {
		t.Fatalf("HashOTP: %v", err)
	}
	b, err := h.HashOTP("4521")
	if err != nil {
		t.Fatalf("HashOTP: %v", err)
	}
	if a == b {
		t.Error("expected two hashes of the same code to differ")
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	h := testHasher()

	if _, err := h.VerifyPassword("anything", "not-a-hash"); err == nil {
		t.Error("expected error for malformed hash")
	}
	if _, err := h.VerifyPassword("anything", "$argon2id$v=19$m=8192,t=1,p=1$short"); err == nil {
		t.Error("expected error for truncated hash")
	}
}
