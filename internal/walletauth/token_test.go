package walletauth

import (
	"strings"
	"testing"
	"time"

	apperrors "ChainAgent/internal/errors"
)

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("secret")
	now := time.Now()
	token, claims, err := MintToken(secret, "0xabc", "ethereum", time.Hour, now)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if claims.ExpiresAt != now.Add(time.Hour).Unix() {
		t.Fatalf("unexpected expiry: %d", claims.ExpiresAt)
	}

	got, err := VerifyToken(secret, token, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.WalletAddress != "0xabc" || got.Chain != "ethereum" {
		t.Fatalf("unexpected claims: %+v", got)
	}
}

func TestTokenExpiry(t *testing.T) {
	secret := []byte("secret")
	now := time.Now()
	token, _, err := MintToken(secret, "0xabc", "ethereum", time.Hour, now)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	_, err = VerifyToken(secret, token, now.Add(2*time.Hour))
	if apperrors.CodeOf(err) != apperrors.CodeAuthFailure {
		t.Fatalf("expired token should be AUTH_FAILURE, got %v", err)
	}
}

func TestTokenTamperingDetected(t *testing.T) {
	secret := []byte("secret")
	now := time.Now()
	token, _, err := MintToken(secret, "0xabc", "ethereum", time.Hour, now)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]
	if _, err := VerifyToken(secret, tampered, now); err == nil {
		t.Fatalf("tampered payload should not verify")
	}

	if _, err := VerifyToken([]byte("other-secret"), token, now); err == nil {
		t.Fatalf("wrong secret should not verify")
	}

	if _, err := VerifyToken(secret, "not-a-token", now); err == nil {
		t.Fatalf("malformed token should not verify")
	}
}
