package walletauth

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"

	apperrors "ChainAgent/internal/errors"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(NewMemoryNonceStore(), Config{
		JWTSecret: "test-secret",
		NonceTTL:  5 * time.Minute,
		TokenTTL:  24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func signEVM(t *testing.T, key *ecdsa.PrivateKey, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig)
}

func TestEVMVerifyFlow(t *testing.T) {
	svc := newTestService(t)
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	nonce, err := svc.RequestNonce(context.Background(), address)
	if err != nil {
		t.Fatalf("request nonce: %v", err)
	}
	message := "Sign in to ChainAgent\nNonce: " + nonce

	cred, err := svc.Verify(context.Background(), VerifyRequest{
		Address:   address,
		Chain:     "ethereum",
		Message:   message,
		Signature: signEVM(t, key, message),
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if cred.Token == "" || cred.ExpiresAt <= time.Now().Unix() {
		t.Fatalf("credential looks wrong: %+v", cred)
	}

	identity, err := svc.Authenticate(cred.Token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if identity.Chain != "ethereum" {
		t.Fatalf("unexpected chain claim: %+v", identity)
	}
}

func TestNonceIsSingleUse(t *testing.T) {
	svc := newTestService(t)
	key, _ := crypto.GenerateKey()
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	nonce, err := svc.RequestNonce(context.Background(), address)
	if err != nil {
		t.Fatalf("request nonce: %v", err)
	}
	message := "Nonce: " + nonce
	req := VerifyRequest{
		Address:   address,
		Chain:     "eth",
		Message:   message,
		Signature: signEVM(t, key, message),
	}

	if _, err := svc.Verify(context.Background(), req); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	_, err = svc.Verify(context.Background(), req)
	if apperrors.CodeOf(err) != apperrors.CodeNonceExpired {
		t.Fatalf("replay should hit NONCE_EXPIRED, got %v", err)
	}
}

func TestFailedVerificationBurnsNonce(t *testing.T) {
	svc := newTestService(t)
	key, _ := crypto.GenerateKey()
	wrongKey, _ := crypto.GenerateKey()
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	nonce, err := svc.RequestNonce(context.Background(), address)
	if err != nil {
		t.Fatalf("request nonce: %v", err)
	}
	message := "Nonce: " + nonce

	_, err = svc.Verify(context.Background(), VerifyRequest{
		Address:   address,
		Chain:     "ethereum",
		Message:   message,
		Signature: signEVM(t, wrongKey, message),
	})
	if apperrors.CodeOf(err) != apperrors.CodeInvalidSignature {
		t.Fatalf("wrong key should be INVALID_SIGNATURE, got %v", err)
	}

	// The nonce was consumed by the failed attempt; even the right key
	// cannot use it now.
	_, err = svc.Verify(context.Background(), VerifyRequest{
		Address:   address,
		Chain:     "ethereum",
		Message:   message,
		Signature: signEVM(t, key, message),
	})
	if apperrors.CodeOf(err) != apperrors.CodeNonceExpired {
		t.Fatalf("burned nonce should be NONCE_EXPIRED, got %v", err)
	}
}

func TestMessageMustContainNonce(t *testing.T) {
	svc := newTestService(t)
	key, _ := crypto.GenerateKey()
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	if _, err := svc.RequestNonce(context.Background(), address); err != nil {
		t.Fatalf("request nonce: %v", err)
	}
	message := "Sign in without the challenge"
	_, err := svc.Verify(context.Background(), VerifyRequest{
		Address:   address,
		Chain:     "ethereum",
		Message:   message,
		Signature: signEVM(t, key, message),
	})
	if apperrors.CodeOf(err) != apperrors.CodeInvalidSignature {
		t.Fatalf("missing nonce in message should be INVALID_SIGNATURE, got %v", err)
	}
}

func TestSolanaVerifyFlow(t *testing.T) {
	svc := newTestService(t)
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	address := base58.Encode(pub)

	nonce, err := svc.RequestNonce(context.Background(), address)
	if err != nil {
		t.Fatalf("request nonce: %v", err)
	}
	message := "Nonce: " + nonce
	signature := base58.Encode(ed25519.Sign(priv, []byte(message)))

	cred, err := svc.Verify(context.Background(), VerifyRequest{
		Address:   address,
		Chain:     "solana",
		Message:   message,
		Signature: signature,
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	identity, err := svc.Authenticate(cred.Token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if identity.WalletAddress != address || identity.Chain != "solana" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestVerifyWithoutNonceRequest(t *testing.T) {
	svc := newTestService(t)
	key, _ := crypto.GenerateKey()
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	_, err := svc.Verify(context.Background(), VerifyRequest{
		Address:   address,
		Chain:     "ethereum",
		Message:   "hello",
		Signature: signEVM(t, key, "hello"),
	})
	if apperrors.CodeOf(err) != apperrors.CodeNonceExpired {
		t.Fatalf("no outstanding nonce should be NONCE_EXPIRED, got %v", err)
	}
}

func TestAddressCaseDoesNotSplitNonces(t *testing.T) {
	svc := newTestService(t)
	key, _ := crypto.GenerateKey()
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	upper := "0x" + strings.ToUpper(address[2:])
	nonce, err := svc.RequestNonce(context.Background(), upper)
	if err != nil {
		t.Fatalf("request nonce: %v", err)
	}
	message := "Nonce: " + nonce
	if _, err := svc.Verify(context.Background(), VerifyRequest{
		Address:   address,
		Chain:     "ethereum",
		Message:   message,
		Signature: signEVM(t, key, message),
	}); err != nil {
		t.Fatalf("mixed-case address should resolve the same nonce: %v", err)
	}
}
