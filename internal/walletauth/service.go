package walletauth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	apperrors "ChainAgent/internal/errors"
	"ChainAgent/internal/web3"
	"ChainAgent/pkg/logger"
)

// Config tunes the authentication service.
type Config struct {
	JWTSecret string
	NonceTTL  time.Duration
	TokenTTL  time.Duration
}

// Credential is a minted session token.
type Credential struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// Identity is the authenticated wallet extracted from a verified credential.
type Identity struct {
	WalletAddress string `json:"address"`
	Chain         string `json:"chain"`
}

// Service implements the wallet challenge flow: issue a nonce, verify a
// signature over a message containing it, and mint a session credential.
type Service struct {
	nonces NonceStore
	cfg    Config
	now    func() time.Time
	log    *slog.Logger
}

// NewService wires the auth service over a nonce store.
func NewService(nonces NonceStore, cfg Config) (*Service, error) {
	if cfg.JWTSecret == "" {
		return nil, apperrors.New(apperrors.CodeInitialization, "jwt secret is required")
	}
	return &Service{
		nonces: nonces,
		cfg:    cfg,
		now:    time.Now,
		log:    logger.Named("walletauth"),
	}, nil
}

// RequestNonce issues a fresh single-use challenge for the address. A new
// request replaces any outstanding nonce for the same address.
func (s *Service) RequestNonce(ctx context.Context, address string) (string, error) {
	key, err := normalizeAddress(address)
	if err != nil {
		return "", err
	}
	nonce, err := GenerateNonce()
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeAuthFailure, err, "issue nonce")
	}
	if err := s.nonces.Issue(ctx, key, nonce, s.cfg.NonceTTL); err != nil {
		return "", err
	}
	s.log.Info("nonce issued", "address", key)
	return nonce, nil
}

// VerifyRequest carries a signed challenge back to the service.
type VerifyRequest struct {
	Address   string `json:"address"`
	Chain     string `json:"chain"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// Verify consumes the outstanding nonce and checks the signature. The nonce
// is deleted before verification: a failed attempt burns it, and the wallet
// must request a new one.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (*Credential, error) {
	chain, err := web3.ParseChainType(req.Chain)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidArgument, err, "parse chain")
	}
	key, err := normalizeAddress(req.Address)
	if err != nil {
		return nil, err
	}

	nonce, err := s.nonces.Consume(ctx, key)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(req.Message, nonce) {
		s.log.Warn("verification message missing nonce", "address", key)
		return nil, apperrors.New(apperrors.CodeInvalidSignature, "message does not contain the issued nonce")
	}
	if err := VerifySignature(chain, req.Address, req.Message, req.Signature); err != nil {
		s.log.Warn("signature verification failed", "address", key, "chain", chain)
		return nil, err
	}

	token, claims, err := MintToken([]byte(s.cfg.JWTSecret), key, chain.String(), s.cfg.TokenTTL, s.now())
	if err != nil {
		return nil, err
	}
	logger.Audit().Info("wallet authenticated", "address", key, "chain", chain)
	return &Credential{Token: token, ExpiresAt: claims.ExpiresAt}, nil
}

// Authenticate validates a bearer token and returns the wallet identity.
func (s *Service) Authenticate(token string) (*Identity, error) {
	claims, err := VerifyToken([]byte(s.cfg.JWTSecret), token, s.now())
	if err != nil {
		return nil, err
	}
	return &Identity{WalletAddress: claims.WalletAddress, Chain: claims.Chain}, nil
}

// normalizeAddress canonicalises addresses so nonce keys and token claims do
// not depend on caller casing. EVM addresses lowercase; base58 is case
// sensitive and passes through.
func normalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", apperrors.New(apperrors.CodeInvalidArgument, "address is required")
	}
	if strings.HasPrefix(address, "0x") {
		if !common.IsHexAddress(address) {
			return "", apperrors.New(apperrors.CodeInvalidArgument,
				fmt.Sprintf("malformed ethereum address %q", address))
		}
		return strings.ToLower(address), nil
	}
	return address, nil
}
