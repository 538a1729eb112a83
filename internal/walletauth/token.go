package walletauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	apperrors "ChainAgent/internal/errors"
)

// encodedJWTHeader is {"alg":"HS256","typ":"JWT"} pre-encoded; the header
// never varies.
const encodedJWTHeader = "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9"

// Claims is the payload carried by a session credential.
type Claims struct {
	WalletAddress string `json:"wallet_address"`
	Chain         string `json:"chain"`
	IssuedAt      int64  `json:"iat"`
	ExpiresAt     int64  `json:"exp"`
}

// MintToken signs an HS256 token for the wallet, valid for ttl.
func MintToken(secret []byte, address, chain string, ttl time.Duration, now time.Time) (string, Claims, error) {
	claims := Claims{
		WalletAddress: address,
		Chain:         chain,
		IssuedAt:      now.Unix(),
		ExpiresAt:     now.Add(ttl).Unix(),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", Claims{}, apperrors.Wrap(apperrors.CodeAuthFailure, err, "encode claims")
	}
	signingInput := encodedJWTHeader + "." + base64.RawURLEncoding.EncodeToString(payload)
	return signingInput + "." + signature(secret, signingInput), claims, nil
}

// VerifyToken checks the signature and expiry of a token and returns its
// claims.
func VerifyToken(secret []byte, token string, now time.Time) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, apperrors.New(apperrors.CodeAuthFailure, "malformed token")
	}
	signingInput := parts[0] + "." + parts[1]
	expected := signature(secret, signingInput)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(parts[2])) != 1 {
		return Claims{}, apperrors.New(apperrors.CodeAuthFailure, "token signature mismatch")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, apperrors.New(apperrors.CodeAuthFailure, "malformed token payload")
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, apperrors.New(apperrors.CodeAuthFailure, "malformed token claims")
	}
	if now.Unix() >= claims.ExpiresAt {
		return Claims{}, apperrors.New(apperrors.CodeAuthFailure, "token expired")
	}
	return claims, nil
}

func signature(secret []byte, signingInput string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(signingInput))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
