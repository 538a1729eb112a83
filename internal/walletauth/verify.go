package walletauth

import (
	"crypto/ed25519"
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"

	apperrors "ChainAgent/internal/errors"
	"ChainAgent/internal/web3"
)

// VerifySignature checks that signature was produced over message by the
// holder of address, using the chain's native scheme.
func VerifySignature(chain web3.ChainType, address, message, signature string) error {
	switch chain {
	case web3.ChainEthereum:
		return verifyEVM(address, message, signature)
	case web3.ChainSolana:
		return verifySolana(address, message, signature)
	default:
		return apperrors.New(apperrors.CodeInvalidArgument, "unsupported chain for signature verification")
	}
}

// verifyEVM recovers the signer from an EIP-191 personal_sign signature and
// compares it to the claimed address.
func verifyEVM(address, message, signature string) error {
	if !common.IsHexAddress(address) {
		return apperrors.New(apperrors.CodeInvalidArgument, "invalid ethereum address")
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil || len(sig) != 65 {
		return apperrors.New(apperrors.CodeInvalidSignature, "signature must be 65 bytes of hex")
	}
	// Wallets emit v as 27/28; secp256k1 recovery wants 0/1.
	recovery := sig[64]
	if recovery >= 27 {
		recovery -= 27
	}
	if recovery > 1 {
		return apperrors.New(apperrors.CodeInvalidSignature, "invalid recovery id")
	}
	normalized := make([]byte, 65)
	copy(normalized, sig[:64])
	normalized[64] = recovery

	pubKey, err := crypto.SigToPub(accounts.TextHash([]byte(message)), normalized)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidSignature, err, "recover signer")
	}
	recovered := crypto.PubkeyToAddress(*pubKey)
	if recovered != common.HexToAddress(address) {
		return apperrors.New(apperrors.CodeInvalidSignature, "signature does not match address")
	}
	return nil
}

// verifySolana checks an ed25519 signature; address and signature are base58.
func verifySolana(address, message, signature string) error {
	pubKey, err := base58.Decode(address)
	if err != nil || len(pubKey) != ed25519.PublicKeySize {
		return apperrors.New(apperrors.CodeInvalidArgument, "invalid solana address")
	}
	sig, err := base58.Decode(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return apperrors.New(apperrors.CodeInvalidSignature, "signature must be 64 bytes of base58")
	}
	if !ed25519.Verify(ed25519.PublicKey(pubKey), []byte(message), sig) {
		return apperrors.New(apperrors.CodeInvalidSignature, "signature does not match address")
	}
	return nil
}
