package eth

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the byte length of a personal-message signature.
const SignatureLength = 65

var ErrSignatureFormat = fmt.Errorf("signature must be 65 bytes of hex")

// SignMessage signs msg with the EIP-191 personal-message digest and returns
// the 0x-prefixed signature with the recovery byte in wallet convention
// (V in {27, 28}).
func SignMessage(key *ecdsa.PrivateKey, msg []byte) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

// RecoverAddress recovers the signer of msg from a personal-message
// signature and returns the checksummed address.
func RecoverAddress(msg []byte, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSignatureFormat, err)
	}
	if len(sig) != SignatureLength {
		return "", fmt.Errorf("%w: got %d bytes", ErrSignatureFormat, len(sig))
	}

	// Accept both the raw recovery id and the wallet convention.
	v := make([]byte, SignatureLength)
	copy(v, sig)
	if v[64] >= 27 {
		v[64] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(msg), v)
	if err != nil {
		return "", fmt.Errorf("failed to recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// AddressOf returns the checksummed address of a private key.
func AddressOf(key *ecdsa.PrivateKey) string {
	return crypto.PubkeyToAddress(key.PublicKey).Hex()
}

// SameAddress compares two addresses case-insensitively.
func SameAddress(a, b string) bool {
	return common.HexToAddress(a) == common.HexToAddress(b)
}
