package eth

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	msg := ChallengeMessage("abc123")

	sig, err := SignMessage(key, msg)
	require.NoError(t, err)

	recovered, err := RecoverAddress(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, AddressOf(key), recovered)
}

func TestRecoverRejectsWrongMessage(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	sig, err := SignMessage(key, ChallengeMessage("nonce-a"))
	require.NoError(t, err)

	recovered, err := RecoverAddress(ChallengeMessage("nonce-b"), sig)
	require.NoError(t, err)
	assert.NotEqual(t, AddressOf(key), recovered)
}

func TestRecoverRejectsMalformedSignature(t *testing.T) {
	msg := ChallengeMessage("abc123")

	_, err := RecoverAddress(msg, "not hex")
	assert.ErrorIs(t, err, ErrSignatureFormat)

	_, err = RecoverAddress(msg, "0xdead")
	assert.ErrorIs(t, err, ErrSignatureFormat)
}

func TestChallengeMessageEmbedsNonce(t *testing.T) {
	msg := string(ChallengeMessage("my-nonce"))
	assert.Contains(t, msg, "Nonce: my-nonce")

	// The wording is a signer/verifier contract; identical nonces must
	// produce identical bytes.
	assert.Equal(t, ChallengeMessage("x"), ChallengeMessage("x"))
}
