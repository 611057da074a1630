package eth

import "fmt"

// challengeTemplate is the wording every wallet signs during login. The
// backend re-derives the same bytes for verification, so signer and verifier
// must agree on this template byte for byte.
const challengeTemplate = "Welcome to Friendsly!\n\nSign this message to verify you own this wallet.\nThis request will not trigger a blockchain transaction or cost any gas.\n\nNonce: %s"

// ChallengeMessage builds the login challenge embedding a single-use nonce.
func ChallengeMessage(nonce string) []byte {
	return []byte(fmt.Sprintf(challengeTemplate, nonce))
}
